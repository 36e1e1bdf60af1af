package jpeg

import (
	"bytes"
	"sync"

	"github.com/harliandi/imgsqueeze/pkg/metrics"
)

// Size classes for pooled encode buffers.
const (
	smallBuffer  = 64 * 1024       // thumbnails and tiny inputs
	mediumBuffer = 512 * 1024      // typical compressed output
	largeBuffer  = 5 * 1024 * 1024 // high quality encodes of large photos
)

type sizeClass struct {
	name string
	cap  int
	pool sync.Pool
}

// bufferPool hands out reusable encode buffers so that the up to seven
// encodes of a single search do not each allocate a fresh output buffer.
type bufferPool struct {
	classes []*sizeClass
}

var encodeBuffers = &bufferPool{
	classes: []*sizeClass{
		{name: "small", cap: smallBuffer},
		{name: "medium", cap: mediumBuffer},
		{name: "large", cap: largeBuffer},
	},
}

func (p *bufferPool) classFor(hint int) *sizeClass {
	for _, c := range p.classes {
		if hint <= c.cap {
			return c
		}
	}
	return p.classes[len(p.classes)-1]
}

// get returns an empty buffer able to hold at least hint bytes without growing.
func (p *bufferPool) get(hint int) *bytes.Buffer {
	c := p.classFor(hint)
	if v := c.pool.Get(); v != nil {
		metrics.RecordPoolHit(c.name)
		buf := v.(*bytes.Buffer)
		buf.Reset()
		return buf
	}
	metrics.RecordPoolMiss(c.name)
	return bytes.NewBuffer(make([]byte, 0, c.cap))
}

// put returns buf to the pool matching its capacity. Buffers that grew past
// the largest class are left to the GC.
func (p *bufferPool) put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > 2*largeBuffer {
		return
	}
	buf.Reset()
	for i := len(p.classes) - 1; i >= 0; i-- {
		if c := p.classes[i]; buf.Cap() >= c.cap {
			c.pool.Put(buf)
			return
		}
	}
}

// detach copies the buffer contents out so buf can go back to the pool.
func detach(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// sizeHint guesses the encoded size of a w x h image at the given quality.
func sizeHint(w, h, quality int) int {
	pixels := w * h
	switch {
	case quality >= 70:
		return pixels / 2
	case quality >= 40:
		return pixels / 4
	default:
		return pixels / 8
	}
}
