//go:build cgo && turbojpeg

package jpeg

/*
#cgo pkg-config: libjpeg
#include <stdio.h>
#include <jpeglib.h>
#include <jerror.h>
#include <stdlib.h>
#include <string.h>
#include <setjmp.h>

typedef struct {
    struct jpeg_error_mgr pub;
    jmp_buf setjmp_buffer;
    char msg[JMSG_LENGTH_MAX];
} sq_error_mgr;

static void sq_error_exit(j_common_ptr cinfo) {
    sq_error_mgr *err = (sq_error_mgr *)cinfo->err;
    (*cinfo->err->format_message)(cinfo, err->msg);
    longjmp(err->setjmp_buffer, 1);
}

// Encode packed RGB rows as a progressive JPEG with optimized Huffman tables.
static int encode_rgb(
    const unsigned char *pix, int stride,
    int width, int height, int quality,
    unsigned char **out_buffer, unsigned long *out_size,
    char **error_msg) {

    struct jpeg_compress_struct cinfo;
    sq_error_mgr *jerr = NULL;
    JSAMPROW row[1];
    int result = 0;

    *out_buffer = NULL;
    *out_size = 0;
    *error_msg = NULL;

    jerr = (sq_error_mgr *)malloc(sizeof(sq_error_mgr));
    cinfo.err = jpeg_std_error(&jerr->pub);
    jerr->pub.error_exit = sq_error_exit;
    if (setjmp(jerr->setjmp_buffer)) {
        *error_msg = strdup(jerr->msg);
        result = -1;
        goto cleanup;
    }

    jpeg_create_compress(&cinfo);
    jpeg_mem_dest(&cinfo, out_buffer, out_size);

    cinfo.image_width = width;
    cinfo.image_height = height;
    cinfo.input_components = 3;
    cinfo.in_color_space = JCS_RGB;

    jpeg_set_defaults(&cinfo);
    jpeg_set_quality(&cinfo, quality, TRUE);
    cinfo.optimize_coding = TRUE;
    jpeg_simple_progression(&cinfo);

    jpeg_start_compress(&cinfo, TRUE);
    while (cinfo.next_scanline < cinfo.image_height) {
        row[0] = (JSAMPROW)(pix + cinfo.next_scanline * stride);
        jpeg_write_scanlines(&cinfo, row, 1);
    }
    jpeg_finish_compress(&cinfo);

cleanup:
    jpeg_destroy_compress(&cinfo);
    if (jerr) free(jerr);
    return result;
}
*/
import "C"
import (
	"fmt"
	"image"
	"unsafe"
)

// TurboAvailable reports whether EncodeTurbo is backed by libjpeg-turbo.
const TurboAvailable = true

// EncodeTurbo encodes img as a progressive JPEG with optimized Huffman tables.
func EncodeTurbo(img image.Image, quality int) ([]byte, error) {
	quality = clampQuality(quality)

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("jpeg encode failed: empty image %dx%d", w, h)
	}
	pix := packRGB(img)

	var (
		outBuffer *C.uchar
		outSize   C.ulong
		errorMsg  *C.char
	)

	result := C.encode_rgb(
		(*C.uchar)(unsafe.Pointer(&pix[0])),
		C.int(w*3),
		C.int(w),
		C.int(h),
		C.int(quality),
		&outBuffer,
		&outSize,
		&errorMsg,
	)

	if result != 0 || outBuffer == nil {
		err := fmt.Errorf("jpeg encode failed")
		if errorMsg != nil {
			err = fmt.Errorf("jpeg encode failed: %s", C.GoString(errorMsg))
			C.free(unsafe.Pointer(errorMsg))
		}
		if outBuffer != nil {
			C.free(unsafe.Pointer(outBuffer))
		}
		return nil, err
	}

	data := C.GoBytes(unsafe.Pointer(outBuffer), C.int(outSize))
	C.free(unsafe.Pointer(outBuffer))

	return data, nil
}
