package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/harliandi/imgsqueeze/internal/archive"
	"github.com/harliandi/imgsqueeze/internal/compressor"
	"github.com/harliandi/imgsqueeze/internal/config"
	"github.com/harliandi/imgsqueeze/internal/decode"
	"github.com/harliandi/imgsqueeze/internal/logging"
)

type compressOptions struct {
	outDir  string
	zip     bool
	format  string
	encoder string
	workers int
	verbose bool
	now     func() time.Time
}

func newCompressCmd() *cobra.Command {
	opts := compressOptions{now: time.Now}

	cmd := &cobra.Command{
		Use:   "compress [flags] <path>...",
		Short: "Compress image files or directories of images",
		Long: `Compress every given image. Directories are walked for files with a
supported extension. Results are written to the output directory as
compressed_<name>, or bundled into a single timestamped zip with --zip.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompress(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out", "o", "compressed", "output directory")
	f.BoolVar(&opts.zip, "zip", false, "bundle results into one zip file")
	f.StringVarP(&opts.format, "format", "f", config.FormatJPEG, "output format: jpeg or webp")
	f.StringVar(&opts.encoder, "encoder", config.EncoderStd, "jpeg encoder: std or turbo")
	f.IntVarP(&opts.workers, "workers", "w", runtime.NumCPU(), "number of parallel workers")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func runCompress(cmd *cobra.Command, opts compressOptions, args []string) error {
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := compressor.New(opts.format, opts.encoder, compressor.MaxFileSize, logger)
	if err != nil {
		return err
	}

	paths, errs := collectPaths(args)
	if len(paths) == 0 {
		return multierr.Append(errs, fmt.Errorf("no supported images found"))
	}

	files := make([]compressor.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		files = append(files, compressor.File{Name: p, Data: data})
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return multierr.Append(errs, err)
	}

	pool := compressor.NewWorkerPool(c, opts.workers)
	pool.Start()
	items := pool.CompressBatch(cmd.Context(), files)
	pool.Stop()

	out := cmd.OutOrStdout()
	sink, err := newSink(opts, c.Extension())
	if err != nil {
		return multierr.Append(errs, err)
	}

	var (
		done, met      int
		origKB, compKB float64
	)
	for _, item := range items {
		if item.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", item.Name, item.Err))
			continue
		}
		r := item.Result
		written, err := sink.add(item.Name, r.Data)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		logger.Debug("wrote output", zap.String("input", item.Name), zap.String("output", written))

		done++
		origKB += r.OriginalKB
		compKB += r.CompressedKB
		if r.MetTarget {
			met++
		}
		fmt.Fprintln(out, fileLine(filepath.Base(item.Name), r.OriginalKB, r.CompressedKB, r.Quality, r.MetTarget))
	}

	dest, err := sink.close()
	if err != nil && done > 0 {
		errs = multierr.Append(errs, err)
	}

	rows := []summaryRow{
		{Label: "Files", Value: fmt.Sprintf("%d", len(paths))},
		{Label: "Compressed", Value: fmt.Sprintf("%d", done)},
		{Label: "Failed", Value: fmt.Sprintf("%d", len(multierr.Errors(errs)))},
		{Label: "Targets met", Value: fmt.Sprintf("%d/%d", met, done)},
		{Label: "Original size", Value: formatKB(origKB)},
		{Label: "Compressed size", Value: formatKB(compKB)},
		{Label: "Reduction", Value: fmt.Sprintf("%.1f%%", compressor.ReductionPercent(origKB, compKB))},
	}
	fmt.Fprintln(out, renderSummary(rows))
	if done > 0 {
		fmt.Fprintf(out, "Output written to: %s\n", dest)
	}
	return errs
}

// collectPaths expands directories into the supported images inside them.
// Explicit file arguments are kept whatever their extension.
func collectPaths(args []string) ([]string, error) {
	var (
		paths []string
		errs  error
	)
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				errs = multierr.Append(errs, err)
				return nil
			}
			if !d.IsDir() && decode.IsSupportedName(p) {
				paths = append(paths, p)
			}
			return nil
		})
		errs = multierr.Append(errs, err)
	}
	return paths, errs
}

// sink receives compressed outputs, either as loose files or into a zip.
type sink struct {
	dir    string
	ext    string
	file   *os.File
	bundle *archive.Bundle
	seen   map[string]int
}

func newSink(opts compressOptions, ext string) (*sink, error) {
	s := &sink{dir: opts.outDir, ext: ext, seen: make(map[string]int)}
	if !opts.zip {
		return s, nil
	}
	now := opts.now()
	f, err := os.Create(filepath.Join(opts.outDir, archive.ZipName(now)))
	if err != nil {
		return nil, err
	}
	s.file = f
	s.bundle = archive.NewBundle(f, ext, now)
	return s, nil
}

func (s *sink) add(name string, data []byte) (string, error) {
	if s.bundle != nil {
		entry, err := s.bundle.Add(name, data)
		if err != nil {
			return "", err
		}
		return s.file.Name() + ":" + entry, nil
	}

	base := archive.EntryName(name, s.ext)
	entry := base
	if n := s.seen[base]; n > 0 {
		ext := filepath.Ext(base)
		entry = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), n, ext)
	}
	s.seen[base]++

	p := filepath.Join(s.dir, entry)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// close finishes the zip if any and returns where output went.
func (s *sink) close() (string, error) {
	if s.bundle == nil {
		return s.dir, nil
	}
	err := s.bundle.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if s.bundle.Len() == 0 {
		os.Remove(s.file.Name())
	}
	return s.file.Name(), err
}
