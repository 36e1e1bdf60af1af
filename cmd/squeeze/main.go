// Command squeeze compresses image files to the size policy's targets from
// the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "squeeze",
		Short: "Compress images to a size that depends on how big they are",
		Long: `squeeze re-encodes images so that small files stay untouched in size while
large files shrink to a fraction of the original, searching for the highest
quality that fits.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf(
		"squeeze %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
	root.SetHelpCommand(&cobra.Command{Hidden: true})
	root.AddCommand(newCompressCmd(), newTargetCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
