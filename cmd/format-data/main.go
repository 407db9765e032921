// Command format-data lists a dataset directory before training.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/splat.report/internal/fsutil"
)

func run(args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem) error {
	fs := flag.NewFlagSet("format-data", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data_dir", "", "Dataset directory to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dataDir != "" {
		names, err := fsys.ReadDir(*dataDir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", *dataDir, err)
		}
		fmt.Fprintln(stdout, names)
	}
	fmt.Fprintln(stdout, "\nData formatted.")
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, fsutil.OSFileSystem{}); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Printf("format-data: %v", err)
		os.Exit(1)
	}
}
