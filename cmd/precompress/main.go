package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/fatih/color"

	"github.com/wtnb75/themestatic/internal/precompress"
)

// precompress compress -dir public: create .gz/.br/.zst next to each file
// precompress cleanup -dir public: remove them again

func realMain(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("subcommand is required: compress or cleanup")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := precompress.Options{Compressors: precompress.DefaultCompressors()}
	switch args[0] {
	case "compress":
		cmpr := flag.NewFlagSet("compress", flag.ExitOnError)
		cmpr.StringVar(&opts.Dir, "dir", "", "target directory")
		cmpr.BoolVar(&opts.DryRun, "dry-run", false, "dry run")
		cmpr.Int64Var(&opts.MinSize, "min-size", 128, "minimum file size to compress")
		cmpr.Int64Var(&opts.MaxSize, "max-size", 10*1024*1024, "maximum file size to compress")
		gzipcmd := cmpr.String("gzip-cmd", "", "gzip command")
		brotlicmd := cmpr.String("brotli-cmd", "", "brotli command")
		zstdcmd := cmpr.String("zstd-cmd", "", "zstd command")
		if err := cmpr.Parse(args[1:]); err != nil {
			return err
		}
		for ext, cmdline := range map[string]string{".gz": *gzipcmd, ".br": *brotlicmd, ".zst": *zstdcmd} {
			if cmdline == "" {
				continue
			}
			if err := precompress.SetCommand(opts.Compressors, ext, cmdline); err != nil {
				return err
			}
		}
		if opts.Dir == "" {
			return fmt.Errorf("dir is required")
		}
		created, err := precompress.Compress(ctx, opts)
		if err != nil {
			return err
		}
		color.Green("%d compressed files", len(created))
	case "cleanup":
		cleanup := flag.NewFlagSet("cleanup", flag.ExitOnError)
		cleanup.StringVar(&opts.Dir, "dir", "", "target directory")
		cleanup.BoolVar(&opts.DryRun, "dry-run", false, "dry run")
		cleanup.BoolVar(&opts.OldOnly, "old", false, "remove only old compressed files")
		if err := cleanup.Parse(args[1:]); err != nil {
			return err
		}
		if opts.Dir == "" {
			return fmt.Errorf("dir is required")
		}
		removed, err := precompress.Cleanup(opts)
		if err != nil {
			return err
		}
		color.Green("%d compressed files removed", len(removed))
	default:
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
	return nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	if err := realMain(os.Args[1:]); err != nil {
		slog.Error("precompress failed", "error", err)
		os.Exit(1)
	}
}
