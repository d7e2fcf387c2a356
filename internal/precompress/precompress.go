// Package precompress maintains the .gz/.br/.zst sidecar files that
// themestatic.FileServer negotiates with Accept-Encoding.
package precompress

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/buildkite/shellwords"
)

type Compressor struct {
	Ext     string
	Command []string
}

// DefaultCompressors keep the original file (-k) and overwrite stale sidecars (-f).
func DefaultCompressors() []Compressor {
	return []Compressor{
		{Ext: ".gz", Command: []string{"gzip", "-k9nf"}},
		{Ext: ".br", Command: []string{"brotli", "-k9nf"}},
		{Ext: ".zst", Command: []string{"zstd", "-k19f"}},
	}
}

// SetCommand replaces the command of the compressor for ext with a
// shell-quoted command line such as "pigz -k -11".
func SetCommand(comps []Compressor, ext, cmdline string) error {
	args, err := shellwords.Split(cmdline)
	if err != nil {
		return fmt.Errorf("parse %q: %w", cmdline, err)
	}
	if len(args) == 0 {
		return fmt.Errorf("empty command for %s", ext)
	}
	for i := range comps {
		if comps[i].Ext == ext {
			comps[i].Command = args
			return nil
		}
	}
	return fmt.Errorf("no compressor for %s", ext)
}

type Options struct {
	Dir         string
	DryRun      bool
	MinSize     int64
	MaxSize     int64
	OldOnly     bool
	Compressors []Compressor
}

var sidecarExts = map[string]bool{".gz": true, ".br": true, ".zst": true, ".deflate": true, ".Z": true}

// IsSidecar reports whether name is itself a compressed variant.
func IsSidecar(name string) bool {
	return sidecarExts[filepath.Ext(name)]
}

func (o *Options) compressors() []Compressor {
	if o.Compressors == nil {
		return DefaultCompressors()
	}
	return o.Compressors
}

// Compress creates sidecars for every file under opts.Dir whose size lies
// within [MinSize, MaxSize]. Sidecars that end up no smaller than the
// original are removed. It returns the sidecar paths created (or, in dry-run
// mode, that would be created).
func Compress(ctx context.Context, opts Options) ([]string, error) {
	fsys := os.DirFS(opts.Dir).(fs.StatFS)
	created := []string{}
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || IsSidecar(d.Name()) {
			return nil
		}
		st, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if st.Size() < opts.MinSize {
			slog.Debug("skip compressing, too small", "path", path, "size", st.Size(), "min_size", opts.MinSize)
			return nil
		}
		if opts.MaxSize > 0 && st.Size() > opts.MaxSize {
			slog.Info("skip compressing, too large", "path", path, "size", st.Size(), "max_size", opts.MaxSize)
			return nil
		}
		out, err := compressFile(ctx, fsys, opts, path, st)
		if err != nil {
			return err
		}
		created = append(created, out...)
		return nil
	})
	if err != nil {
		return created, fmt.Errorf("walk %s: %w", opts.Dir, err)
	}
	return created, nil
}

func compressFile(ctx context.Context, fsys fs.StatFS, opts Options, path string, orig fs.FileInfo) ([]string, error) {
	created := []string{}
	absfn := filepath.Join(opts.Dir, filepath.FromSlash(path))
	for _, c := range opts.compressors() {
		outfn := path + c.Ext
		if st, err := fsys.Stat(outfn); err == nil && st.ModTime().After(orig.ModTime()) {
			slog.Debug("skip compressing, up-to-date", "path", path, "compressed", outfn)
			continue
		}
		cmd := append(append([]string{}, c.Command...), absfn)
		if opts.DryRun {
			slog.Info("dry-run: would compress file", "path", path, "cmd", cmd)
			created = append(created, outfn)
			continue
		}
		if err := exec.CommandContext(ctx, cmd[0], cmd[1:]...).Run(); err != nil {
			return created, fmt.Errorf("compress %s with %v: %w", path, cmd, err)
		}
		st, err := fsys.Stat(outfn)
		if err != nil {
			return created, fmt.Errorf("stat %s: %w", outfn, err)
		}
		if st.Size() >= orig.Size() {
			slog.Info("compressed file is not smaller than original, removing", "path", path, "compressed", outfn, "original_size", orig.Size(), "compressed_size", st.Size())
			if err := os.Remove(filepath.Join(opts.Dir, filepath.FromSlash(outfn))); err != nil {
				return created, fmt.Errorf("remove %s: %w", outfn, err)
			}
			continue
		}
		slog.Info("compressed file created", "path", path, "compressed", outfn, "original_size", orig.Size(), "compressed_size", st.Size())
		created = append(created, outfn)
	}
	return created, nil
}

// Cleanup removes sidecars under opts.Dir. With OldOnly, sidecars newer
// than their original are kept. It returns the removed paths.
func Cleanup(opts Options) ([]string, error) {
	fsys := os.DirFS(opts.Dir).(fs.StatFS)
	removed := []string{}
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsSidecar(d.Name()) {
			return nil
		}
		orig := path[:len(path)-len(filepath.Ext(path))]
		if opts.OldOnly {
			ost, oerr := fsys.Stat(orig)
			st, serr := d.Info()
			if oerr == nil && serr == nil && st.ModTime().After(ost.ModTime()) {
				slog.Debug("skip cleanup, up-to-date", "path", orig, "compressed", path)
				return nil
			}
		}
		if opts.DryRun {
			slog.Info("dry-run: would cleanup file", "path", orig, "compressed", path)
			removed = append(removed, path)
			return nil
		}
		if err := os.Remove(filepath.Join(opts.Dir, filepath.FromSlash(path))); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		slog.Info("removed compressed file", "path", orig, "compressed", path)
		removed = append(removed, path)
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("walk %s: %w", opts.Dir, err)
	}
	return removed, nil
}
