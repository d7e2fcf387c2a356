package themestatic

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Server is the default file-serving primitive the themed Handler falls back to.
// Errors it wants to show to the client are signalled through WriteHeader;
// a returned error means serving failed unexpectedly.
type Server interface {
	Serve(w http.ResponseWriter, r *http.Request) error
}

// FileServer serves files from fsys, preferring precompressed sidecar files
// when the client accepts their encoding.
type FileServer struct {
	fs    fs.StatFS
	files http.Handler
}

func NewFileServer(fsys fs.StatFS) *FileServer {
	return &FileServer{
		fs:    fsys,
		files: http.FileServer(http.FS(fsys)),
	}
}

type encodeInfo struct {
	ext    string
	encode string
	order  int
}

var sortorder = map[string]encodeInfo{
	// brotli vs zstd: which is winner?
	"br":       {ext: ".br", encode: "br", order: 1},
	"zstd":     {ext: ".zst", encode: "zstd", order: 2},
	"gzip":     {ext: ".gz", encode: "gzip", order: 3},
	"deflate":  {ext: ".deflate", encode: "deflate", order: 4},
	"compress": {ext: ".Z", encode: "compress", order: 5},
}

func accepts(accept string) []encodeInfo {
	res := []encodeInfo{}
	for _, v := range strings.Split(accept, ",") {
		name, _, _ := strings.Cut(v, ";")
		if ei, ok := sortorder[strings.TrimSpace(name)]; ok {
			res = append(res, ei)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].order < res[j].order
	})
	return res
}

// resolve maps a request path to a name inside the served tree.
func resolve(p string) string {
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" {
		return "index.html"
	}
	if strings.HasSuffix(p, "/") {
		return name + "/index.html"
	}
	return name
}

func contentType(name string) string {
	if ctype := mime.TypeByExtension(filepath.Ext(name)); ctype != "" {
		return ctype
	}
	return "application/octet-stream"
}

func (s *FileServer) Serve(w http.ResponseWriter, r *http.Request) error {
	served, err := s.serveEncoded(w, r)
	if err != nil || served {
		return err
	}
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "."
	}
	// http.FileServer answers these with 403 or 500 of its own
	fp, err := s.fs.Open(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("open %s: %w", name, err)
		}
	} else {
		fp.Close()
	}
	// http.FileServer redirects .../index.html to .../
	if strings.HasSuffix(r.URL.Path, "/index.html") {
		return s.serveIndex(w, r, name)
	}
	s.files.ServeHTTP(w, r)
	return nil
}

func (s *FileServer) serveIndex(w http.ResponseWriter, r *http.Request, name string) error {
	info, err := s.fs.Stat(name)
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return nil
	}
	fp, err := s.fs.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer fp.Close()
	w.Header().Set("Content-Type", contentType(name))
	return serveContent(w, r, name, info, fp)
}

// serveContent uses http.ServeContent when fp can seek, so ranges and
// conditional requests work, and copies it whole otherwise.
func serveContent(w http.ResponseWriter, r *http.Request, name string, info fs.FileInfo, fp fs.File) error {
	if rs, ok := fp.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, info.ModTime(), rs)
		return nil
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, fp); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	return nil
}

func (s *FileServer) serveEncoded(w http.ResponseWriter, r *http.Request) (bool, error) {
	encodings := accepts(r.Header.Get("Accept-Encoding"))
	if len(encodings) == 0 {
		return false, nil
	}
	name := resolve(r.URL.Path)
	info, err := s.fs.Stat(name)
	if err != nil || !info.Mode().IsRegular() {
		return false, nil
	}
	for _, ae := range encodings {
		cinfo, err := s.fs.Stat(name + ae.ext)
		if err != nil || !cinfo.Mode().IsRegular() {
			continue
		}
		if cinfo.ModTime().Round(time.Second).Before(info.ModTime().Round(time.Second)) {
			slog.Warn("encoded file is older than original", "path", name, "ext", ae.ext, "diff", info.ModTime().Sub(cinfo.ModTime()))
			continue
		}
		if cinfo.Size() > info.Size() {
			slog.Info("encoded file is larger than original, skip", "path", name, "ext", ae.ext, "original", info.Size(), "encoded", cinfo.Size())
			continue
		}
		fp, err := s.fs.Open(name + ae.ext)
		if err != nil {
			return false, fmt.Errorf("open %s%s: %w", name, ae.ext, err)
		}
		defer fp.Close()
		hdr := w.Header()
		hdr.Set("Content-Type", contentType(name))
		hdr.Set("Content-Encoding", ae.encode)
		hdr.Add("Vary", "Accept-Encoding")
		slog.Debug("encoded file", "path", name, "ext", ae.ext)
		return true, serveContent(w, r, name+ae.ext, cinfo, fp)
	}
	return false, nil
}
