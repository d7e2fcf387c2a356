package themestatic

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	NotFoundPage = "404.html"
	ErrorPage    = "500.html"
)

// DefaultRequired lists the files a healthy site must have.
var DefaultRequired = []string{
	"index.html",
	NotFoundPage,
	ErrorPage,
	"styles/main.css",
	"assets/logo.svg",

	// core pages
	"pages/profile.html",
	"pages/analytics.html",
	"pages/activity.html",
	"pages/transactions.html",
	"pages/projects.html",
}

var assetExts = []string{
	".css", ".js", ".mjs", ".svg", ".png", ".jpg", ".jpeg", ".gif",
	".webp", ".ico", ".woff", ".woff2", ".ttf", ".map",
}

// Handler serves a static tree and replaces error responses with the
// tree's own 404.html and 500.html. If required files were missing when the
// Handler was created, every non-asset request gets 500.html.
type Handler struct {
	fs      fs.StatFS
	next    Server
	missing []string
}

// NewHandler scans fsys for required files once and serves it with a FileServer.
func NewHandler(fsys fs.StatFS, required []string) *Handler {
	return NewHandlerWithServer(fsys, required, NewFileServer(fsys))
}

func NewHandlerWithServer(fsys fs.StatFS, required []string, next Server) *Handler {
	h := &Handler{
		fs:      fsys,
		next:    next,
		missing: missingRequired(fsys, required),
	}
	if len(h.missing) != 0 {
		slog.Warn("required files missing, serving maintenance page", "missing", h.missing)
	}
	slog.Info("handler created", "root", fsys, "required", len(required))
	return h
}

func missingRequired(fsys fs.StatFS, required []string) []string {
	missing := []string{}
	for _, name := range required {
		info, err := fsys.Stat(path.Clean(name))
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, name)
		}
	}
	return missing
}

// Missing returns the required files that were absent at construction.
func (h *Handler) Missing() []string {
	return append([]string(nil), h.missing...)
}

func (h *Handler) Degraded() bool {
	return len(h.missing) != 0
}

func isAsset(p string) bool {
	for _, ext := range assetExts {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func (h *Handler) shouldForce500(p string) bool {
	if len(h.missing) == 0 {
		return false
	}
	p, _, _ = strings.Cut(p, "?")
	return !isAsset(p)
}

// sendThemedFile writes name from the served tree as a complete response
// with the given status. It reports false, having written nothing, when the
// file is not a regular file or cannot be read.
func (h *Handler) sendThemedFile(w http.ResponseWriter, r *http.Request, code int, name string) bool {
	info, err := h.fs.Stat(name)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	size := info.Size()
	var body []byte
	if r.Method != http.MethodHead {
		body, err = fs.ReadFile(h.fs, name)
		if err != nil {
			slog.Error("read themed page", "path", name, "error", err)
			return false
		}
		size = int64(len(body))
	}
	hdr := w.Header()
	hdr.Del("Content-Encoding")
	hdr.Set("Content-Type", contentType(name))
	hdr.Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(code)
	if len(body) != 0 {
		if _, err := w.Write(body); err != nil {
			slog.Error("write themed page", "path", name, "code", code, "error", err)
			return false
		}
	}
	slog.Debug("themed page", "path", r.URL.Path, "page", name, "code", code)
	return true
}

// sendError substitutes the themed page for a status the default server
// signalled. It reports false when the default response should go through.
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, code int) bool {
	switch code {
	case http.StatusNotFound:
		return h.sendThemedFile(w, r, code, NotFoundPage)
	case http.StatusInternalServerError:
		return h.sendThemedFile(w, r, code, ErrorPage)
	}
	return false
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (h *Handler) serveDefault(w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			err = &panicError{value: v}
		}
	}()
	return h.next.Serve(w, r)
}

func (h *Handler) serveHTTP(res http.ResponseWriter, req *http.Request) int {
	if h.shouldForce500(req.URL.Path) {
		if h.sendThemedFile(res, req, http.StatusInternalServerError, ErrorPage) {
			return http.StatusInternalServerError
		}
	}
	iw := &errorInterceptor{ResponseWriter: res, h: h, r: req}
	err := h.serveDefault(iw, req)
	if err == nil {
		return iw.code()
	}
	slog.Error("serve failed", "path", req.URL.Path, "error", err)
	if iw.status == 0 && h.sendThemedFile(res, req, http.StatusInternalServerError, ErrorPage) {
		return http.StatusInternalServerError
	}
	var pe *panicError
	if errors.As(err, &pe) {
		panic(pe.value)
	}
	if iw.status == 0 {
		http.Error(res, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return http.StatusInternalServerError
	}
	return iw.code()
}

func (h *Handler) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	st := time.Now()
	code := h.serveHTTP(res, req)
	slog.Info("accesslog", "method", req.Method, "path", req.URL.Path, "remote", req.RemoteAddr, "status", code, "degraded", h.Degraded(), "elapsed_ns", time.Since(st))
}

// errorInterceptor hands 404 and 500 statuses written by the default server
// to Handler.sendError and drops the default body once a themed page went out.
type errorInterceptor struct {
	http.ResponseWriter
	h      *Handler
	r      *http.Request
	status int
	themed bool
}

func (w *errorInterceptor) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
	if w.h.sendError(w.ResponseWriter, w.r, code) {
		w.themed = true
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *errorInterceptor) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if w.themed {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *errorInterceptor) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *errorInterceptor) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
