package themestatic

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
)

type ThemeStatic struct {
	next    http.Handler
	hdl     *Handler
	methods http.Handler
	name    string
}

// New builds the themed handler for config.RootDir. GET and HEAD requests
// are served from the directory; other methods go to next.
func New(ctx context.Context, next http.Handler, config *Config, name string) (http.Handler, error) {
	root, err := config.Root()
	if err != nil {
		return nil, err
	}
	slog.Info("themestatic plugin initialized", "name", name, "rootdir", root)
	fsys := os.DirFS(root).(fs.StatFS)
	hdl := NewHandler(fsys, config.RequiredFiles())
	return &ThemeStatic{
		next:    next,
		hdl:     hdl,
		methods: Methods(hdl),
		name:    name,
	}, nil
}

func (t *ThemeStatic) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		t.hdl.ServeHTTP(res, req)
	default:
		if t.next == nil {
			t.methods.ServeHTTP(res, req)
			return
		}
		t.next.ServeHTTP(res, req)
	}
}

// Methods restricts h to GET and HEAD; other methods get 405 with an Allow header.
func Methods(h http.Handler) http.Handler {
	return handlers.MethodHandler{
		http.MethodGet:  h,
		http.MethodHead: h,
	}
}
