// Package gatehttp holds net/http handlers that do not need the gin stack.
package gatehttp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/PaulFidika/contentgate/objectstore"
	"github.com/sirupsen/logrus"
)

// ObjectsHandler serves files issued by a LocalBackend at /objects/{path}.
// Range, HEAD and If-Modified-Since are handled by http.ServeContent.
func ObjectsHandler(b *objectstore.LocalBackend, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		p, ok := strings.CutPrefix(r.URL.Path, "/objects/")
		if !ok {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if err := b.Verify(p, q.Get("exp"), q.Get("sig")); err != nil {
			log.WithError(err).WithField("path", p).Debug("object request rejected")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		f, fi, err := b.Open(p)
		if errors.Is(err, objectstore.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			log.WithError(err).WithField("path", p).Warn("object open failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		w.Header().Set("Cache-Control", "private, no-transform")
		http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
	})
}
