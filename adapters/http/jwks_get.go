package gatehttp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	jwtkit "github.com/PaulFidika/contentgate/jwt"
)

// JWKSHandler publishes the RSA verification keys so other services can
// verify tokens minted with the active signing key. The document is rendered
// once; its hash is the ETag.
func JWKSHandler(keys jwtkit.VerificationKeys) (http.Handler, error) {
	set, err := keys.PublishedKeys()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(set)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	}), nil
}
