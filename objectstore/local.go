package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrExpired      = errors.New("objectstore: signed url expired")
	ErrBadSignature = errors.New("objectstore: bad signature")
)

const localKeyInfo = "contentgate/objects"

// LocalBackend serves a directory tree through HMAC-signed URLs of the form
// {publicBase}/objects/{path}?exp={unix}&sig={mac}. It lets the pipeline run
// without an external store; adapters/http serves the URLs it issues.
type LocalBackend struct {
	root       string
	publicBase string
	key        []byte
	now        func() time.Time
}

// NewLocalBackend derives the URL signing key from secret with HKDF, so the
// raw secret shared with other components never signs URLs directly.
func NewLocalBackend(root, publicBase string, secret []byte) (*LocalBackend, error) {
	if len(secret) == 0 {
		return nil, errors.New("objectstore: local backend needs a signing secret")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("objectstore: root: %w", err)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(localKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("objectstore: derive key: %w", err)
	}
	return &LocalBackend{
		root:       abs,
		publicBase: strings.TrimRight(publicBase, "/"),
		key:        key,
		now:        time.Now,
	}, nil
}

// cleanPath rejects anything that could escape the root.
func cleanPath(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" || strings.Contains(p, "\\") {
		return "", ErrNotFound
	}
	c := path.Clean(p)
	if c != p || c == "." || strings.HasPrefix(c, "../") || c == ".." {
		return "", ErrNotFound
	}
	return c, nil
}

func (b *LocalBackend) file(p string) string {
	return filepath.Join(b.root, filepath.FromSlash(p))
}

func (b *LocalBackend) Sign(ctx context.Context, p string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(b.file(c))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && fi.IsDir()) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("objectstore: stat %s: %w", c, err)
	}
	exp := strconv.FormatInt(b.now().Add(ttl).Unix(), 10)
	q := url.Values{"exp": {exp}, "sig": {b.mac(c, exp)}}
	return b.publicBase + "/objects/" + escapePath(c) + "?" + q.Encode(), nil
}

func (b *LocalBackend) mac(p, exp string) string {
	m := hmac.New(sha256.New, b.key)
	m.Write([]byte(p))
	m.Write([]byte{'\n'})
	m.Write([]byte(exp))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

// Verify checks a signed request for p.
func (b *LocalBackend) Verify(p, exp, sig string) error {
	c, err := cleanPath(p)
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal([]byte(sig), []byte(b.mac(c, exp))) {
		return ErrBadSignature
	}
	ts, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if !b.now().Before(time.Unix(ts, 0)) {
		return ErrExpired
	}
	return nil
}

// Open returns the file behind a verified path. The caller closes it.
func (b *LocalBackend) Open(p string) (*os.File, fs.FileInfo, error) {
	c, err := cleanPath(p)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(b.file(c))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, fi, nil
}
