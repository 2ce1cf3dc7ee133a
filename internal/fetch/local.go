package fetch

import (
	"context"
	stderrors "errors"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/conneroisu/stitch/internal/errors"
)

// LocalFetcher reads URLs under Base from a filesystem and hands every other
// URL to Next. It lets a server that also serves the site fetch fragments
// without a round trip to itself.
type LocalFetcher struct {
	Base *url.URL
	FS   http.FileSystem
	// Next fetches URLs outside Base. Nil means such URLs fail.
	Next Fetcher
	// MaxSize rejects larger files. Zero means DefaultMaxBody.
	MaxSize int64
}

// Fetch implements Fetcher.
func (f *LocalFetcher) Fetch(ctx context.Context, u *url.URL) (string, error) {
	name, ok := f.local(u)
	if !ok {
		if f.Next == nil {
			return "", errors.NewFetchError(errors.ErrCodeFetch, "Failed to load", nil).WithURL(u.String())
		}
		return f.Next.Fetch(ctx, u)
	}
	if err := ctx.Err(); err != nil {
		return "", errors.WrapFetch(err, u.String())
	}

	file, err := f.FS.Open(name)
	if err != nil {
		return "", f.openError(u, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", errors.WrapFetch(err, u.String())
	}
	if info.IsDir() {
		return "", f.openError(u, fs.ErrNotExist)
	}

	return readBody(file, f.MaxSize, u)
}

// local maps u to a filesystem name when it lies under Base.
func (f *LocalFetcher) local(u *url.URL) (string, bool) {
	if f.Base == nil || f.FS == nil {
		return "", false
	}
	if !strings.EqualFold(u.Scheme, f.Base.Scheme) || !strings.EqualFold(u.Host, f.Base.Host) {
		return "", false
	}
	basePath := f.Base.Path
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, basePath) {
		return "", false
	}
	return path.Clean("/" + strings.TrimPrefix(p, basePath)), true
}

func (f *LocalFetcher) openError(u *url.URL, err error) error {
	code := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		code = http.StatusNotFound
	case stderrors.Is(err, fs.ErrPermission):
		code = http.StatusForbidden
	}
	status := &StatusError{URL: u.String(), StatusCode: code}
	return errors.NewFetchError(errors.ErrCodeFetchStatus, "Failed to load", status).
		WithURL(u.String()).
		WithContext("status", code)
}
