// Package assets fetches and decodes the images referenced by the avatar table and the
// background world image, caching the results by resource reference.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/webp" // register decoder
)

// ErrUnsupported is returned for references the resolver cannot interpret.
var ErrUnsupported = errors.New("unsupported resource reference")

// maxAssetBytes bounds a single download.
const maxAssetBytes = 8 << 20

// Fetcher returns the raw bytes of a resource.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Resolver fetches data: URIs, absolute http(s) URLs, and references relative to a base that
// is either an http(s) URL or a local directory.
type Resolver struct {
	base   string
	client *http.Client
}

// NewResolver builds a resolver for base. A nil client means a client with a 15s timeout.
func NewResolver(base string, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Resolver{base: base, client: client}
}

// Fetch implements Fetcher.
func (r *Resolver) Fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == "":
		return nil, fmt.Errorf("%w: empty", ErrUnsupported)
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return r.get(ctx, ref)
	case isHTTP(r.base):
		base, err := url.Parse(r.base)
		if err != nil {
			return nil, fmt.Errorf("asset base: %w", err)
		}
		rel, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return r.get(ctx, base.ResolveReference(rel).String())
	default:
		path := filepath.Join(r.base, filepath.FromSlash(strings.TrimPrefix(ref, "/")))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read asset: %w", err)
		}
		return data, nil
	}
}

func (r *Resolver) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", u, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// decodeDataURI supports the base64 form: data:image/png;base64,....
func decodeDataURI(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: data URI without payload", ErrUnsupported)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: only base64 data URIs are supported", ErrUnsupported)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("data URI: %w", err)
	}
	return data, nil
}

// Decode turns image bytes into an image. PNG, JPEG, GIF and WebP are recognised.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
