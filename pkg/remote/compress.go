package remote

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// acceptEncoding is sent on every request. Setting it by hand turns off
// net/http's transparent gzip, so responseBody decodes both codings itself.
const acceptEncoding = "zstd, gzip"

type zstdReadCloser struct {
	dec  *zstd.Decoder
	body io.Closer
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.body.Close()
}

type gzipReadCloser struct {
	zr   *gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.zr.Read(p)
}

func (g *gzipReadCloser) Close() error {
	err := g.zr.Close()
	if cerr := g.body.Close(); err == nil {
		err = cerr
	}
	return err
}

// responseBody returns resp.Body wrapped in a decoder for its
// Content-Encoding. Closing the result closes the underlying body.
func responseBody(resp *http.Response) (io.ReadCloser, error) {
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return resp.Body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip response: %w", err)
		}
		return &gzipReadCloser{zr: zr, body: resp.Body}, nil
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open zstd response: %w", err)
		}
		return &zstdReadCloser{dec: dec, body: resp.Body}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}
