package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrDecodedTooLarge     = errors.New("decoded body exceeds limit")
	ErrUnsupportedEncoding = errors.New("unsupported content-encoding")
)

// DecodeBody undoes a Content-Encoding chain such as "gzip, br", last coding
// first. Every stage output is capped at limit bytes (no cap when limit <= 0).
// It reports whether the body changed.
func DecodeBody(contentEncoding string, body []byte, limit int64) ([]byte, bool, error) {
	if strings.TrimSpace(contentEncoding) == "" {
		return body, false, nil
	}
	codings := strings.Split(contentEncoding, ",")
	changed := false
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.TrimSpace(strings.ToLower(codings[i]))
		var (
			r   io.Reader
			c   io.Closer
			err error
		)
		switch coding {
		case "", "identity":
			continue
		case "br":
			r = brotli.NewReader(bytes.NewReader(body))
		case "gzip", "x-gzip":
			var gr *gzip.Reader
			gr, err = gzip.NewReader(bytes.NewReader(body))
			r, c = gr, gr
		case "zstd":
			var dec *zstd.Decoder
			dec, err = zstd.NewReader(bytes.NewReader(body))
			if err == nil {
				r, c = dec, closerFunc(dec.Close)
			}
		case "deflate":
			// RFC 9110 deflate is zlib-wrapped, raw DEFLATE is common in the wild.
			var zr io.ReadCloser
			if zr, err = zlib.NewReader(bytes.NewReader(body)); err != nil {
				zr, err = flate.NewReader(bytes.NewReader(body)), nil
			}
			r, c = zr, zr
		default:
			return nil, false, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, coding)
		}
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", coding, err)
		}

		out, err := readLimited(r, limit)
		if c != nil {
			if cerr := c.Close(); err == nil && cerr != nil {
				err = cerr
			}
		}
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", coding, err)
		}
		body = out
		changed = true
	}
	return body, changed, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, ErrDecodedTooLarge
	}
	return out, nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
