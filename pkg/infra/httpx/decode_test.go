package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipCompress(data []byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write(data)
	_ = gz.Close()
	return buf.Bytes()
}

func brCompress(data []byte) []byte {
	var buf bytes.Buffer
	br := brotli.NewWriter(&buf)
	_, _ = br.Write(data)
	_ = br.Close()
	return buf.Bytes()
}

func zstdCompress(data []byte) []byte {
	var buf bytes.Buffer
	zw, _ := zstd.NewWriter(&buf)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func zlibCompress(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func rawDeflateCompress(data []byte) []byte {
	var buf bytes.Buffer
	dw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	_, _ = dw.Write(data)
	_ = dw.Close()
	return buf.Bytes()
}

func TestDecodeBody(t *testing.T) {
	plain := []byte(`{"event":"invoice.paid","id":42}`)
	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"gzip", "gzip", gzipCompress(plain)},
		{"brotli", "br", brCompress(plain)},
		{"zstd", "zstd", zstdCompress(plain)},
		{"zlib deflate", "deflate", zlibCompress(plain)},
		{"raw deflate", "deflate", rawDeflateCompress(plain)},
		{"chain", "gzip, br", brCompress(gzipCompress(plain))},
		{"identity inside chain", "identity, GZIP", gzipCompress(plain)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, changed, err := DecodeBody(tt.encoding, tt.body, 1<<20)
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, plain, decoded)
		})
	}
}

func TestDecodeBody_NoEncoding(t *testing.T) {
	plain := []byte("hello")
	decoded, changed, err := DecodeBody("", plain, 10)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, plain, decoded)
}

func TestDecodeBody_Errors(t *testing.T) {
	_, _, err := DecodeBody("compress", []byte("x"), 0)
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)

	_, _, err = DecodeBody("gzip", []byte("not gzip"), 0)
	assert.Error(t, err)

	bomb := gzipCompress([]byte(strings.Repeat("A", 1<<16)))
	_, _, err = DecodeBody("gzip", bomb, 1024)
	assert.ErrorIs(t, err, ErrDecodedTooLarge)
}
