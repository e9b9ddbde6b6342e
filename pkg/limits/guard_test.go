package limits_test

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/NeuralTrust/gateguard/pkg/limits"
	"github.com/NeuralTrust/gateguard/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T, mutate func(*limits.Config)) *limits.Guard {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := limits.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := limits.NewGuard(logger, cfg)
	require.NoError(t, err)
	return g
}

func nested(depth int) string {
	return strings.Repeat(`{"a":`, depth) + "1" + strings.Repeat("}", depth)
}

func nestedArrays(depth int) string {
	return strings.Repeat("[", depth) + strings.Repeat("]", depth)
}

func violationOf(t *testing.T, err error) *limits.Violation {
	t.Helper()
	require.Error(t, err)
	v, ok := err.(*limits.Violation)
	require.True(t, ok, "expected *limits.Violation, got %T", err)
	return v
}

func TestCheckMethod(t *testing.T) {
	g := newGuard(t, nil)
	assert.NoError(t, g.CheckMethod("post"))
	v := violationOf(t, g.CheckMethod("TRACE"))
	assert.Equal(t, http.StatusMethodNotAllowed, v.Status)
	assert.Equal(t, types.CodeMethodNotAllowed, v.Code)
}

func TestCheckURLLength(t *testing.T) {
	g := newGuard(t, func(c *limits.Config) { c.MaxURLLength = 20 })
	assert.NoError(t, g.CheckURLLength("/api/v1/items?x=1"))
	assert.NoError(t, g.CheckURLLength(strings.Repeat("a", 20)))
	v := violationOf(t, g.CheckURLLength(strings.Repeat("a", 21)))
	assert.Equal(t, http.StatusRequestURITooLong, v.Status)
	assert.Equal(t, int64(21), v.Actual)
}

func TestCheckContentType(t *testing.T) {
	g := newGuard(t, nil)
	tests := []struct {
		name        string
		contentType string
		hasBody     bool
		ok          bool
	}{
		{"json with charset", "application/json; charset=utf-8", true, true},
		{"upper case", "Application/JSON", true, true},
		{"wildcard", "text/csv", true, true},
		{"multipart with boundary", "multipart/form-data; boundary=xyz", true, true},
		{"not allowed", "application/xml", true, false},
		{"missing with body", "", true, false},
		{"missing without body", "", false, true},
		{"header without body still checked", "application/xml", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CheckContentType(tt.contentType, tt.hasBody)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			v := violationOf(t, err)
			assert.Equal(t, http.StatusUnsupportedMediaType, v.Status)
		})
	}
}

func TestCheckBodySize(t *testing.T) {
	g := newGuard(t, func(c *limits.Config) { c.MaxBodySize = 100 })
	assert.NoError(t, g.CheckBodySize(100, 0))
	assert.NoError(t, g.CheckBodySize(0, 100))

	v := violationOf(t, g.CheckBodySize(10, 101))
	assert.Equal(t, http.StatusRequestEntityTooLarge, v.Status)
	assert.Equal(t, int64(101), v.Actual)

	v = violationOf(t, g.CheckBodySize(5000, 10))
	assert.Equal(t, int64(5000), v.Actual, "declared length counts even when the body was cut short")
}

func TestCheckJSONDepth(t *testing.T) {
	g := newGuard(t, func(c *limits.Config) { c.MaxJSONDepth = 5 })

	assert.NoError(t, g.CheckJSONDepth([]byte(nested(5))))
	assert.NoError(t, g.CheckJSONDepth([]byte(nestedArrays(5))))
	assert.NoError(t, g.CheckJSONDepth([]byte(`"just a string"`)))
	assert.NoError(t, g.CheckJSONDepth([]byte(`{"a":"[[[[[[[[","b":"}}}}"}`)), "brackets inside strings are ignored")
	assert.NoError(t, g.CheckJSONDepth([]byte(`{"a":"\"[[[[[[\\"}`)))

	v := violationOf(t, g.CheckJSONDepth([]byte(nested(6))))
	assert.Equal(t, types.CodeJSONTooDeep, v.Code)
	assert.Equal(t, int64(6), v.Actual)

	v = violationOf(t, g.CheckJSONDepth([]byte(nestedArrays(6))))
	assert.Equal(t, http.StatusBadRequest, v.Status)
}

func TestCheckJSONDepth_AdversarialNestingTerminates(t *testing.T) {
	g := newGuard(t, nil)
	body := []byte(nestedArrays(200_000))
	v := violationOf(t, g.CheckJSONDepth(body))
	assert.Equal(t, int64(200_000), v.Actual)

	v = violationOf(t, g.CheckJSONDepth([]byte(strings.Repeat("[", 100_000))))
	assert.Equal(t, types.CodeMalformedBody, v.Code)
}

func TestCheckArrayLength(t *testing.T) {
	g := newGuard(t, func(c *limits.Config) { c.MaxArrayLength = 3 })

	assert.NoError(t, g.CheckArrayLength([]byte(`[1,2,3]`)))
	assert.NoError(t, g.CheckArrayLength([]byte(`[]`)))
	assert.NoError(t, g.CheckArrayLength([]byte(`[[1,2,3],[4,5,6],{"a":[7,8,9]}]`)))
	assert.NoError(t, g.CheckArrayLength([]byte(`[{"a":1,"b":2,"c":3,"d":4}]`)), "object members are not array elements")
	assert.NoError(t, g.CheckArrayLength([]byte(`["a,b,c,d"]`)))

	v := violationOf(t, g.CheckArrayLength([]byte(`[1,2,3,4]`)))
	assert.Equal(t, types.CodeArrayTooLong, v.Code)
	assert.Equal(t, int64(4), v.Actual)

	v = violationOf(t, g.CheckArrayLength([]byte(`{"deep":[[1],[2],[[1,2,3,4,5]]]}`)))
	assert.Equal(t, int64(5), v.Actual)
}

func TestValidateRequest_AggregatesViolations(t *testing.T) {
	g := newGuard(t, func(c *limits.Config) {
		c.MaxURLLength = 10
		c.MaxBodySize = 5
	})
	res := g.ValidateRequest(limits.Request{
		Method:   "TRACE",
		URL:      "/a/very/long/url",
		Headers:  map[string]string{"content-type": "application/xml"},
		Body:     []byte("<x/>!!"),
		BodySize: 6,
	})

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 4)
	assert.Equal(t, limits.CheckNameMethod, res.Errors[0].Check)
	assert.Equal(t, limits.CheckNameURLLength, res.Errors[1].Check)
	assert.Equal(t, limits.CheckNameContentType, res.Errors[2].Check)
	assert.Equal(t, limits.CheckNameBodySize, res.Errors[3].Check)
	assert.Equal(t, http.StatusMethodNotAllowed, res.Status())
}

func TestValidateRequest_JSONBody(t *testing.T) {
	g := newGuard(t, func(c *limits.Config) {
		c.MaxJSONDepth = 3
		c.MaxArrayLength = 2
	})
	headers := map[string]string{"Content-Type": "application/json"}

	res := g.ValidateRequest(limits.Request{Method: "POST", URL: "/api", Headers: headers, Body: []byte(`{"ok":[1,2]}`)})
	assert.True(t, res.Valid)
	assert.Equal(t, http.StatusOK, res.Status())

	res = g.ValidateRequest(limits.Request{Method: "POST", URL: "/api", Headers: headers, Body: []byte(`{"a":{"b":{"c":[1,2,3]}}}`)})
	require.Len(t, res.Errors, 2)
	assert.Equal(t, limits.CheckNameJSONDepth, res.Errors[0].Check)
	assert.Equal(t, limits.CheckNameArrayLength, res.Errors[1].Check)

	res = g.ValidateRequest(limits.Request{Method: "POST", URL: "/api", Headers: headers, Body: []byte(`{"a":tru}`)})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, limits.CheckNameJSONSyntax, res.Errors[0].Check)
	assert.Equal(t, http.StatusBadRequest, res.Status())

	res = g.ValidateRequest(limits.Request{Method: "POST", URL: "/api", Headers: map[string]string{"Content-Type": "text/plain"}, Body: []byte(`{{{{{{`)})
	assert.True(t, res.Valid, "non JSON bodies are not parsed")
}

func TestValidateRequest_CompressedJSON(t *testing.T) {
	g := newGuard(t, func(c *limits.Config) {
		c.MaxJSONDepth = 3
		c.MaxBodySize = 1 << 10
	})
	gz := func(s string) []byte {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		_, _ = w.Write([]byte(s))
		_ = w.Close()
		return buf.Bytes()
	}
	headers := map[string]string{"Content-Type": "application/json", "Content-Encoding": "gzip"}

	res := g.ValidateRequest(limits.Request{Method: "POST", URL: "/api", Headers: headers, Body: gz(nested(4))})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, limits.CheckNameJSONDepth, res.Errors[0].Check)

	res = g.ValidateRequest(limits.Request{Method: "POST", URL: "/api", Headers: headers, Body: gz(`[` + strings.Repeat(`"xxxxxxxx",`, 500) + `1]`)})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.Errors[0].Status)
	assert.Equal(t, int64(1<<10+1), res.Errors[0].Actual, "decoding stops one byte past the cap")

	res = g.ValidateRequest(limits.Request{
		Method:  "POST",
		URL:     "/api",
		Headers: map[string]string{"Content-Type": "application/json", "Content-Encoding": "compress"},
		Body:    []byte("x"),
	})
	require.Len(t, res.Errors, 1)
	assert.Equal(t, http.StatusUnsupportedMediaType, res.Errors[0].Status)
}

func TestNewGuard_RejectsUnsupportedDepth(t *testing.T) {
	_, err := limits.NewGuard(logrus.New(), limits.Config{MaxJSONDepth: 10_000})
	assert.Error(t, err)
}
