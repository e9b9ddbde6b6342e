package limits

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/NeuralTrust/gateguard/pkg/infra/httpx"
	"github.com/NeuralTrust/gateguard/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
)

type Check string

const (
	CheckNameMethod      Check = "method"
	CheckNameURLLength   Check = "url_length"
	CheckNameContentType Check = "content_type"
	CheckNameBodySize    Check = "body_size"
	CheckNameJSONSyntax  Check = "json_syntax"
	CheckNameJSONDepth   Check = "json_depth"
	CheckNameArrayLength Check = "array_length"
)

// Violation is one failed structural check. It carries the status the
// request is rejected with.
type Violation struct {
	Check   Check           `json:"check"`
	Status  int             `json:"-"`
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
	Limit   int64           `json:"limit,omitempty"`
	Actual  int64           `json:"actual,omitempty"`
}

func (v *Violation) Error() string {
	return v.Message
}

type Result struct {
	Valid  bool         `json:"valid"`
	Errors []*Violation `json:"errors"`
}

// Status is the status of the first violation, or 200 when valid.
func (r Result) Status() int {
	if len(r.Errors) == 0 {
		return http.StatusOK
	}
	return r.Errors[0].Status
}

type Config struct {
	AllowedMethods      []string
	AllowedContentTypes []string
	MaxBodySize         int64
	MaxURLLength        int
	MaxJSONDepth        int
	MaxArrayLength      int
}

func DefaultConfig() Config {
	return Config{
		AllowedMethods:      []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedContentTypes: []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data", "text/*"},
		MaxBodySize:         10 << 20,
		MaxURLLength:        2048,
		MaxJSONDepth:        20,
		MaxArrayLength:      1000,
	}
}

type Request struct {
	Method   string
	URL      string
	Headers  map[string]string
	Body     []byte
	BodySize int64
}

type Guard struct {
	logger       *logrus.Logger
	cfg          Config
	methods      map[string]struct{}
	contentTypes []string
}

func NewGuard(logger *logrus.Logger, cfg Config) (*Guard, error) {
	if cfg.MaxJSONDepth > fastjson.MaxDepth {
		return nil, fmt.Errorf("max json depth %d is above the supported maximum of %d", cfg.MaxJSONDepth, fastjson.MaxDepth)
	}
	g := &Guard{
		logger:  logger,
		cfg:     cfg,
		methods: make(map[string]struct{}, len(cfg.AllowedMethods)),
	}
	for _, m := range cfg.AllowedMethods {
		g.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
	}
	for _, ct := range cfg.AllowedContentTypes {
		if ct = strings.ToLower(strings.TrimSpace(ct)); ct != "" {
			g.contentTypes = append(g.contentTypes, ct)
		}
	}
	return g, nil
}

func (g *Guard) Config() Config {
	return g.cfg
}

// ValidateRequest runs every check and collects all violations instead of
// stopping at the first one.
func (g *Guard) ValidateRequest(req Request) Result {
	var violations []*Violation
	add := func(err error) {
		var v *Violation
		if errors.As(err, &v) {
			violations = append(violations, v)
		}
	}

	add(g.CheckMethod(req.Method))
	add(g.CheckURLLength(req.URL))

	contentType := header(req.Headers, "Content-Type")
	hasBody := req.BodySize > 0 || len(req.Body) > 0
	add(g.CheckContentType(contentType, hasBody))
	add(g.CheckBodySize(req.BodySize, int64(len(req.Body))))

	if len(req.Body) > 0 && isJSON(contentType) {
		for _, err := range g.checkJSON(header(req.Headers, "Content-Encoding"), req.Body) {
			add(err)
		}
	}

	return Result{Valid: len(violations) == 0, Errors: violations}
}

func (g *Guard) CheckMethod(method string) error {
	if len(g.methods) == 0 {
		return nil
	}
	if _, ok := g.methods[strings.ToUpper(method)]; ok {
		return nil
	}
	return &Violation{
		Check:   CheckNameMethod,
		Status:  http.StatusMethodNotAllowed,
		Code:    types.CodeMethodNotAllowed,
		Message: fmt.Sprintf("method %s is not allowed", method),
	}
}

func (g *Guard) CheckURLLength(url string) error {
	if g.cfg.MaxURLLength <= 0 || len(url) <= g.cfg.MaxURLLength {
		return nil
	}
	return &Violation{
		Check:   CheckNameURLLength,
		Status:  http.StatusRequestURITooLong,
		Code:    types.CodeURLTooLong,
		Message: fmt.Sprintf("URL length %d exceeds maximum of %d", len(url), g.cfg.MaxURLLength),
		Limit:   int64(g.cfg.MaxURLLength),
		Actual:  int64(len(url)),
	}
}

// CheckContentType compares the media type without parameters. Requests
// without a body and without the header are not checked.
func (g *Guard) CheckContentType(contentType string, hasBody bool) error {
	if len(g.contentTypes) == 0 || (contentType == "" && !hasBody) {
		return nil
	}
	unsupported := func(msg string) error {
		return &Violation{
			Check:   CheckNameContentType,
			Status:  http.StatusUnsupportedMediaType,
			Code:    types.CodeUnsupportedMediaType,
			Message: msg,
		}
	}
	if contentType == "" {
		return unsupported("content type is required for requests with a body")
	}
	base := mediaType(contentType)
	for _, allowed := range g.contentTypes {
		if allowed == base || allowed == "*/*" {
			return nil
		}
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok && strings.HasPrefix(base, prefix+"/") {
			return nil
		}
	}
	return unsupported(fmt.Sprintf("content type %s is not supported", base))
}

// CheckBodySize uses the larger of the declared and measured sizes.
func (g *Guard) CheckBodySize(declared, measured int64) error {
	size := max(declared, measured)
	if g.cfg.MaxBodySize <= 0 || size <= g.cfg.MaxBodySize {
		return nil
	}
	return &Violation{
		Check:   CheckNameBodySize,
		Status:  http.StatusRequestEntityTooLarge,
		Code:    types.CodePayloadTooLarge,
		Message: fmt.Sprintf("body size %d exceeds maximum of %d bytes", size, g.cfg.MaxBodySize),
		Limit:   g.cfg.MaxBodySize,
		Actual:  size,
	}
}

func (g *Guard) CheckJSONDepth(body []byte) error {
	s, err := scanShape(body)
	if err != nil {
		return malformed(err)
	}
	return g.depthViolation(s)
}

func (g *Guard) CheckArrayLength(body []byte) error {
	s, err := scanShape(body)
	if err != nil {
		return malformed(err)
	}
	return g.arrayViolation(s)
}

func (g *Guard) checkJSON(contentEncoding string, body []byte) []error {
	decoded, _, err := httpx.DecodeBody(contentEncoding, body, g.cfg.MaxBodySize)
	switch {
	case errors.Is(err, httpx.ErrDecodedTooLarge):
		return []error{&Violation{
			Check:   CheckNameBodySize,
			Status:  http.StatusRequestEntityTooLarge,
			Code:    types.CodePayloadTooLarge,
			Message: fmt.Sprintf("decoded body exceeds maximum of %d bytes", g.cfg.MaxBodySize),
			Limit:   g.cfg.MaxBodySize,
			Actual:  g.cfg.MaxBodySize + 1,
		}}
	case errors.Is(err, httpx.ErrUnsupportedEncoding):
		return []error{&Violation{
			Check:   CheckNameContentType,
			Status:  http.StatusUnsupportedMediaType,
			Code:    types.CodeUnsupportedMediaType,
			Message: err.Error(),
		}}
	case err != nil:
		return []error{malformed(err)}
	}

	s, err := scanShape(decoded)
	if err != nil {
		return []error{malformed(err)}
	}
	var errs []error
	if v := g.depthViolation(s); v != nil {
		errs = append(errs, v)
	}
	if v := g.arrayViolation(s); v != nil {
		errs = append(errs, v)
	}
	// The grammar is only checked once the depth is known to be within what
	// the parser accepts.
	if s.depth <= fastjson.MaxDepth {
		if err := fastjson.ValidateBytes(decoded); err != nil {
			errs = append(errs, malformed(err))
		}
	}
	return errs
}

func (g *Guard) depthViolation(s shape) error {
	if g.cfg.MaxJSONDepth <= 0 || s.depth <= g.cfg.MaxJSONDepth {
		return nil
	}
	return &Violation{
		Check:   CheckNameJSONDepth,
		Status:  http.StatusBadRequest,
		Code:    types.CodeJSONTooDeep,
		Message: fmt.Sprintf("JSON nesting depth %d exceeds maximum of %d", s.depth, g.cfg.MaxJSONDepth),
		Limit:   int64(g.cfg.MaxJSONDepth),
		Actual:  int64(s.depth),
	}
}

func (g *Guard) arrayViolation(s shape) error {
	if g.cfg.MaxArrayLength <= 0 || s.longestArray <= g.cfg.MaxArrayLength {
		return nil
	}
	return &Violation{
		Check:   CheckNameArrayLength,
		Status:  http.StatusBadRequest,
		Code:    types.CodeArrayTooLong,
		Message: fmt.Sprintf("JSON array length %d exceeds maximum of %d", s.longestArray, g.cfg.MaxArrayLength),
		Limit:   int64(g.cfg.MaxArrayLength),
		Actual:  int64(s.longestArray),
	}
}

func malformed(err error) *Violation {
	return &Violation{
		Check:   CheckNameJSONSyntax,
		Status:  http.StatusBadRequest,
		Code:    types.CodeMalformedBody,
		Message: fmt.Sprintf("malformed JSON body: %v", err),
	}
}

func mediaType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func isJSON(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
