package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const batchConcurrency = 4

var (
	DefaultAllowedExtensions = []string{
		"jpg", "jpeg", "png", "gif", "webp", "pdf", "txt", "csv", "md", "json",
		"doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "zip",
	}
	DefaultBlockedExtensions = []string{
		"exe", "dll", "com", "bat", "cmd", "scr", "pif", "msi", "cpl", "hta", "reg", "vbs", "vbe", "wsf",
		"js", "jse", "mjs", "jar", "sh", "bash", "zsh", "ps1", "psm1", "py", "pl", "rb", "cgi",
		"php", "php3", "php4", "php5", "phtml", "phar", "asp", "aspx", "jsp", "jspx",
		"app", "elf", "bin", "so", "dylib", "deb", "rpm",
	}
	DefaultAllowedMimeTypes = []string{
		TypeJPEG, TypePNG, TypeGIF, TypeWEBP, TypePDF, TypeText, TypeZIP,
		"text/csv",
		"text/markdown",
		"application/json",
		"application/msword",
		"application/vnd.ms-excel",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.oasis.opendocument.text",
		"application/vnd.oasis.opendocument.spreadsheet",
	}
)

type Config struct {
	MaxFileSize         int64
	MaxFilenameLength   int
	MaxFiles            int
	MaxTotalSize        int64
	AllowedExtensions   []string
	BlockedExtensions   []string
	AllowedMimeTypes    []string
	SanitizeFilenames   bool
	GenerateUniqueNames bool
	ScanContent         bool
}

func DefaultConfig() Config {
	return Config{
		MaxFileSize:       10 << 20,
		MaxFilenameLength: 255,
		MaxFiles:          10,
		MaxTotalSize:      50 << 20,
		AllowedExtensions: DefaultAllowedExtensions,
		BlockedExtensions: DefaultBlockedExtensions,
		AllowedMimeTypes:  DefaultAllowedMimeTypes,
		SanitizeFilenames: true,
		ScanContent:       true,
	}
}

// File is one uploaded part. Content may be nil when only metadata is known,
// in which case signature detection and the threat scan are skipped.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Content  []byte
}

type Result struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	SanitizedName string   `json:"sanitized_name"`
	DetectedType  string   `json:"detected_type,omitempty"`
}

type BatchResult struct {
	Valid     bool     `json:"valid"`
	Files     []Result `json:"files"`
	Errors    []string `json:"errors"`
	TotalSize int64    `json:"total_size"`
}

type Option func(*Validator)

func WithTimeProvider(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func WithRandom(r io.Reader) Option {
	return func(v *Validator) { v.random = r }
}

type Validator struct {
	logger  *logrus.Logger
	cfg     Config
	blocked map[string]struct{}
	allowed map[string]struct{}
	mimes   map[string]struct{}
	now     func() time.Time
	random  io.Reader
}

func NewValidator(logger *logrus.Logger, cfg Config, opts ...Option) *Validator {
	v := &Validator{
		logger:  logger,
		cfg:     cfg,
		blocked: toSet(cfg.BlockedExtensions, normalizeExt),
		allowed: toSet(cfg.AllowedExtensions, normalizeExt),
		mimes:   toSet(cfg.AllowedMimeTypes, normalizeMime),
		now:     time.Now,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) Config() Config {
	return v.cfg
}

// ValidateFile runs every stage and accumulates findings. The result is
// invalid iff at least one error was recorded.
func (v *Validator) ValidateFile(f File) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}

	size := f.Size
	if f.Content != nil && int64(len(f.Content)) > size {
		size = int64(len(f.Content))
	}
	if v.cfg.MaxFileSize > 0 && size > v.cfg.MaxFileSize {
		res.Errors = append(res.Errors, fmt.Sprintf("file size %d exceeds maximum of %d bytes", size, v.cfg.MaxFileSize))
	}
	if size == 0 {
		res.Warnings = append(res.Warnings, "file is empty")
	}
	if v.cfg.MaxFilenameLength > 0 && len(f.Name) > v.cfg.MaxFilenameLength {
		res.Errors = append(res.Errors, fmt.Sprintf("filename length %d exceeds maximum of %d", len(f.Name), v.cfg.MaxFilenameLength))
	}

	name := f.Name
	res.Errors = append(res.Errors, unsafeNameErrors(f.Name)...)
	if v.cfg.SanitizeFilenames {
		name = sanitize(f.Name, v.now())
		if name != f.Name {
			res.Warnings = append(res.Warnings, "filename was sanitized")
		}
	}

	res.Errors = append(res.Errors, v.extensionErrors(name)...)

	if len(v.mimes) > 0 {
		if _, ok := v.mimes[normalizeMime(f.MimeType)]; !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("MIME type %q is not allowed", f.MimeType))
		}
	}

	if len(f.Content) > 0 {
		res.DetectedType = DetectType(f.Content)
		switch {
		case IsDangerousType(res.DetectedType):
			res.Errors = append(res.Errors, fmt.Sprintf("content is a dangerous file type (%s)", res.DetectedType))
		case res.DetectedType != "" && f.MimeType != "" && !compatible(f.MimeType, res.DetectedType):
			res.Warnings = append(res.Warnings, fmt.Sprintf("declared type %s does not match detected type %s", f.MimeType, res.DetectedType))
		}

		if v.cfg.ScanContent {
			for _, threat := range ScanThreats(f.Content) {
				res.Errors = append(res.Errors, fmt.Sprintf("content matches threat pattern %s", threat))
			}
		}
	}

	if v.cfg.GenerateUniqueNames {
		name = v.uniqueName(name)
	}
	res.SanitizedName = name
	res.Valid = len(res.Errors) == 0

	outcome := "valid"
	if !res.Valid {
		outcome = "invalid"
	}
	prometheus.UploadedFiles.WithLabelValues(outcome).Inc()
	if !res.Valid {
		v.logger.WithFields(logrus.Fields{
			"filename": f.Name,
			"mime":     f.MimeType,
			"detected": res.DetectedType,
			"errors":   res.Errors,
		}).Warn("upload rejected")
	}
	return res
}

// ValidateFiles checks the batch caps and validates each file. Results keep
// the input order.
func (v *Validator) ValidateFiles(ctx context.Context, files []File) (BatchResult, error) {
	batch := BatchResult{Files: make([]Result, len(files)), Errors: []string{}}

	if v.cfg.MaxFiles > 0 && len(files) > v.cfg.MaxFiles {
		batch.Errors = append(batch.Errors, fmt.Sprintf("%d files exceed the maximum of %d per request", len(files), v.cfg.MaxFiles))
	}
	for _, f := range files {
		size := f.Size
		if int64(len(f.Content)) > size {
			size = int64(len(f.Content))
		}
		batch.TotalSize += size
	}
	if v.cfg.MaxTotalSize > 0 && batch.TotalSize > v.cfg.MaxTotalSize {
		batch.Errors = append(batch.Errors, fmt.Sprintf("total upload size %d exceeds maximum of %d bytes", batch.TotalSize, v.cfg.MaxTotalSize))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch.Files[i] = v.ValidateFile(files[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	batch.Valid = len(batch.Errors) == 0
	for _, r := range batch.Files {
		if !r.Valid {
			batch.Valid = false
			break
		}
	}
	return batch, nil
}

func (v *Validator) extensionErrors(name string) []string {
	var errs []string
	parts := strings.Split(strings.ToLower(name), ".")
	if len(parts) < 2 {
		if len(v.allowed) > 0 {
			errs = append(errs, "file has no extension")
		}
		return errs
	}
	ext := parts[len(parts)-1]
	for _, p := range parts[1:] {
		if _, ok := v.blocked[p]; ok {
			errs = append(errs, fmt.Sprintf("file extension %q is blocked", p))
			return errs
		}
	}
	if len(v.allowed) > 0 {
		if _, ok := v.allowed[ext]; !ok {
			errs = append(errs, fmt.Sprintf("file extension %q is not allowed", ext))
		}
	}
	return errs
}

func (v *Validator) uniqueName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base = "file"
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(v.random, buf); err != nil {
		v.logger.WithError(err).Warn("random source failed, unique name uses timestamp only")
	}
	return fmt.Sprintf("%s_%d_%s%s", base, v.now().UnixMilli(), hex.EncodeToString(buf), ext)
}

func toSet(values []string, norm func(string) string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := norm(v); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}
