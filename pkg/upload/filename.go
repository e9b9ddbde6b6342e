package upload

import (
	"fmt"
	"strings"
	"time"
)

const placeholder = '_'

// SanitizeFilename reduces name to a safe base name. Applying it to its own
// output returns the output unchanged.
func SanitizeFilename(name string) string {
	return sanitize(name, time.Now())
}

func sanitize(name string, now time.Time) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	b.Grow(len(name))
	lastPlaceholder := false
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7F:
			continue
		case r == placeholder || !safeRune(r):
			if lastPlaceholder {
				continue
			}
			b.WriteRune(placeholder)
			lastPlaceholder = true
		default:
			b.WriteRune(r)
			lastPlaceholder = false
		}
	}

	out := strings.TrimLeft(b.String(), ".-")
	if out == "" {
		return fmt.Sprintf("file_%d", now.UnixMilli())
	}
	return out
}

func safeRune(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '.' || r == '-'
}

func unsafeNameErrors(name string) []string {
	var errs []string
	if strings.ContainsRune(name, 0) {
		errs = append(errs, "filename contains a null byte")
	}
	for _, r := range name {
		if r != 0 && (r < 0x20 || r == 0x7F) {
			errs = append(errs, "filename contains control characters")
			break
		}
	}
	for _, seg := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			errs = append(errs, "filename contains a path traversal sequence")
			break
		}
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		errs = append(errs, "filename is an absolute path")
	}
	return errs
}
