package upload

import (
	"bytes"
	"encoding/binary"
	"regexp"
	"slices"
	"strings"
)

const (
	TypeJPEG       = "image/jpeg"
	TypePNG        = "image/png"
	TypeGIF        = "image/gif"
	TypeWEBP       = "image/webp"
	TypePDF        = "application/pdf"
	TypeZIP        = "application/zip"
	TypeText       = "text/plain"
	TypeWindowsExe = "application/x-msdownload"
	TypeELF        = "application/x-executable"
	TypeMachO      = "application/x-mach-binary"
	TypeScript     = "text/x-shellscript"

	textSniffLength = 512

	// DOS header field holding the offset of the PE header.
	peOffsetField = 0x3C
)

type signature struct {
	offset   int
	magic    []byte
	mimeType string
}

// Order matters where one signature is a prefix of another.
var signatures = []signature{
	{0, []byte{0xFF, 0xD8, 0xFF}, TypeJPEG},
	{0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, TypePNG},
	{0, []byte("GIF87a"), TypeGIF},
	{0, []byte("GIF89a"), TypeGIF},
	{0, []byte("%PDF-"), TypePDF},
	{0, []byte{'P', 'K', 0x03, 0x04}, TypeZIP},
	{0, []byte{'P', 'K', 0x05, 0x06}, TypeZIP},
	{0, []byte{'P', 'K', 0x07, 0x08}, TypeZIP},
	{0, []byte{0x7F, 'E', 'L', 'F'}, TypeELF},
	{0, []byte{0xFE, 0xED, 0xFA, 0xCE}, TypeMachO},
	{0, []byte{0xFE, 0xED, 0xFA, 0xCF}, TypeMachO},
	{0, []byte{0xCE, 0xFA, 0xED, 0xFE}, TypeMachO},
	{0, []byte{0xCF, 0xFA, 0xED, 0xFE}, TypeMachO},
	{0, []byte{0xCA, 0xFE, 0xBA, 0xBE}, TypeMachO},
	{0, []byte("#!"), TypeScript},
}

var dangerousTypes = map[string]struct{}{
	TypeWindowsExe: {},
	TypeELF:        {},
	TypeMachO:      {},
	TypeScript:     {},
}

// DetectType identifies content by its leading bytes. Content with no
// signature and no control bytes in the first 512 bytes is reported as
// text/plain, anything else as "".
func DetectType(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	if len(content) >= 12 && bytes.Equal(content[:4], []byte("RIFF")) && bytes.Equal(content[8:12], []byte("WEBP")) {
		return TypeWEBP
	}
	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if len(content) >= end && bytes.Equal(content[sig.offset:end], sig.magic) {
			return sig.mimeType
		}
	}
	if isPortableExecutable(content) {
		return TypeWindowsExe
	}
	if looksLikeText(content) {
		return TypeText
	}
	return ""
}

// isPortableExecutable requires the "PE\0\0" header that e_lfanew points at.
// A DOS header too short to carry e_lfanew counts unless it reads as text.
func isPortableExecutable(content []byte) bool {
	if !bytes.HasPrefix(content, []byte("MZ")) {
		return false
	}
	if len(content) < peOffsetField+4 {
		return !looksLikeText(content)
	}
	offset := int64(binary.LittleEndian.Uint32(content[peOffsetField:]))
	if offset+4 > int64(len(content)) {
		return !looksLikeText(content)
	}
	return bytes.Equal(content[offset:offset+4], []byte("PE\x00\x00"))
}

func looksLikeText(content []byte) bool {
	if len(content) > textSniffLength {
		content = content[:textSniffLength]
	}
	for _, b := range content {
		if b == '\t' || b == '\n' || b == '\r' || b == '\f' {
			continue
		}
		if b < 0x20 || b == 0x7F {
			return false
		}
	}
	return true
}

func IsDangerousType(mimeType string) bool {
	_, ok := dangerousTypes[mimeType]
	return ok
}

var zipContainers = []string{
	TypeZIP,
	"application/x-zip-compressed",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.oasis.opendocument.text",
	"application/vnd.oasis.opendocument.spreadsheet",
	"application/epub+zip",
}

var textual = []string{
	"application/json",
	"application/xml",
	"application/javascript",
	"image/svg+xml",
}

// compatible reports whether a declared MIME type is a plausible label for
// content detected as detected.
func compatible(declared, detected string) bool {
	declared = normalizeMime(declared)
	if declared == detected {
		return true
	}
	switch detected {
	case TypeJPEG:
		return declared == "image/jpg" || declared == "image/pjpeg"
	case TypeZIP:
		return slices.Contains(zipContainers, declared)
	case TypeText:
		return strings.HasPrefix(declared, "text/") || slices.Contains(textual, declared)
	}
	return false
}

func normalizeMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

type ThreatType string

const (
	ScriptTag     ThreatType = "script_tag"
	JavaScriptURI ThreatType = "javascript_uri"
	EventHandler  ThreatType = "event_handler"
	EmbeddedFrame ThreatType = "embedded_frame"
	EvalCall      ThreatType = "eval_call"
	PHPTag        ThreatType = "php_tag"
	Shebang       ThreatType = "shebang"
)

var threatPatterns = []struct {
	threat  ThreatType
	pattern *regexp.Regexp
}{
	{ScriptTag, regexp.MustCompile(`(?i)<\s*script[\s>/]`)},
	{JavaScriptURI, regexp.MustCompile(`(?i)javascript\s*:`)},
	{EventHandler, regexp.MustCompile(`(?i)\bon(` +
		`load|error|click|dblclick|mouseover|mouseout|mousedown|mouseup|mousemove|` +
		`focus|blur|submit|change|input|keydown|keyup|keypress|abort|unload|beforeunload|` +
		`toggle|pointerdown|pointerover|animationstart|transitionend` +
		`)\s*=`)},
	{EmbeddedFrame, regexp.MustCompile(`(?i)<\s*(iframe|object|embed)[\s>/]`)},
	{EvalCall, regexp.MustCompile(`(?i)\beval\s*\(`)},
	{PHPTag, regexp.MustCompile(`(?i)<\?php`)},
	{Shebang, regexp.MustCompile(`\A#!`)},
}

const scanWindow = 1 << 20

// ScanThreats returns every threat pattern found in the leading scan window.
func ScanThreats(content []byte) []ThreatType {
	if len(content) > scanWindow {
		content = content[:scanWindow]
	}
	text := string(content)
	var found []ThreatType
	for _, tp := range threatPatterns {
		if tp.pattern.MatchString(text) {
			found = append(found, tp.threat)
		}
	}
	return found
}
