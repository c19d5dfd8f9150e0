// Package policy decides which files may be uploaded and with what content type.
package policy

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/tendant/simple-presign/pkg/simplepresign/objectkey"
)

// Verdict is the outcome of classifying a filename
type Verdict int

const (
	Allowed Verdict = iota
	Blocked
	Unrecognized
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case Blocked:
		return "blocked"
	default:
		return "unrecognized"
	}
}

// Decision carries the verdict with the normalized extension and, when
// allowed, the content type the upload must declare.
type Decision struct {
	Verdict     Verdict
	Extension   string
	ContentType string
}

// DefaultAllowed maps permitted extensions to their content types
var DefaultAllowed = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".zip":  "application/zip",
}

// DefaultBlocked lists executable and script extensions refused outright
var DefaultBlocked = []string{
	".exe", ".bat", ".cmd", ".sh", ".ps1", ".msi", ".dll", ".scr", ".com", ".vbs", ".jar",
}

// Engine classifies filenames against an allow map and a block list.
// The block list wins when an extension appears in both.
type Engine struct {
	allowed map[string]string
	blocked map[string]struct{}
}

// New creates an Engine. Extensions are matched case-insensitively and a
// missing leading dot is added.
func New(allowed map[string]string, blocked []string) *Engine {
	e := &Engine{
		allowed: make(map[string]string, len(allowed)),
		blocked: make(map[string]struct{}, len(blocked)),
	}
	for ext, ct := range allowed {
		if ext = normalize(ext); ext != "" {
			e.allowed[ext] = strings.TrimSpace(ct)
		}
	}
	for _, ext := range blocked {
		if ext = normalize(ext); ext != "" {
			e.blocked[ext] = struct{}{}
		}
	}
	return e
}

// Default returns an Engine with the stock allow map and block list
func Default() *Engine {
	return New(DefaultAllowed, DefaultBlocked)
}

// Classify decides whether filename may be uploaded. It depends only on
// the filename's extension.
func (e *Engine) Classify(filename string) Decision {
	ext := strings.ToLower(objectkey.Extension(filename))
	if ext == "" {
		return Decision{Verdict: Unrecognized}
	}
	if _, ok := e.blocked[ext]; ok {
		return Decision{Verdict: Blocked, Extension: ext}
	}
	if ct, ok := e.allowed[ext]; ok {
		return Decision{Verdict: Allowed, Extension: ext, ContentType: ct}
	}
	return Decision{Verdict: Unrecognized, Extension: ext}
}

// AllowedExtensions returns the accepted extensions, sorted, excluding any
// that are also blocked
func (e *Engine) AllowedExtensions() []string {
	exts := lo.Filter(lo.Keys(e.allowed), func(ext string, _ int) bool {
		_, blocked := e.blocked[ext]
		return !blocked
	})
	sort.Strings(exts)
	return exts
}

// BlockedExtensions returns the refused extensions, sorted
func (e *Engine) BlockedExtensions() []string {
	exts := lo.Keys(e.blocked)
	sort.Strings(exts)
	return exts
}

func normalize(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
