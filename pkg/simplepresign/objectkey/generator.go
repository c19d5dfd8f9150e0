package objectkey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// DefaultPrefix is used when no prefix is supplied
const DefaultPrefix = "uploads"

// Generator defines the interface for object key generation strategies
type Generator interface {
	// Derive creates a storage key for a new upload of filename under prefix
	Derive(filename, prefix string) string
}

// UUIDGenerator names objects {prefix}/{uuid}{ext}. Only the extension of
// the caller's filename reaches the key.
type UUIDGenerator struct {
	// NewID returns the random component; defaults to uuid.NewString
	NewID func() string
}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{NewID: uuid.NewString}
}

func (g *UUIDGenerator) Derive(filename, prefix string) string {
	id := g.NewID()
	prefix = cleanPrefix(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s/%s%s", prefix, id, Extension(filename))
}

// CustomFuncGenerator allows users to provide their own key derivation function
type CustomFuncGenerator struct {
	DeriveFunc func(filename, prefix string) string
}

func NewCustomFuncGenerator(fn func(filename, prefix string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{DeriveFunc: fn}
}

func (g *CustomFuncGenerator) Derive(filename, prefix string) string {
	return g.DeriveFunc(filename, prefix)
}

// Extension returns the final dot-delimited suffix of the filename's base,
// dot included and case preserved. Leading dots belong to the name, so
// ".bashrc" has no extension.
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	trimmed := strings.TrimLeft(base, ".")
	idx := strings.LastIndex(trimmed, ".")
	if idx < 0 || idx == len(trimmed)-1 {
		return ""
	}
	return trimmed[idx:]
}

// cleanPrefix sanitizes each segment of a prefix and drops empty ones
func cleanPrefix(prefix string) string {
	var parts []string
	for _, seg := range strings.Split(prefix, "/") {
		seg = sanitizePathComponent(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "/")
}

// Helper functions for path sanitization
func sanitizePathComponent(component string) string {
	replacer := strings.NewReplacer(
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return strings.TrimSpace(replacer.Replace(component))
}
