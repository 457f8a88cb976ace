package store

import "time"

// Index domain types

type File struct {
	ID          int64
	Path        string
	Language    string
	ContentHash string
	ConfigHash  string
	Stale       bool
	LastIndexed time.Time
}

// Symbol is a named definition. Symbols are identified across files by
// QualifiedName; several rows may share one (overloads, duplicates).
type Symbol struct {
	ID            int64    `json:"-"`
	FileID        int64    `json:"-"`
	QualifiedName string   `json:"qualified_name"`
	Name          string   `json:"name"`
	Kind          string   `json:"kind"`
	Path          string   `json:"path"`
	Language      string   `json:"language"`
	Signature     string   `json:"signature,omitempty"`
	Modifiers     []string `json:"modifiers,omitempty"`
	SignatureHash string   `json:"signature_hash,omitempty"`
	Line          int      `json:"line"`
	Col           int      `json:"col"`
	EndLine       int      `json:"end_line"`
	EndCol        int      `json:"end_col"`
}

// Occurrence is a name reference as written in source. It links to symbols
// by name only and is resolved lazily at query time.
type Occurrence struct {
	ID         int64  `json:"-"`
	FileID     int64  `json:"-"`
	Name       string `json:"name"`
	SimpleName string `json:"simple_name"`
	Scope      string `json:"scope,omitempty"`
	Enclosing  string `json:"enclosing,omitempty"`
	Context    string `json:"context"`
	Access     string `json:"access"`
	Path       string `json:"path"`
	Line       int    `json:"line"`
	Col        int    `json:"col"`
	Stale      bool   `json:"stale,omitempty"`
	Language   string `json:"-"`

	// Set by reference resolution.
	QualifiedName string `json:"qualified_name,omitempty"`
	Confidence    string `json:"confidence,omitempty"`
}

// Cache domain types

type CacheEntry struct {
	Path        string
	ContentHash string
	ConfigHash  string
	Data        []byte
	Size        int64
	CreatedAt   int64
	LastUsed    int64
}

// CacheStats summarizes the persisted cache.
type CacheStats struct {
	EntryCount int   `json:"entry_count"`
	TotalBytes int64 `json:"total_bytes"`
	Paths      int   `json:"paths"`
}
