package ast

import (
	"encoding/json"
	"fmt"
)

// CodecVersion is bumped whenever the encoded shape of a Document changes.
// Entries written with another version decode as errors and are discarded by
// the cache.
const CodecVersion = 1

type envelope struct {
	Version  int       `json:"version"`
	Document *Document `json:"document"`
}

// Encode serializes doc. Decode(Encode(d)) is structurally equal to d.
func Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("ast: encode: nil document")
	}
	data, err := json.Marshal(envelope{Version: CodecVersion, Document: doc})
	if err != nil {
		return nil, fmt.Errorf("ast: encode %s: %w", doc.Path, err)
	}
	return data, nil
}

// Decode deserializes a Document produced by Encode and validates its tree.
func Decode(data []byte) (*Document, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("ast: decode: %w", err)
	}
	if env.Version != CodecVersion {
		return nil, fmt.Errorf("ast: decode: unsupported version %d", env.Version)
	}
	if env.Document == nil {
		return nil, fmt.Errorf("ast: decode: missing document")
	}
	if err := Validate(env.Document.Root); err != nil {
		return nil, fmt.Errorf("ast: decode %s: %w", env.Document.Path, err)
	}
	return env.Document, nil
}
