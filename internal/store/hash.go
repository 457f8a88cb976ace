package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ComputeSignatureHash computes a deterministic hash from a symbol's semantic
// identity: qualified name, kind, signature, and modifiers. Location changes
// do NOT affect the hash.
func ComputeSignatureHash(qualifiedName, kind, signature string, modifiers []string) string {
	d := xxhash.New()

	fmt.Fprintf(d, "name:%s\n", qualifiedName)
	fmt.Fprintf(d, "kind:%s\n", kind)
	fmt.Fprintf(d, "signature:%s\n", signature)

	// Modifiers are a set.
	sorted := slices.Clone(modifiers)
	slices.Sort(sorted)
	fmt.Fprintf(d, "modifiers:%s\n", strings.Join(sorted, ","))

	return fmt.Sprintf("%016x", d.Sum64())
}
