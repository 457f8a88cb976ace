package store

// Batch buffers everything one file contributes to the index. Parse workers
// fill batches off the write path; a single committer applies each batch with
// CommitBatch.
type Batch struct {
	File        File
	Symbols     []Symbol
	Occurrences []Occurrence
}

// NewBatch creates an empty batch for f.
func NewBatch(f File) *Batch {
	return &Batch{File: f}
}

func (b *Batch) AddSymbol(sym Symbol) {
	sym.Path = b.File.Path
	if sym.Language == "" {
		sym.Language = b.File.Language
	}
	b.Symbols = append(b.Symbols, sym)
}

func (b *Batch) AddOccurrence(occ Occurrence) {
	occ.Path = b.File.Path
	b.Occurrences = append(b.Occurrences, occ)
}
