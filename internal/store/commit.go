package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CommitBatch replaces everything attributed to batch.File.Path within a
// single transaction: the file row is upserted (clearing any stale flag),
// its old symbols and occurrences are deleted, and the buffered rows are
// inserted. Readers see either the old or the new entry set, never a mix.
func (s *Store) CommitBatch(ctx context.Context, batch *Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fileID, err := upsertFileTx(ctx, tx, &batch.File)
	if err != nil {
		return fmt.Errorf("commit batch: file %q: %w", batch.File.Path, err)
	}
	if err := deleteFileRowsTx(ctx, tx, fileID); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	symStmt, err := tx.PrepareContext(ctx, insertSymbolSQL)
	if err != nil {
		return fmt.Errorf("commit batch: prepare symbols: %w", err)
	}
	defer symStmt.Close()
	for i := range batch.Symbols {
		sym := &batch.Symbols[i]
		sym.FileID = fileID
		if sym.SignatureHash == "" {
			sym.SignatureHash = ComputeSignatureHash(sym.QualifiedName, sym.Kind, sym.Signature, sym.Modifiers)
		}
		res, err := symStmt.ExecContext(ctx,
			sym.FileID, sym.QualifiedName, sym.Name, sym.Kind, sym.Language, sym.Signature,
			marshalModifiers(sym.Modifiers), sym.SignatureHash,
			sym.Line, sym.Col, sym.EndLine, sym.EndCol,
		)
		if err != nil {
			return fmt.Errorf("commit batch: symbol %q: %w", sym.QualifiedName, err)
		}
		if sym.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("commit batch: symbol id: %w", err)
		}
	}

	occStmt, err := tx.PrepareContext(ctx, insertOccurrenceSQL)
	if err != nil {
		return fmt.Errorf("commit batch: prepare occurrences: %w", err)
	}
	defer occStmt.Close()
	for i := range batch.Occurrences {
		occ := &batch.Occurrences[i]
		occ.FileID = fileID
		res, err := occStmt.ExecContext(ctx,
			occ.FileID, occ.Name, occ.SimpleName, occ.Scope, occ.Enclosing,
			occ.Context, occ.Access, occ.Line, occ.Col,
		)
		if err != nil {
			return fmt.Errorf("commit batch: occurrence %q: %w", occ.Name, err)
		}
		if occ.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("commit batch: occurrence id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

const insertSymbolSQL = `INSERT INTO symbols (file_id, qualified_name, name, kind, language, signature,
	modifiers, signature_hash, start_line, start_col, end_line, end_col)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertOccurrenceSQL = `INSERT INTO occurrences (file_id, name, simple_name, scope, enclosing,
	context, access, line, col)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func upsertFileTx(ctx context.Context, tx *sql.Tx, f *File) (int64, error) {
	if f.LastIndexed.IsZero() {
		f.LastIndexed = time.Now().UTC().Truncate(time.Second)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO files (path, language, content_hash, config_hash, stale, last_indexed)
		 VALUES (?, ?, ?, ?, FALSE, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   language = excluded.language,
		   content_hash = excluded.content_hash,
		   config_hash = excluded.config_hash,
		   stale = FALSE,
		   last_indexed = excluded.last_indexed`,
		f.Path, f.Language, f.ContentHash, f.ConfigHash, f.LastIndexed,
	)
	if err != nil {
		return 0, err
	}
	if err := tx.QueryRowContext(ctx, "SELECT id FROM files WHERE path = ?", f.Path).Scan(&f.ID); err != nil {
		return 0, err
	}
	f.Stale = false
	return f.ID, nil
}
