package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const documentColumns = "id, source_type, title, text, source_url, visibility, status, owner_id, created_at, updated_at"

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var doc Document
	var sourceType, visibility, status string
	var sourceURL sql.NullString
	if err := row.Scan(&doc.ID, &sourceType, &doc.Title, &doc.Text, &sourceURL, &visibility, &status, &doc.OwnerID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.SourceType = SourceType(sourceType)
	doc.Visibility = Visibility(visibility)
	doc.Status = DocumentStatus(status)
	if sourceURL.Valid {
		doc.SourceURL = &sourceURL.String
	}
	return &doc, nil
}

// CreateDocument assigns the id and timestamps and inserts doc.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	doc.ID = uuid.NewString()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	var sourceURL sql.NullString
	if doc.SourceURL != nil {
		sourceURL = sql.NullString{String: *doc.SourceURL, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO documents ("+documentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		doc.ID, string(doc.SourceType), doc.Title, doc.Text, sourceURL, string(doc.Visibility), string(doc.Status), doc.OwnerID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListVisibleDocuments returns every document owned by viewerID plus other
// owners' viewOnly documents, newest first. When syncedOnly is set, drafts and
// documents mid re-sync are skipped.
func (s *SQLiteStore) ListVisibleDocuments(ctx context.Context, viewerID string, syncedOnly bool) ([]Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE (owner_id = ? OR visibility = 'viewOnly')"
	if syncedOnly {
		query += " AND status = 'synced'"
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// TransitionDocument moves a document from one status to another. It fails with
// ErrStatusConflict when the document is not currently in from.
func (s *SQLiteStore) TransitionDocument(ctx context.Context, documentID string, from, to DocumentStatus) error {
	res, err := s.db.ExecContext(ctx, "UPDATE documents SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), time.Now().UTC(), documentID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return s.checkDocumentUpdate(ctx, res, documentID)
}

// ReplaceDocumentText installs re-synced content and completes the re-sync.
func (s *SQLiteStore) ReplaceDocumentText(ctx context.Context, documentID, title, text string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE documents SET title = ?, text = ?, status = 'synced', updated_at = ? WHERE id = ? AND status = 'syncing'",
		title, text, time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("failed to replace document text: %w", err)
	}
	return s.checkDocumentUpdate(ctx, res, documentID)
}

func (s *SQLiteStore) checkDocumentUpdate(ctx context.Context, res sql.Result, documentID string) error {
	affected, _ := res.RowsAffected()
	if affected > 0 {
		return nil
	}
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return err
	}
	return fmt.Errorf("document %s: %w", documentID, ErrStatusConflict)
}
