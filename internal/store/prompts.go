// Package store is the persistence collaborator for saved prompt versions.
// Every operation is atomic from the core's point of view; a failure here
// surfaces as a PersistenceError and never touches in-memory session state.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptforge/enhancer-api/internal/models"
)

// PromptStore persists prompt version families in PostgreSQL
type PromptStore struct {
	pool *pgxpool.Pool
}

// NewPromptStore creates a store over a pgx pool
func NewPromptStore(pool *pgxpool.Pool) *PromptStore {
	return &PromptStore{pool: pool}
}

// Save writes one immutable prompt version. A record without a parent
// starts a new family at version 1. A record with a parent takes the next
// family version under a row lock on the root, so version numbers are
// strictly increasing and never reused even after deletes.
func (s *PromptStore) Save(ctx context.Context, record *models.PromptRecord) (*models.PromptRecord, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &models.PersistenceError{Op: "save", Err: err}
	}
	defer tx.Rollback(ctx)

	version := 1
	if record.ParentID != nil && *record.ParentID != "" {
		version, err = s.nextFamilyVersion(ctx, tx, *record.ParentID)
		if err != nil {
			return nil, &models.PersistenceError{Op: "save", Err: err}
		}
	}
	record.Version = version

	err = tx.QueryRow(ctx,
		`INSERT INTO prompt_versions
		   (id, parent_id, version, latest_version, original_input, generated_prompt, mode, questions_snapshot, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		record.ID, record.ParentID, record.Version, record.Version,
		record.OriginalInput, record.GeneratedPrompt, record.Mode,
		record.QuestionsSnapshot, record.UserID,
	).Scan(&record.CreatedAt)

	if err != nil {
		return nil, &models.PersistenceError{Op: "save", Err: err}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, &models.PersistenceError{Op: "save", Err: err}
	}

	return record, nil
}

// nextFamilyVersion locks the family root and bumps its version counter.
// The counter only moves forward, so deleted versions leave gaps instead of
// being reassigned.
func (s *PromptStore) nextFamilyVersion(ctx context.Context, tx pgx.Tx, rootID string) (int, error) {
	var version int
	err := tx.QueryRow(ctx,
		`UPDATE prompt_versions
		 SET latest_version = latest_version + 1
		 WHERE id = $1 AND parent_id IS NULL
		 RETURNING latest_version`,
		rootID,
	).Scan(&version)

	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("family root %s not found", rootID)
		}
		return 0, fmt.Errorf("failed to assign version: %w", err)
	}
	return version, nil
}

// ListVersions returns all versions of a family ordered by version ascending
func (s *PromptStore) ListVersions(ctx context.Context, rootID string) ([]*models.PromptRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, parent_id, version, original_input, generated_prompt, mode, questions_snapshot, user_id, created_at
		FROM prompt_versions
		WHERE id = $1 OR parent_id = $1
		ORDER BY version ASC
	`, rootID)

	if err != nil {
		return nil, &models.PersistenceError{Op: "list_versions", Err: err}
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, &models.PersistenceError{Op: "list_versions", Err: err}
	}
	return records, nil
}

// Get retrieves one version by id
func (s *PromptStore) Get(ctx context.Context, id string) (*models.PromptRecord, error) {
	var rec models.PromptRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, parent_id, version, original_input, generated_prompt, mode, questions_snapshot, user_id, created_at
		FROM prompt_versions
		WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.ParentID, &rec.Version, &rec.OriginalInput,
		&rec.GeneratedPrompt, &rec.Mode, &rec.QuestionsSnapshot, &rec.UserID, &rec.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &models.PersistenceError{Op: "get", Err: fmt.Errorf("prompt %s not found", id)}
		}
		return nil, &models.PersistenceError{Op: "get", Err: err}
	}
	return &rec, nil
}

// Delete removes one version. Deleting a family root deletes every derived
// version with it; deleting a child removes only that row and siblings keep
// their version numbers.
func (s *PromptStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM prompt_versions
		WHERE id = $1 OR parent_id = $1
	`, id)

	if err != nil {
		return &models.PersistenceError{Op: "delete", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &models.PersistenceError{Op: "delete", Err: fmt.Errorf("prompt %s not found", id)}
	}
	return nil
}

// Search returns a user's versions whose input or output matches the query
func (s *PromptStore) Search(ctx context.Context, userID, query string) ([]*models.PromptRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, parent_id, version, original_input, generated_prompt, mode, questions_snapshot, user_id, created_at
		FROM prompt_versions
		WHERE user_id = $1
		  AND (original_input ILIKE '%' || $2 || '%' OR generated_prompt ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
	`, userID, query)

	if err != nil {
		return nil, &models.PersistenceError{Op: "search", Err: err}
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, &models.PersistenceError{Op: "search", Err: err}
	}
	return records, nil
}

// Count returns the number of versions a user has saved
func (s *PromptStore) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM prompt_versions WHERE user_id = $1`,
		userID,
	).Scan(&count)

	if err != nil {
		return 0, &models.PersistenceError{Op: "count", Err: err}
	}
	return count, nil
}

func scanRecords(rows pgx.Rows) ([]*models.PromptRecord, error) {
	var records []*models.PromptRecord
	for rows.Next() {
		var rec models.PromptRecord
		err := rows.Scan(
			&rec.ID, &rec.ParentID, &rec.Version, &rec.OriginalInput,
			&rec.GeneratedPrompt, &rec.Mode, &rec.QuestionsSnapshot, &rec.UserID, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt version: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prompt versions: %w", err)
	}
	return records, nil
}
