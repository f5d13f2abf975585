package models

import (
	"time"
)

// PromptRecord is the persisted shape of one generated prompt version.
// Records are immutable audit entries: a version is written once per
// successful synthesis or tweak and never updated afterwards.
type PromptRecord struct {
	ID                string         `json:"id" db:"id"`
	ParentID          *string        `json:"parent_id,omitempty" db:"parent_id"`
	Version           int            `json:"version" db:"version"`
	OriginalInput     string         `json:"original_input" db:"original_input"`
	GeneratedPrompt   string         `json:"generated_prompt" db:"generated_prompt"`
	Mode              string         `json:"mode" db:"mode"`
	QuestionsSnapshot map[string]any `json:"questions_snapshot,omitempty" db:"questions_snapshot"`
	UserID            string         `json:"user_id" db:"user_id"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// RootID returns the family root for this record: its own id for roots,
// the parent id for derived versions.
func (r *PromptRecord) RootID() string {
	if r.ParentID != nil && *r.ParentID != "" {
		return *r.ParentID
	}
	return r.ID
}
