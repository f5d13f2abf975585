// Package ledger tracks the chain of generated prompt versions produced by
// successive synthesis and tweak operations within one session.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/promptforge/enhancer-api/internal/models"
)

// Ledger is the client-side view of a prompt family: the root version plus
// every refinement derived from it. Version numbers are assigned at append
// time, strictly increase by 1 within a family, and are never reused even
// when intermediate versions are deleted.
type Ledger struct {
	mu       sync.Mutex
	families map[string][]*models.PromptRecord
	next     map[string]int
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		families: make(map[string][]*models.PromptRecord),
		next:     make(map[string]int),
	}
}

// Append assigns the next version number in the record's family and stores
// the record. The record's Version field is overwritten with the assigned
// number. Records are immutable once appended.
func (l *Ledger) Append(record *models.PromptRecord) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	rootID := record.RootID()
	version := l.next[rootID] + 1
	l.next[rootID] = version

	record.Version = version
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	l.families[rootID] = append(l.families[rootID], record)
	return version
}

// ListFamily returns all versions for a root ordered by version ascending
func (l *Ledger) ListFamily(rootID string) []*models.PromptRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	family := l.families[rootID]
	out := make([]*models.PromptRecord, len(family))
	copy(out, family)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Latest returns the highest-versioned record in a family, or nil
func (l *Ledger) Latest(rootID string) *models.PromptRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var latest *models.PromptRecord
	for _, rec := range l.families[rootID] {
		if latest == nil || rec.Version > latest.Version {
			latest = rec
		}
	}
	return latest
}

// Delete removes a version. Deleting the root removes the whole family;
// deleting a non-root version removes only that entry and never renumbers
// its siblings.
func (l *Ledger) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.families[id]; ok {
		// Root id: the family is deleted together with it.
		delete(l.families, id)
		delete(l.next, id)
		return nil
	}

	for rootID, family := range l.families {
		for i, rec := range family {
			if rec.ID == id {
				l.families[rootID] = append(family[:i], family[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("version %s not found", id)
}

// IterationNumber reports how many versions exist in a family, which the
// presentation layer shows as the current iteration count.
func (l *Ledger) IterationNumber(rootID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next[rootID]
}
