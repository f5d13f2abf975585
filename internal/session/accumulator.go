package session

import (
	"strings"
)

// Accumulator merges per-topic answers across rounds into a single ordered
// record. Recording is idempotent per key (last write wins) and the first-seen
// key order is preserved so serialization is stable across calls.
type Accumulator struct {
	order  []string
	values map[string]string
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{
		values: make(map[string]string),
	}
}

// Record stores an answer under its question key. Re-recording an existing
// key overwrites in place and does not create a duplicate entry. A
// whitespace-only value is treated as no answer: the key stays visible in
// insertion order but does not count as answered until real text arrives.
func (a *Accumulator) Record(questionKey, value string) {
	if _, seen := a.values[questionKey]; !seen {
		a.order = append(a.order, questionKey)
	}
	a.values[questionKey] = strings.TrimSpace(value)
}

// Get returns the recorded value for a key and whether the key was ever seen
func (a *Accumulator) Get(questionKey string) (string, bool) {
	v, ok := a.values[questionKey]
	return v, ok
}

// AnsweredCount returns the number of keys holding a non-empty answer
func (a *Accumulator) AnsweredCount() int {
	n := 0
	for _, key := range a.order {
		if a.values[key] != "" {
			n++
		}
	}
	return n
}

// Keys returns the keys in first-seen order
func (a *Accumulator) Keys() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Serialize renders the ordered "topic: answer" block consumed by the
// synthesis request builder. Empty answers are omitted. The output is a pure
// function of accumulated state: identical state always renders identically.
func (a *Accumulator) Serialize() string {
	var b strings.Builder
	for _, key := range a.order {
		value := a.values[key]
		if value == "" {
			continue
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Snapshot returns a copy of the answered entries keyed by topic, for
// attaching to saved prompt versions.
func (a *Accumulator) Snapshot() map[string]any {
	if a.AnsweredCount() == 0 {
		return nil
	}
	out := make(map[string]any, len(a.order))
	for _, key := range a.order {
		if v := a.values[key]; v != "" {
			out[key] = v
		}
	}
	return out
}

// Reset discards all accumulated answers
func (a *Accumulator) Reset() {
	a.order = nil
	a.values = make(map[string]string)
}
