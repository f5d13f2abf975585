package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator_Record(t *testing.T) {
	t.Run("keeps first-seen order", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record("goal", "summarize articles")
		acc.Record("role", "editor")
		acc.Record("context", "weekly newsletter")

		assert.Equal(t, []string{"goal", "role", "context"}, acc.Keys())
	})

	t.Run("last write wins without reordering", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record("goal", "first")
		acc.Record("role", "editor")
		acc.Record("goal", "second")

		value, ok := acc.Get("goal")
		assert.True(t, ok)
		assert.Equal(t, "second", value)
		assert.Equal(t, []string{"goal", "role"}, acc.Keys())
	})

	t.Run("trims whitespace", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record("goal", "  padded  ")

		value, _ := acc.Get("goal")
		assert.Equal(t, "padded", value)
	})
}

func TestAccumulator_AnsweredCount(t *testing.T) {
	acc := NewAccumulator()
	acc.Record("goal", "something")
	acc.Record("role", "")
	acc.Record("context", "   ")
	acc.Record("example", "a sample")

	// Skipped (empty) answers occupy a slot but do not count as answered.
	assert.Equal(t, 2, acc.AnsweredCount())
	assert.Len(t, acc.Keys(), 4)
}

func TestAccumulator_Serialize(t *testing.T) {
	t.Run("deterministic ordered block", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record("goal", "summarize")
		acc.Record("role", "editor")

		first := acc.Serialize()
		second := acc.Serialize()
		assert.Equal(t, first, second)
		assert.Equal(t, "goal: summarize\nrole: editor", first)
	})

	t.Run("omits skipped answers", func(t *testing.T) {
		acc := NewAccumulator()
		acc.Record("goal", "summarize")
		acc.Record("role", "")

		assert.Equal(t, "goal: summarize", acc.Serialize())
	})

	t.Run("empty accumulator serializes empty", func(t *testing.T) {
		acc := NewAccumulator()
		assert.Equal(t, "", acc.Serialize())
	})
}

func TestAccumulator_Reset(t *testing.T) {
	acc := NewAccumulator()
	acc.Record("goal", "summarize")
	acc.Reset()

	assert.Equal(t, 0, acc.AnsweredCount())
	assert.Empty(t, acc.Keys())
	assert.Equal(t, "", acc.Serialize())
}
