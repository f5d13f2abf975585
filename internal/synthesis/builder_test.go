package synthesis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInput() Input {
	return Input{
		OriginalInput:     "write a product description",
		SerializedAnswers: "goal: sell sneakers\ntone: playful",
		Round:             1,
		TotalRounds:       3,
		Language:          "en",
	}
}

func TestBuildDirect(t *testing.T) {
	req := BuildDirect("  just enhance this  ")

	assert.Equal(t, VariantDirect, req.Variant)
	// The direct payload carries the original input and nothing else.
	assert.Equal(t, "just enhance this", req.UserPayload)
	assert.NotContains(t, req.UserPayload, "answers")
}

func TestBuildQuestions(t *testing.T) {
	t.Run("first round lists the fixed topics", func(t *testing.T) {
		req := BuildQuestions(testInput())

		assert.Equal(t, VariantFirstRoundQuestion, req.Variant)
		for _, topic := range []string{"goal", "role", "context", "output_format", "warning", "example"} {
			assert.Contains(t, req.UserPayload, topic)
		}
		assert.Contains(t, req.UserPayload, "round: 1 of 3")
	})

	t.Run("later rounds use the follow-up variant", func(t *testing.T) {
		in := testInput()
		in.Round = 2
		req := BuildQuestions(in)

		assert.Equal(t, VariantNextRoundQuestion, req.Variant)
		assert.Contains(t, req.UserPayload, "round: 2 of 3")
		assert.Contains(t, req.UserPayload, "goal: sell sneakers")
	})
}

func TestBuildPreliminary(t *testing.T) {
	req := BuildPreliminary(testInput())

	assert.Equal(t, VariantPreliminaryResult, req.Variant)
	assert.Contains(t, req.UserPayload, "write a product description")
	assert.Contains(t, req.UserPayload, "tone: playful")
}

func TestBuildFinal(t *testing.T) {
	req := BuildFinal(testInput())

	assert.Equal(t, VariantFinalResult, req.Variant)
	assert.Contains(t, req.SystemInstruction, "enhanced_prompt")
	assert.Contains(t, req.UserPayload, "goal: sell sneakers")
}

func TestBuildAnalysis(t *testing.T) {
	t.Run("includes the current prompt", func(t *testing.T) {
		req := BuildAnalysis(testInput(), "current draft text")

		assert.Equal(t, VariantAnalysis, req.Variant)
		assert.Contains(t, req.UserPayload, "current draft text")
	})

	t.Run("first pass has no prompt yet", func(t *testing.T) {
		req := BuildAnalysis(testInput(), "")
		assert.NotContains(t, req.UserPayload, "Current prompt under analysis")
	})
}

func TestBuildImprovement(t *testing.T) {
	req := BuildImprovement(testInput(), "prompt v1")

	assert.Equal(t, VariantImprovement, req.Variant)
	assert.Contains(t, req.UserPayload, "prompt v1")
	assert.Contains(t, req.UserPayload, "goal: sell sneakers")
}

func TestBuildTweak(t *testing.T) {
	req := BuildTweak("existing prompt", "make it funnier", "ja")

	assert.Equal(t, VariantImprovement, req.Variant)
	assert.Contains(t, req.UserPayload, "make it funnier")
	assert.Contains(t, req.UserPayload, "existing prompt")
	assert.Contains(t, req.UserPayload, "language: ja")
	// Tweaks operate outside round bookkeeping.
	assert.NotContains(t, req.UserPayload, "round:")
}

func TestBuild_LanguageDefault(t *testing.T) {
	in := testInput()
	in.Language = ""
	req := BuildFinal(in)
	assert.Contains(t, req.UserPayload, "language: en")
}

func TestDefaultQuestionSets(t *testing.T) {
	t.Run("topic fallback covers the fixed slots", func(t *testing.T) {
		questions := DefaultTopicQuestions("en")
		require.Len(t, questions, 6)

		var topics []string
		for _, q := range questions {
			topics = append(topics, q.Topic)
			assert.NotEmpty(t, q.Prompt)
		}
		assert.Equal(t, []string{"goal", "role", "context", "output_format", "warning", "example"}, topics)
	})

	t.Run("guided fallback has five questions", func(t *testing.T) {
		questions := DefaultGuidedQuestions("en")
		require.Len(t, questions, 5)
	})

	t.Run("localized prompts differ from english", func(t *testing.T) {
		en := DefaultTopicQuestions("en")
		ja := DefaultTopicQuestions("ja")
		require.Len(t, ja, len(en))
		assert.NotEqual(t, en[0].Prompt, ja[0].Prompt)
	})

	t.Run("unknown language falls back to english", func(t *testing.T) {
		en := DefaultTopicQuestions("en")
		xx := DefaultTopicQuestions("xx")
		for i := range en {
			assert.Equal(t, en[i].Prompt, xx[i].Prompt)
		}
	})
}

func TestSystemInstructionsDemandJSON(t *testing.T) {
	for name, req := range map[string]Request{
		"direct":      BuildDirect("x"),
		"questions":   BuildQuestions(testInput()),
		"preliminary": BuildPreliminary(testInput()),
		"final":       BuildFinal(testInput()),
		"analysis":    BuildAnalysis(testInput(), "x"),
		"improvement": BuildImprovement(testInput(), "x"),
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, strings.Contains(req.SystemInstruction, "JSON object"))
		})
	}
}
