package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/enhancer-api/internal/models"
)

const validQuestionsJSON = `{"questions":[
	{"topic":"goal","prompt":"What is the goal?","kind":"text","allows_custom":true},
	{"topic":"tone","prompt":"Pick a tone","kind":"select","options":[{"text":"Formal","emoji":"🎩"},{"text":"Casual","emoji":"😎"}]}
]}`

func TestParseResponse_Direct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		resp, err := ParseResponse(VariantDirect, `{"generated_text":"  a prompt  "}`)
		require.NoError(t, err)
		assert.Equal(t, "a prompt", resp.GeneratedText)
	})

	t.Run("missing field is a schema error", func(t *testing.T) {
		_, err := ParseResponse(VariantDirect, `{"unrelated":"x"}`)
		var schemaErr *models.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "generated_text", schemaErr.Missing)
	})

	t.Run("empty field is a schema error", func(t *testing.T) {
		_, err := ParseResponse(VariantDirect, `{"generated_text":"   "}`)
		var schemaErr *models.SchemaError
		assert.ErrorAs(t, err, &schemaErr)
	})

	t.Run("garbage is a parse error, not a schema error", func(t *testing.T) {
		_, err := ParseResponse(VariantDirect, "no json here")
		var parseErr *models.ParseError
		assert.ErrorAs(t, err, &parseErr)
	})
}

func TestParseResponse_Questions(t *testing.T) {
	t.Run("valid batch", func(t *testing.T) {
		resp, err := ParseResponse(VariantFirstRoundQuestion, validQuestionsJSON)
		require.NoError(t, err)
		require.Len(t, resp.Questions, 2)
		assert.Equal(t, "goal", resp.Questions[0].Topic)
		assert.Equal(t, models.QuestionKindSelect, resp.Questions[1].Kind)
		assert.Len(t, resp.Questions[1].Options, 2)
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		_, err := ParseResponse(VariantNextRoundQuestion, `{"questions":[]}`)
		var schemaErr *models.SchemaError
		assert.ErrorAs(t, err, &schemaErr)
	})

	t.Run("duplicate topics rejected", func(t *testing.T) {
		_, err := ParseResponse(VariantFirstRoundQuestion, `{"questions":[
			{"topic":"goal","prompt":"a","kind":"text"},
			{"topic":"goal","prompt":"b","kind":"text"}
		]}`)
		assert.Error(t, err)
	})

	t.Run("select without options rejected", func(t *testing.T) {
		_, err := ParseResponse(VariantFirstRoundQuestion, `{"questions":[
			{"topic":"tone","prompt":"Pick one","kind":"select"}
		]}`)
		assert.Error(t, err)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := ParseResponse(VariantFirstRoundQuestion, `{"questions":[
			{"topic":"goal","prompt":"a","kind":"slider"}
		]}`)
		assert.Error(t, err)
	})
}

func TestParseResponse_Preliminary(t *testing.T) {
	resp, err := ParseResponse(VariantPreliminaryResult, `{"preliminary_prompt":"a draft"}`)
	require.NoError(t, err)
	assert.Equal(t, "a draft", resp.PreliminaryPrompt)

	_, err = ParseResponse(VariantPreliminaryResult, `{"enhanced_prompt":"wrong variant"}`)
	assert.Error(t, err)
}

func TestParseResponse_Final(t *testing.T) {
	t.Run("with tweaks", func(t *testing.T) {
		resp, err := ParseResponse(VariantFinalResult, `{"enhanced_prompt":"final","lazy_tweaks":["shorter","funnier"]}`)
		require.NoError(t, err)
		assert.Equal(t, "final", resp.EnhancedPrompt)
		assert.Equal(t, []string{"shorter", "funnier"}, resp.LazyTweaks)
	})

	t.Run("tweaks are optional", func(t *testing.T) {
		resp, err := ParseResponse(VariantFinalResult, `{"enhanced_prompt":"final"}`)
		require.NoError(t, err)
		assert.Empty(t, resp.LazyTweaks)
	})
}

func TestParseResponse_Analysis(t *testing.T) {
	valid := `{"score":72,"score_label":"good","questions":[
		{"topic":"clarity","prompt":"Clarify X","kind":"textarea"}
	]}`

	t.Run("valid", func(t *testing.T) {
		resp, err := ParseResponse(VariantAnalysis, valid)
		require.NoError(t, err)
		assert.Equal(t, 72, resp.Score)
		assert.Equal(t, "good", resp.ScoreLabel)
		require.Len(t, resp.Questions, 1)
	})

	t.Run("score out of range", func(t *testing.T) {
		_, err := ParseResponse(VariantAnalysis, `{"score":140,"score_label":"good","questions":[{"topic":"a","prompt":"b","kind":"text"}]}`)
		assert.Error(t, err)
	})

	t.Run("unknown label", func(t *testing.T) {
		_, err := ParseResponse(VariantAnalysis, `{"score":50,"score_label":"meh","questions":[{"topic":"a","prompt":"b","kind":"text"}]}`)
		assert.Error(t, err)
	})

	t.Run("missing score", func(t *testing.T) {
		_, err := ParseResponse(VariantAnalysis, `{"score_label":"good","questions":[{"topic":"a","prompt":"b","kind":"text"}]}`)
		var schemaErr *models.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "score", schemaErr.Missing)
	})
}

func TestParseResponse_Improvement(t *testing.T) {
	resp, err := ParseResponse(VariantImprovement, `{"improved_prompt":"better"}`)
	require.NoError(t, err)
	assert.Equal(t, "better", resp.ImprovedPrompt)
}

func TestParseResponse_ProseWrappedPayload(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		raw := "Of course! Here it is:\n```json\n{\"generated_text\":\"wrapped\"}\n```\nHope that helps."
		resp, err := ParseResponse(VariantDirect, raw)
		require.NoError(t, err)
		assert.Equal(t, "wrapped", resp.GeneratedText)
	})

	t.Run("final result", func(t *testing.T) {
		raw := "Here is the final version:\n{\"enhanced_prompt\":\"X\"}\nEnjoy!"
		resp, err := ParseResponse(VariantFinalResult, raw)
		require.NoError(t, err)
		assert.Equal(t, "X", resp.EnhancedPrompt)
	})
}
