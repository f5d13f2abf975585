package synthesis

import (
	"encoding/json"
	"strings"

	"github.com/promptforge/enhancer-api/internal/models"
)

// Variant tags the exact response shape expected from the generation
// collaborator. Each known mode/operation has exactly one variant; a
// response that parses but does not satisfy its variant is rejected with a
// SchemaError, distinct from ParseError.
type Variant string

const (
	VariantDirect             Variant = "direct"
	VariantFirstRoundQuestion Variant = "first_round_questions"
	VariantNextRoundQuestion  Variant = "next_round_questions"
	VariantPreliminaryResult  Variant = "preliminary_result"
	VariantFinalResult        Variant = "final_result"
	VariantAnalysis           Variant = "analysis"
	VariantImprovement        Variant = "improvement"
)

// ScoreLabels is the closed set of analysis verdict labels
var ScoreLabels = []string{"poor", "fair", "good", "excellent"}

// Response is the validated, tagged result of one provider call. Only the
// fields belonging to the variant are populated.
type Response struct {
	Variant Variant

	GeneratedText     string
	Questions         []models.Question
	PreliminaryPrompt string
	EnhancedPrompt    string
	LazyTweaks        []string
	Score             int
	ScoreLabel        string
	ImprovedPrompt    string
}

type rawQuestion struct {
	Topic        string                  `json:"topic"`
	Prompt       string                  `json:"prompt"`
	Kind         string                  `json:"kind"`
	Options      []models.QuestionOption `json:"options"`
	AllowsCustom bool                    `json:"allows_custom"`
}

type rawResponse struct {
	GeneratedText     *string       `json:"generated_text"`
	Questions         []rawQuestion `json:"questions"`
	PreliminaryPrompt *string       `json:"preliminary_prompt"`
	EnhancedPrompt    *string       `json:"enhanced_prompt"`
	LazyTweaks        []string      `json:"lazy_tweaks"`
	Score             *float64      `json:"score"`
	ScoreLabel        *string       `json:"score_label"`
	ImprovedPrompt    *string       `json:"improved_prompt"`
}

// ParseResponse extracts and validates the provider's raw text against the
// expected variant.
func ParseResponse(variant Variant, raw string) (*Response, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var body rawResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &models.ParseError{Reason: err.Error()}
	}

	resp := &Response{Variant: variant}
	switch variant {
	case VariantDirect:
		if body.GeneratedText == nil || strings.TrimSpace(*body.GeneratedText) == "" {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "generated_text"}
		}
		resp.GeneratedText = strings.TrimSpace(*body.GeneratedText)

	case VariantFirstRoundQuestion, VariantNextRoundQuestion:
		questions, err := validateQuestions(variant, body.Questions)
		if err != nil {
			return nil, err
		}
		resp.Questions = questions

	case VariantPreliminaryResult:
		if body.PreliminaryPrompt == nil || strings.TrimSpace(*body.PreliminaryPrompt) == "" {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "preliminary_prompt"}
		}
		resp.PreliminaryPrompt = strings.TrimSpace(*body.PreliminaryPrompt)

	case VariantFinalResult:
		if body.EnhancedPrompt == nil || strings.TrimSpace(*body.EnhancedPrompt) == "" {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "enhanced_prompt"}
		}
		resp.EnhancedPrompt = strings.TrimSpace(*body.EnhancedPrompt)
		resp.LazyTweaks = body.LazyTweaks

	case VariantAnalysis:
		if body.Score == nil {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "score"}
		}
		score := int(*body.Score)
		if score < 0 || score > 100 {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "score in [0,100]"}
		}
		if body.ScoreLabel == nil || !validScoreLabel(*body.ScoreLabel) {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "score_label"}
		}
		questions, err := validateQuestions(variant, body.Questions)
		if err != nil {
			return nil, err
		}
		resp.Score = score
		resp.ScoreLabel = *body.ScoreLabel
		resp.Questions = questions

	case VariantImprovement:
		if body.ImprovedPrompt == nil || strings.TrimSpace(*body.ImprovedPrompt) == "" {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "improved_prompt"}
		}
		resp.ImprovedPrompt = strings.TrimSpace(*body.ImprovedPrompt)

	default:
		return nil, &models.SchemaError{Variant: string(variant), Missing: "known variant"}
	}

	return resp, nil
}

func validateQuestions(variant Variant, raw []rawQuestion) ([]models.Question, error) {
	if len(raw) == 0 {
		return nil, &models.SchemaError{Variant: string(variant), Missing: "questions"}
	}
	out := make([]models.Question, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, q := range raw {
		topic := strings.TrimSpace(q.Topic)
		prompt := strings.TrimSpace(q.Prompt)
		if topic == "" {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "questions[].topic"}
		}
		if prompt == "" {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "questions[].prompt"}
		}
		if _, dup := seen[topic]; dup {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "unique questions[].topic"}
		}
		seen[topic] = struct{}{}

		kind := models.QuestionKind(q.Kind)
		switch kind {
		case models.QuestionKindSelect, models.QuestionKindText, models.QuestionKindTextarea:
		default:
			return nil, &models.SchemaError{Variant: string(variant), Missing: "questions[].kind"}
		}
		if kind == models.QuestionKindSelect && len(q.Options) == 0 {
			return nil, &models.SchemaError{Variant: string(variant), Missing: "questions[].options"}
		}
		out = append(out, models.Question{
			Topic:        topic,
			Prompt:       prompt,
			Kind:         kind,
			Options:      q.Options,
			AllowsCustom: q.AllowsCustom,
		})
	}
	return out, nil
}

func validScoreLabel(label string) bool {
	for _, l := range ScoreLabels {
		if l == label {
			return true
		}
	}
	return false
}
