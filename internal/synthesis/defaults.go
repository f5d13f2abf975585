package synthesis

import (
	"github.com/promptforge/enhancer-api/internal/i18n"
	"github.com/promptforge/enhancer-api/internal/models"
)

// firstRoundTopics are the fixed semantic slots of the first topic round
var firstRoundTopics = []string{"goal", "role", "context", "output_format", "warning", "example"}

// DefaultTopicQuestions is the fallback batch when the question-generation
// call fails. Fallbacks exist only for question generation; final prompt
// synthesis has no default and fails hard instead.
func DefaultTopicQuestions(language string) []models.Question {
	out := make([]models.Question, 0, len(firstRoundTopics))
	for _, topic := range firstRoundTopics {
		out = append(out, models.Question{
			Topic:        topic,
			Prompt:       i18n.Translate(language, "topic."+topic, defaultTopicPrompts[topic]),
			Kind:         models.QuestionKindTextarea,
			AllowsCustom: true,
		})
	}
	return out
}

// DefaultGuidedQuestions is the fallback batch for the five-question flow
func DefaultGuidedQuestions(language string) []models.Question {
	out := make([]models.Question, 0, len(guidedKeys))
	for _, key := range guidedKeys {
		out = append(out, models.Question{
			Topic:        key,
			Prompt:       i18n.Translate(language, "guided."+key, defaultGuidedPrompts[key]),
			Kind:         models.QuestionKindText,
			AllowsCustom: true,
		})
	}
	return out
}

var defaultTopicPrompts = map[string]string{
	"goal":          "What do you want the prompt to achieve?",
	"role":          "What role should the assistant take on?",
	"context":       "What background context matters here?",
	"output_format": "How should the output be formatted?",
	"warning":       "What should the assistant avoid doing?",
	"example":       "Can you give an example of a good result?",
}

var guidedKeys = []string{"goal", "audience", "tone", "length", "detail"}

var defaultGuidedPrompts = map[string]string{
	"goal":     "What do you want the prompt to achieve?",
	"audience": "Who is the audience for this prompt?",
	"tone":     "What tone should the result have?",
	"length":   "How long should the result be?",
	"detail":   "What key details must be included?",
}
