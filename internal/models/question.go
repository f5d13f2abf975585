package models

// QuestionKind defines how a clarifying question is presented
type QuestionKind string

const (
	QuestionKindSelect   QuestionKind = "select"
	QuestionKindText     QuestionKind = "text"
	QuestionKindTextarea QuestionKind = "textarea"
)

// QuestionOption is one selectable answer for a select question
type QuestionOption struct {
	Text  string `json:"text"`
	Emoji string `json:"emoji,omitempty"`
}

// Question is one clarifying question in a round. Questions are immutable
// once issued by the generation collaborator or the default fallback table.
type Question struct {
	Topic        string           `json:"topic"`
	Prompt       string           `json:"prompt"`
	Kind         QuestionKind     `json:"kind"`
	Options      []QuestionOption `json:"options,omitempty"`
	AllowsCustom bool             `json:"allows_custom"`
}
