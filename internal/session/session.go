package session

import (
	"time"

	"github.com/promptforge/enhancer-api/internal/models"
)

// Mode selects which state machine variant runs for a session. Chosen once
// at session start and fixed for the session's lifetime.
type Mode string

const (
	ModeSuperLazy         Mode = "super_lazy"
	ModeGuidedFive        Mode = "guided_five"
	ModeThreeRoundTopic   Mode = "three_round_topic"
	ModeIterativeAnalysis Mode = "iterative_analysis"
)

// State is the observable state of a session's round machine
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingAnswers    State = "awaiting_answers"
	StateRoundComplete      State = "round_complete"
	StatePreliminaryOffered State = "preliminary_offered"
	StateFinished           State = "finished"
	StateMaxIterations      State = "max_iterations_reached"
)

// ModeSpec holds the fixed product constants for one mode. The 3-of-5
// minimum and the iteration caps are deliberate constants, not derived.
type ModeSpec struct {
	TotalRounds       int
	QuestionsPerRound int
	MinimumAnswers    int
	OffersPreliminary bool
	UsesAnalysis      bool
}

var modeTable = map[Mode]ModeSpec{
	ModeSuperLazy:         {TotalRounds: 1, QuestionsPerRound: 0, MinimumAnswers: 0},
	ModeGuidedFive:        {TotalRounds: 1, QuestionsPerRound: 5, MinimumAnswers: 3},
	ModeThreeRoundTopic:   {TotalRounds: 3, QuestionsPerRound: 6, OffersPreliminary: true},
	ModeIterativeAnalysis: {TotalRounds: 5, UsesAnalysis: true},
}

// SpecFor returns the mode constants for m and whether m is a known mode
func SpecFor(m Mode) (ModeSpec, bool) {
	spec, ok := modeTable[m]
	return spec, ok
}

// PromptSession is the in-memory state for one user visit. It lives until
// reset or eviction; nothing about it survives a page reload.
type PromptSession struct {
	ID            string
	UserID        string
	OriginalInput string
	Mode          Mode
	Language      string
	CurrentRound  int
	CreatedAt     time.Time

	// FamilyRootID is the id of the first generated version; later
	// versions join its family.
	FamilyRootID string
	// PersistedRootID is set once the family root has been saved, so
	// later saves attach to it.
	PersistedRootID string
}

// Analysis is the provider's quality verdict on the current prompt during
// iterative refinement.
type Analysis struct {
	Score      int    `json:"score"`
	ScoreLabel string `json:"score_label"`
}

// Snapshot is the read model handed to the presentation layer
type Snapshot struct {
	SessionID     string            `json:"session_id"`
	Mode          Mode              `json:"mode"`
	State         State             `json:"state"`
	OriginalInput string            `json:"original_input"`
	Language      string            `json:"language"`
	CurrentRound  int               `json:"current_round"`
	TotalRounds   int               `json:"total_rounds"`
	Cursor        int               `json:"cursor"`
	Questions     []models.Question `json:"questions,omitempty"`
	AnsweredCount int               `json:"answered_count"`
	AnswerSummary string            `json:"answer_summary,omitempty"`
	LatestResult  string            `json:"latest_result,omitempty"`
	LazyTweaks    []string          `json:"lazy_tweaks,omitempty"`
	Analysis      *Analysis         `json:"analysis,omitempty"`
}
