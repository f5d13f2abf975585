package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/enhancer-api/internal/ledger"
	"github.com/promptforge/enhancer-api/internal/models"
)

var (
	// ErrCallInFlight is returned when a submit arrives while a provider
	// call is already pending for the session. Two in-flight calls could
	// race to double-increment the round or create two versions for one
	// logical action, so the second is rejected, never fired concurrently.
	ErrCallInFlight = errors.New("session: a provider call is already in flight")

	// ErrRoundIncomplete is returned when a round is confirmed before the
	// minimum-answer threshold is met.
	ErrRoundIncomplete = errors.New("session: round has not met its minimum answers")

	// ErrInvalidTransition is returned when a command is not legal in the
	// current state.
	ErrInvalidTransition = errors.New("session: command not allowed in current state")

	// ErrTerminal is returned when a command other than a finish action is
	// issued after the session has reached a terminal state.
	ErrTerminal = errors.New("session: session has reached a terminal state")
)

// Machine drives one session's round/iteration flow. All transitions are
// triggered by discrete commands under the machine's lock: the session is
// the exclusive owner of its accumulator and round state, with no
// cross-session sharing.
type Machine struct {
	mu       sync.Mutex
	sess     *PromptSession
	spec     ModeSpec
	acc      *Accumulator
	state    State
	cursor   int
	furthest int
	batch    []models.Question

	latestResult string
	lazyTweaks   []string
	analysis     *Analysis

	epoch    int
	inFlight bool

	// Versions is the client-side view of the prompt family generated by
	// this session.
	Versions *ledger.Ledger
	// Events receives a snapshot event on every observable transition.
	Events *Hub
}

// NewMachine creates an Idle machine for the given session
func NewMachine(sess *PromptSession) (*Machine, error) {
	spec, ok := SpecFor(sess.Mode)
	if !ok {
		return nil, fmt.Errorf("session: unknown mode %q", sess.Mode)
	}
	if sess.CurrentRound < 1 {
		sess.CurrentRound = 1
	}
	return &Machine{
		sess:     sess,
		spec:     spec,
		acc:      NewAccumulator(),
		state:    StateIdle,
		Versions: ledger.New(),
		Events:   NewHub(),
	}, nil
}

// Session returns the underlying session record. It is only safe for the
// fields fixed at creation (ID, UserID, Mode, Language, CreatedAt); mutable
// fields go through the locked accessors below.
func (m *Machine) Session() *PromptSession { return m.sess }

// State returns the current machine state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Spec returns the mode constants the machine runs under
func (m *Machine) Spec() ModeSpec { return m.spec }

// Accumulator exposes the session's answer accumulator
func (m *Machine) Accumulator() *Accumulator { return m.acc }

// BeginCall reserves the session's single provider-call slot and returns the
// current epoch. Results must be applied with the same epoch; a Reset in the
// meantime bumps the epoch so the stale result is discarded on arrival.
func (m *Machine) BeginCall() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return 0, ErrCallInFlight
	}
	m.inFlight = true
	return m.epoch, nil
}

// EndCall releases the provider-call slot
func (m *Machine) EndCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
}

// stale reports whether a result from the given epoch belongs to a torn-down
// session generation and must not be applied.
func (m *Machine) stale(epoch int) bool {
	return epoch != m.epoch
}

// BeginRound seeds the first question batch and opens round 1. A mode with
// no questions (SuperLazy) completes its only round immediately.
func (m *Machine) BeginRound(questions []models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return ErrInvalidTransition
	}
	if len(questions) == 0 {
		m.state = StateRoundComplete
		m.publishLocked(models.EventTypeStateChanged)
		return nil
	}
	m.batch = questions
	m.cursor = 0
	m.furthest = 0
	m.state = StateAwaitingAnswers
	m.publishLocked(models.EventTypeQuestionsReady)
	return nil
}

// SubmitAnswer records an answer for a question key. Submitting at the
// cursor advances it; an empty value is a skip and still advances. Answering
// a key from an earlier position or round overwrites the stored answer in
// place without disturbing forward progress. When the last question of the
// round is reached and the round is eligible to complete, the machine
// transitions to RoundComplete automatically.
func (m *Machine) SubmitAnswer(questionKey, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitAnswerLocked(questionKey, value)
}

func (m *Machine) submitAnswerLocked(questionKey, value string) error {
	if m.state != StateAwaitingAnswers {
		if m.isTerminal() {
			return ErrTerminal
		}
		return ErrInvalidTransition
	}

	idx := m.indexOf(questionKey)
	if idx == m.cursor {
		m.acc.Record(questionKey, value)
		m.cursor++
		if m.cursor > m.furthest {
			m.furthest = m.cursor
		} else if m.cursor < m.furthest {
			// Rejoin prior forward progress after a Previous.
			m.cursor = m.furthest
		}
	} else {
		// Revisit or cross-round edit: overwrite by key only.
		m.acc.Record(questionKey, value)
	}

	if m.furthest >= len(m.batch) && m.roundEligible() {
		m.state = StateRoundComplete
	}
	m.publishLocked(models.EventTypeStateChanged)
	return nil
}

// Skip submits an empty answer for the question at the cursor
func (m *Machine) Skip() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwaitingAnswers {
		return ErrInvalidTransition
	}
	if m.cursor >= len(m.batch) {
		return ErrInvalidTransition
	}
	return m.submitAnswerLocked(m.batch[m.cursor].Topic, "")
}

// Previous moves the cursor back one question so an earlier answer can be
// revisited and overwritten. Forward progress is kept: the next at-cursor
// submit returns to the furthest position reached.
func (m *Machine) Previous() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwaitingAnswers {
		return ErrInvalidTransition
	}
	if m.cursor == 0 {
		return ErrInvalidTransition
	}
	m.cursor--
	return nil
}

// ConfirmRound closes the current round explicitly. It fails with
// ErrRoundIncomplete until the mode's minimum-answer threshold is met.
func (m *Machine) ConfirmRound() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateRoundComplete {
		return nil
	}
	if m.state != StateAwaitingAnswers {
		return ErrInvalidTransition
	}
	if !m.roundEligible() {
		return ErrRoundIncomplete
	}
	m.state = StateRoundComplete
	m.publishLocked(models.EventTypeStateChanged)
	return nil
}

// roundEligible reports whether the current round may complete. GuidedFive
// needs its fixed minimum of answered questions; the topic and analysis
// flows need every slot filled or explicitly skipped.
func (m *Machine) roundEligible() bool {
	if m.spec.MinimumAnswers > 0 {
		return m.acc.AnsweredCount() >= m.spec.MinimumAnswers
	}
	return m.furthest >= len(m.batch)
}

// OfferPreliminary surfaces a usable-but-not-final result after a completed
// round in modes that offer one.
func (m *Machine) OfferPreliminary(epoch int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale(epoch) {
		return nil
	}
	if m.state != StateRoundComplete || !m.spec.OffersPreliminary {
		return ErrInvalidTransition
	}
	m.latestResult = text
	m.state = StatePreliminaryOffered
	m.publishLocked(models.EventTypePreliminaryReady)
	return nil
}

// Accept finishes the session with the latest generated result
func (m *Machine) Accept() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StatePreliminaryOffered, StateRoundComplete, StateMaxIterations:
		if m.latestResult == "" {
			return ErrInvalidTransition
		}
		m.state = StateFinished
		m.publishLocked(models.EventTypeStateChanged)
		return nil
	case StateFinished:
		return nil
	default:
		return ErrInvalidTransition
	}
}

// NextRound opens the next round with a fresh question batch. Only legal
// from PreliminaryOffered while rounds remain; advancing past totalRounds is
// impossible by construction.
func (m *Machine) NextRound(epoch int, questions []models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale(epoch) {
		return nil
	}
	if m.state != StatePreliminaryOffered {
		return ErrInvalidTransition
	}
	if m.sess.CurrentRound >= m.spec.TotalRounds {
		return ErrInvalidTransition
	}
	m.sess.CurrentRound++
	m.batch = questions
	m.cursor = 0
	m.furthest = 0
	m.state = StateAwaitingAnswers
	m.publishLocked(models.EventTypeQuestionsReady)
	return nil
}

// HasMoreRounds reports whether another refinement round is available
func (m *Machine) HasMoreRounds() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.CurrentRound < m.spec.TotalRounds
}

// CompleteSynthesis applies a successful final synthesis. From a completed
// round (or an offered preliminary at the last round) the session finishes;
// a tweak on an already finished session just replaces the latest result.
func (m *Machine) CompleteSynthesis(epoch int, text string, tweaks []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale(epoch) {
		return nil
	}
	switch m.state {
	case StateRoundComplete, StatePreliminaryOffered, StateFinished, StateMaxIterations:
	default:
		return ErrInvalidTransition
	}
	m.latestResult = text
	if tweaks != nil {
		m.lazyTweaks = tweaks
	}
	if m.state != StateMaxIterations {
		m.state = StateFinished
	}
	m.publishLocked(models.EventTypeResultReady)
	return nil
}

// ApplyAnalysis starts the next analysis iteration: the verdict is stored
// and the generated follow-up questions open a new answer round. At the
// iteration cap the session terminates instead.
func (m *Machine) ApplyAnalysis(epoch int, analysis Analysis, questions []models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale(epoch) {
		return nil
	}
	if !m.spec.UsesAnalysis {
		return ErrInvalidTransition
	}
	switch m.state {
	case StateIdle:
		// First iteration: round stays 1.
	case StateRoundComplete:
		if m.sess.CurrentRound >= m.spec.TotalRounds {
			m.state = StateMaxIterations
			m.publishLocked(models.EventTypeSessionTerminated)
			return nil
		}
		m.sess.CurrentRound++
	default:
		return ErrInvalidTransition
	}
	m.analysis = &analysis
	m.batch = questions
	m.cursor = 0
	m.furthest = 0
	m.state = StateAwaitingAnswers
	m.publishLocked(models.EventTypeAnalysisReady)
	return nil
}

// ApplyImprovement applies an iterative-analysis improvement result. The
// session stays on the completed round so the user can accept the text or
// continue into another analysis pass; at the cap it terminates.
func (m *Machine) ApplyImprovement(epoch int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale(epoch) {
		return nil
	}
	if m.state != StateRoundComplete || !m.spec.UsesAnalysis {
		return ErrInvalidTransition
	}
	m.latestResult = text
	if m.sess.CurrentRound >= m.spec.TotalRounds {
		m.state = StateMaxIterations
		m.publishLocked(models.EventTypeSessionTerminated)
		return nil
	}
	m.publishLocked(models.EventTypeResultReady)
	return nil
}

// Reset is the Start Over action: the accumulator, results, and round
// counters are discarded, and the epoch advances so any in-flight provider
// result is dropped when it arrives instead of mutating the new session.
func (m *Machine) Reset(originalInput string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.acc.Reset()
	m.batch = nil
	m.cursor = 0
	m.furthest = 0
	m.latestResult = ""
	m.lazyTweaks = nil
	m.analysis = nil
	m.sess.CurrentRound = 1
	if strings.TrimSpace(originalInput) != "" {
		m.sess.OriginalInput = strings.TrimSpace(originalInput)
	}
	// The old input's version family is abandoned with the rest.
	m.sess.FamilyRootID = ""
	m.sess.PersistedRootID = ""
	m.state = StateIdle
	m.publishLocked(models.EventTypeSessionReset)
}

// RestoreResult reverts the live result to a past version's text. Saved
// versions themselves are immutable; only the in-memory result feeding
// future synthesis calls changes.
func (m *Machine) RestoreResult(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateRoundComplete, StatePreliminaryOffered, StateFinished, StateMaxIterations:
	default:
		return ErrInvalidTransition
	}
	m.latestResult = text
	m.publishLocked(models.EventTypeResultReady)
	return nil
}

// LatestResult returns the most recent generated text
func (m *Machine) LatestResult() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestResult
}

// InputState is the view of session state a synthesis request is built from
type InputState struct {
	OriginalInput string
	Answers       string
	Round         int
	TotalRounds   int
	Language      string
}

// InputState reads the request-building fields under the machine lock
func (m *Machine) InputState() InputState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return InputState{
		OriginalInput: m.sess.OriginalInput,
		Answers:       m.acc.Serialize(),
		Round:         m.sess.CurrentRound,
		TotalRounds:   m.spec.TotalRounds,
		Language:      m.sess.Language,
	}
}

// SaveState is the view of session state a persistence write needs
type SaveState struct {
	OriginalInput   string
	Mode            Mode
	LatestResult    string
	Answers         map[string]any
	PersistedRootID string
}

// SaveState reads the persistence fields under the machine lock
func (m *Machine) SaveState() SaveState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SaveState{
		OriginalInput:   m.sess.OriginalInput,
		Mode:            m.sess.Mode,
		LatestResult:    m.latestResult,
		Answers:         m.acc.Snapshot(),
		PersistedRootID: m.sess.PersistedRootID,
	}
}

// MarkPersistedRoot records the stored family root after the first
// successful save so later saves attach to it.
func (m *Machine) MarkPersistedRoot(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess.PersistedRootID == "" {
		m.sess.PersistedRootID = id
	}
}

// VersionFamily returns the root id of the session's generated version
// family, or "" before the first synthesis.
func (m *Machine) VersionFamily() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.FamilyRootID
}

// AppendVersion records an immutable version for a synthesis result and
// links it into the session's family. The session fields and the family
// root are read and updated under the machine lock.
func (m *Machine) AppendVersion(text string) *models.PromptRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := &models.PromptRecord{
		ID:                uuid.New().String(),
		OriginalInput:     m.sess.OriginalInput,
		GeneratedPrompt:   text,
		Mode:              string(m.sess.Mode),
		QuestionsSnapshot: m.acc.Snapshot(),
		UserID:            m.sess.UserID,
	}
	if m.sess.FamilyRootID != "" {
		parentID := m.sess.FamilyRootID
		record.ParentID = &parentID
	}
	m.Versions.Append(record)
	if m.sess.FamilyRootID == "" {
		m.sess.FamilyRootID = record.ID
	}
	return record
}

func (m *Machine) isTerminal() bool {
	return m.state == StateFinished || m.state == StateMaxIterations
}

func (m *Machine) indexOf(questionKey string) int {
	for i, q := range m.batch {
		if q.Topic == questionKey {
			return i
		}
	}
	return -1
}

// Snapshot builds the read model the presentation layer renders from
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	questions := make([]models.Question, len(m.batch))
	copy(questions, m.batch)
	return Snapshot{
		SessionID:     m.sess.ID,
		Mode:          m.sess.Mode,
		State:         m.state,
		OriginalInput: m.sess.OriginalInput,
		Language:      m.sess.Language,
		CurrentRound:  m.sess.CurrentRound,
		TotalRounds:   m.spec.TotalRounds,
		Cursor:        m.cursor,
		Questions:     questions,
		AnsweredCount: m.acc.AnsweredCount(),
		AnswerSummary: m.acc.Serialize(),
		LatestResult:  m.latestResult,
		LazyTweaks:    append([]string(nil), m.lazyTweaks...),
		Analysis:      m.analysis,
	}
}

func (m *Machine) publishLocked(eventType string) {
	if m.Events == nil {
		return
	}
	snap := m.snapshotLocked()
	m.Events.Publish(models.SessionEvent{
		SessionID: m.sess.ID,
		EventType: eventType,
		Data: map[string]any{
			"state":          string(snap.State),
			"current_round":  snap.CurrentRound,
			"total_rounds":   snap.TotalRounds,
			"answered_count": snap.AnsweredCount,
		},
		Timestamp: time.Now().UTC(),
	})
}

// NewSessionID returns a fresh session identifier
func NewSessionID() string {
	return uuid.New().String()
}
