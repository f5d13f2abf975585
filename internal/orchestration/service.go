// Package orchestration coordinates the session state machines with the
// generation collaborator, the version ledger, and the persistence store.
// Every provider call runs under the session's single in-flight slot, and a
// successful synthesis records exactly one new version.
package orchestration

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge/enhancer-api/internal/metrics"
	"github.com/promptforge/enhancer-api/internal/models"
	"github.com/promptforge/enhancer-api/internal/provider"
	"github.com/promptforge/enhancer-api/internal/session"
	"github.com/promptforge/enhancer-api/internal/synthesis"
)

var (
	// ErrSessionNotFound is returned for an unknown or expired session id
	ErrSessionNotFound = errors.New("orchestration: session not found")

	// ErrNoResult is returned when a tweak or save is requested before any
	// synthesis has produced a result.
	ErrNoResult = errors.New("orchestration: session has no generated result yet")
)

// PromptPersistence is the storage collaborator for saved prompt versions.
// *store.PromptStore implements it against Postgres.
type PromptPersistence interface {
	Save(ctx context.Context, record *models.PromptRecord) (*models.PromptRecord, error)
	ListVersions(ctx context.Context, rootID string) ([]*models.PromptRecord, error)
	Get(ctx context.Context, id string) (*models.PromptRecord, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, userID, query string) ([]*models.PromptRecord, error)
	Count(ctx context.Context, userID string) (int, error)
}

// Service handles prompt-enhancement orchestration logic
type Service struct {
	sessions  *session.Manager
	generator provider.Generator
	prompts   PromptPersistence
	metrics   *metrics.SynthesisMetrics
}

// NewService creates a new orchestration service
func NewService(sessions *session.Manager, generator provider.Generator, prompts PromptPersistence, synthMetrics *metrics.SynthesisMetrics) *Service {
	return &Service{
		sessions:  sessions,
		generator: generator,
		prompts:   prompts,
		metrics:   synthMetrics,
	}
}

// Sessions exposes the session registry for the stream handler
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// StartSession creates a session in the given mode and runs the mode's
// opening provider call. A failed question-generation call falls back to the
// built-in question sets; a failed analysis call leaves the session idle so
// the client can retry.
func (s *Service) StartSession(ctx context.Context, userID, originalInput string, mode session.Mode, language string) (session.Snapshot, error) {
	m, err := s.sessions.Create(userID, originalInput, mode, language)
	if err != nil {
		return session.Snapshot{}, &models.ValidationError{Field: "original_input", Reason: err.Error()}
	}
	if s.metrics != nil {
		s.metrics.RecordSessionStarted(ctx, string(mode))
	}

	if err := s.openFirstRound(ctx, m); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// openFirstRound runs the mode's opening step on an idle machine: nothing
// for the direct mode, a question-generation call (with fallback) for the
// question modes, and a first analysis pass for iterative refinement.
func (s *Service) openFirstRound(ctx context.Context, m *session.Machine) error {
	switch m.Session().Mode {
	case session.ModeSuperLazy:
		return m.BeginRound(nil)

	case session.ModeGuidedFive, session.ModeThreeRoundTopic:
		_, resp, callErr := s.callProvider(ctx, m, synthesis.BuildQuestions(s.inputFor(m)))
		var questions []models.Question
		if callErr != nil {
			if errors.Is(callErr, session.ErrCallInFlight) {
				return callErr
			}
			questions = s.fallbackQuestions(m)
			log.Printf(`{"level":"warn","message":"Question generation failed, using fallback set","session_id":"%s","error":"%s"}`,
				m.Session().ID, callErr.Error())
		} else {
			questions = resp.Questions
		}
		return m.BeginRound(questions)

	case session.ModeIterativeAnalysis:
		epoch, resp, callErr := s.callProvider(ctx, m, synthesis.BuildAnalysis(s.inputFor(m), m.LatestResult()))
		if callErr != nil {
			// No fallback for analysis: the session stays idle and the
			// client may retry.
			return callErr
		}
		analysis := session.Analysis{Score: resp.Score, ScoreLabel: resp.ScoreLabel}
		return m.ApplyAnalysis(epoch, analysis, resp.Questions)
	}
	return nil
}

// GetSession returns the current read model for a session
func (s *Service) GetSession(id string) (session.Snapshot, error) {
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return m.Snapshot(), nil
}

// EndSession tears a session down explicitly
func (s *Service) EndSession(ctx context.Context, id string) error {
	m, err := s.machine(id)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordSessionEnded(ctx, string(m.Session().Mode))
	}
	s.sessions.Remove(id)
	return nil
}

// SubmitAnswer records one answer and returns the updated snapshot
func (s *Service) SubmitAnswer(id, questionKey, value string) (session.Snapshot, error) {
	if strings.TrimSpace(questionKey) == "" {
		return session.Snapshot{}, &models.ValidationError{Field: "question_key", Reason: "must not be empty"}
	}
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := m.SubmitAnswer(questionKey, value); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// Skip passes over the question at the cursor without an answer
func (s *Service) Skip(id string) (session.Snapshot, error) {
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := m.Skip(); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// Previous steps the cursor back to revisit an earlier question
func (s *Service) Previous(id string) (session.Snapshot, error) {
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := m.Previous(); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// ConfirmRound closes the current round once its minimum is met
func (s *Service) ConfirmRound(id string) (session.Snapshot, error) {
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := m.ConfirmRound(); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// RequestSynthesis runs the synthesis step the session's mode and state call
// for: direct generation, the final prompt, a preliminary draft, or an
// iterative improvement. On failure the machine keeps its pre-call state and
// no version is recorded.
func (s *Service) RequestSynthesis(ctx context.Context, id string) (session.Snapshot, error) {
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}

	switch m.Session().Mode {
	case session.ModeSuperLazy:
		epoch, resp, callErr := s.callProvider(ctx, m, synthesis.BuildDirect(m.InputState().OriginalInput))
		if callErr != nil {
			return m.Snapshot(), callErr
		}
		if err := m.CompleteSynthesis(epoch, resp.GeneratedText, nil); err != nil {
			return m.Snapshot(), err
		}
		m.AppendVersion(resp.GeneratedText)

	case session.ModeGuidedFive:
		epoch, resp, callErr := s.callProvider(ctx, m, synthesis.BuildFinal(s.inputFor(m)))
		if callErr != nil {
			return m.Snapshot(), callErr
		}
		if err := m.CompleteSynthesis(epoch, resp.EnhancedPrompt, resp.LazyTweaks); err != nil {
			return m.Snapshot(), err
		}
		m.AppendVersion(resp.EnhancedPrompt)

	case session.ModeThreeRoundTopic:
		if m.State() == session.StatePreliminaryOffered {
			epoch, resp, callErr := s.callProvider(ctx, m, synthesis.BuildFinal(s.inputFor(m)))
			if callErr != nil {
				return m.Snapshot(), callErr
			}
			if err := m.CompleteSynthesis(epoch, resp.EnhancedPrompt, resp.LazyTweaks); err != nil {
				return m.Snapshot(), err
			}
			m.AppendVersion(resp.EnhancedPrompt)
			break
		}
		epoch, resp, callErr := s.callProvider(ctx, m, synthesis.BuildPreliminary(s.inputFor(m)))
		if callErr != nil {
			return m.Snapshot(), callErr
		}
		if err := m.OfferPreliminary(epoch, resp.PreliminaryPrompt); err != nil {
			return m.Snapshot(), err
		}
		m.AppendVersion(resp.PreliminaryPrompt)

	case session.ModeIterativeAnalysis:
		epoch, resp, callErr := s.callProvider(ctx, m, synthesis.BuildImprovement(s.inputFor(m), m.LatestResult()))
		if callErr != nil {
			return m.Snapshot(), callErr
		}
		if err := m.ApplyImprovement(epoch, resp.ImprovedPrompt); err != nil {
			return m.Snapshot(), err
		}
		m.AppendVersion(resp.ImprovedPrompt)
	}

	return m.Snapshot(), nil
}

// Continue advances the flow after an intermediate result: the next topic
// round from an offered preliminary, or the next analysis pass after an
// iterative improvement.
func (s *Service) Continue(ctx context.Context, id string) (session.Snapshot, error) {
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}

	switch m.Session().Mode {
	case session.ModeThreeRoundTopic:
		if !m.HasMoreRounds() {
			return m.Snapshot(), session.ErrInvalidTransition
		}
		epoch, resp, callErr := s.callProvider(ctx, m, synthesis.BuildQuestions(s.nextRoundInput(m)))
		var questions []models.Question
		if callErr != nil {
			if errors.Is(callErr, session.ErrCallInFlight) {
				return m.Snapshot(), callErr
			}
			questions = synthesis.DefaultTopicQuestions(m.Session().Language)
			log.Printf(`{"level":"warn","message":"Next-round question generation failed, using fallback set","session_id":"%s","error":"%s"}`,
				m.Session().ID, callErr.Error())
		} else {
			questions = resp.Questions
		}
		if err := m.NextRound(epoch, questions); err != nil {
			return m.Snapshot(), err
		}

	case session.ModeIterativeAnalysis:
		epoch, resp, callErr := s.callProvider(ctx, m, synthesis.BuildAnalysis(s.inputFor(m), m.LatestResult()))
		if callErr != nil {
			return m.Snapshot(), callErr
		}
		analysis := session.Analysis{Score: resp.Score, ScoreLabel: resp.ScoreLabel}
		if err := m.ApplyAnalysis(epoch, analysis, resp.Questions); err != nil {
			return m.Snapshot(), err
		}

	default:
		return m.Snapshot(), session.ErrInvalidTransition
	}

	return m.Snapshot(), nil
}

// Accept finishes the session with its latest generated result as-is
func (s *Service) Accept(id string) (session.Snapshot, error) {
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	if err := m.Accept(); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// ApplyTweak runs a named one-shot adjustment of the latest result. The new
// text joins the session's version family.
func (s *Service) ApplyTweak(ctx context.Context, id, tweak string) (session.Snapshot, error) {
	if strings.TrimSpace(tweak) == "" {
		return session.Snapshot{}, &models.ValidationError{Field: "tweak", Reason: "must not be empty"}
	}
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	current := m.LatestResult()
	if current == "" {
		return m.Snapshot(), ErrNoResult
	}

	epoch, resp, callErr := s.callProvider(ctx, m, synthesis.BuildTweak(current, tweak, m.Session().Language))
	if callErr != nil {
		return m.Snapshot(), callErr
	}
	if err := m.CompleteSynthesis(epoch, resp.ImprovedPrompt, nil); err != nil {
		return m.Snapshot(), err
	}
	m.AppendVersion(resp.ImprovedPrompt)
	return m.Snapshot(), nil
}

// StartOver resets the session with fresh input and reopens the mode's
// first round. Any in-flight provider result is discarded on arrival.
func (s *Service) StartOver(ctx context.Context, id, originalInput string) (session.Snapshot, error) {
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	m.Reset(originalInput)
	if err := s.openFirstRound(ctx, m); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// ListVersions returns the session's generated version family in order
func (s *Service) ListVersions(id string) ([]*models.PromptRecord, error) {
	m, err := s.machine(id)
	if err != nil {
		return nil, err
	}
	rootID := m.VersionFamily()
	if rootID == "" {
		return nil, nil
	}
	return m.Versions.ListFamily(rootID), nil
}

// RevertToVersion makes a past version's text the session's live result.
// The version entries themselves are immutable.
func (s *Service) RevertToVersion(id, versionID string) (session.Snapshot, error) {
	m, err := s.machine(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	for _, rec := range m.Versions.ListFamily(m.VersionFamily()) {
		if rec.ID == versionID {
			if err := m.RestoreResult(rec.GeneratedPrompt); err != nil {
				return m.Snapshot(), err
			}
			return m.Snapshot(), nil
		}
	}
	return m.Snapshot(), ErrNoResult
}

// DeleteVersion removes one version from the session's family. Remaining
// versions keep their numbers.
func (s *Service) DeleteVersion(id, versionID string) error {
	m, err := s.machine(id)
	if err != nil {
		return err
	}
	return m.Versions.Delete(versionID)
}

// SavePrompt persists the session's latest version for an authenticated
// user. The first save starts a stored family; later saves attach to it.
func (s *Service) SavePrompt(ctx context.Context, id, userID string) (*models.PromptRecord, error) {
	if userID == "" {
		return nil, &models.ValidationError{Field: "user_id", Reason: "saving requires an authenticated user"}
	}
	m, err := s.machine(id)
	if err != nil {
		return nil, err
	}
	st := m.SaveState()
	if st.LatestResult == "" {
		return nil, ErrNoResult
	}

	record := &models.PromptRecord{
		ID:                uuid.New().String(),
		OriginalInput:     st.OriginalInput,
		GeneratedPrompt:   st.LatestResult,
		Mode:              string(st.Mode),
		QuestionsSnapshot: st.Answers,
		UserID:            userID,
	}
	if st.PersistedRootID != "" {
		parentID := st.PersistedRootID
		record.ParentID = &parentID
	}

	saved, err := s.prompts.Save(ctx, record)
	if err != nil {
		return nil, err
	}
	m.MarkPersistedRoot(saved.ID)

	log.Printf(`{"level":"info","message":"Prompt version saved","prompt_id":"%s","version":%d,"user_id":"%s"}`,
		saved.ID, saved.Version, userID)
	return saved, nil
}

// ListSaved returns a stored prompt family
func (s *Service) ListSaved(ctx context.Context, rootID string) ([]*models.PromptRecord, error) {
	return s.prompts.ListVersions(ctx, rootID)
}

// GetSaved returns one stored version
func (s *Service) GetSaved(ctx context.Context, id string) (*models.PromptRecord, error) {
	return s.prompts.Get(ctx, id)
}

// DeleteSaved removes a stored version, or a whole family for a root id
func (s *Service) DeleteSaved(ctx context.Context, id string) error {
	return s.prompts.Delete(ctx, id)
}

// SearchSaved returns a user's stored versions matching a query
func (s *Service) SearchSaved(ctx context.Context, userID, query string) ([]*models.PromptRecord, error) {
	return s.prompts.Search(ctx, userID, query)
}

// CountSaved returns how many versions a user has stored
func (s *Service) CountSaved(ctx context.Context, userID string) (int, error) {
	return s.prompts.Count(ctx, userID)
}

func (s *Service) machine(id string) (*session.Machine, error) {
	m, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m, nil
}

// callProvider runs one generation call under the session's in-flight slot
// and validates the response against the request's variant.
func (s *Service) callProvider(ctx context.Context, m *session.Machine, req synthesis.Request) (int, *synthesis.Response, error) {
	epoch, err := m.BeginCall()
	if err != nil {
		return 0, nil, err
	}
	defer m.EndCall()

	mode := string(m.Session().Mode)
	variant := string(req.Variant)
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordCallStarted(ctx, mode, variant)
	}

	raw, err := s.generator.Complete(ctx, req.SystemInstruction, req.UserPayload)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCallFailed(ctx, mode, variant, errorKind(err), time.Since(start))
		}
		return epoch, nil, err
	}

	resp, err := synthesis.ParseResponse(req.Variant, raw)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCallFailed(ctx, mode, variant, errorKind(err), time.Since(start))
		}
		return epoch, nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCallCompleted(ctx, mode, variant, time.Since(start))
	}
	return epoch, resp, nil
}

func (s *Service) inputFor(m *session.Machine) synthesis.Input {
	st := m.InputState()
	return synthesis.Input{
		OriginalInput:     st.OriginalInput,
		SerializedAnswers: st.Answers,
		Round:             st.Round,
		TotalRounds:       st.TotalRounds,
		Language:          st.Language,
	}
}

// nextRoundInput is inputFor with the round advanced by one, used when
// generating questions for a round the machine has not opened yet.
func (s *Service) nextRoundInput(m *session.Machine) synthesis.Input {
	in := s.inputFor(m)
	in.Round++
	return in
}

func (s *Service) fallbackQuestions(m *session.Machine) []models.Question {
	sess := m.Session()
	if sess.Mode == session.ModeGuidedFive {
		return synthesis.DefaultGuidedQuestions(sess.Language)
	}
	return synthesis.DefaultTopicQuestions(sess.Language)
}

func errorKind(err error) string {
	var netErr *models.NetworkError
	var parseErr *models.ParseError
	var schemaErr *models.SchemaError
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.Is(err, session.ErrCallInFlight):
		return "call_in_flight"
	default:
		return "internal"
	}
}
