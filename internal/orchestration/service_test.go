package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/enhancer-api/internal/models"
	"github.com/promptforge/enhancer-api/internal/session"
)

// scriptedGenerator replays canned provider responses in order. An exhausted
// script fails the call, which doubles as the unreachable-provider case.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []scriptedReply
}

type scriptedReply struct {
	content string
	err     error
}

func (g *scriptedGenerator) Complete(ctx context.Context, systemInstruction, userPayload string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.replies) == 0 {
		return "", &models.NetworkError{Op: "generation.complete", Err: errors.New("script exhausted")}
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply.content, reply.err
}

func (g *scriptedGenerator) IsHealthy(ctx context.Context) bool { return true }

func (g *scriptedGenerator) push(content string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, scriptedReply{content: content})
}

func (g *scriptedGenerator) pushError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, scriptedReply{err: err})
}

func newTestService() (*Service, *scriptedGenerator) {
	gen := &scriptedGenerator{}
	svc := NewService(session.NewManager(), gen, nil, nil)
	return svc, gen
}

const guidedQuestionsJSON = `{"questions":[
	{"topic":"goal","prompt":"What is the goal?","kind":"text"},
	{"topic":"audience","prompt":"Who is it for?","kind":"text"},
	{"topic":"tone","prompt":"Which tone?","kind":"text"},
	{"topic":"length","prompt":"How long?","kind":"text"},
	{"topic":"detail","prompt":"Key details?","kind":"text"}
]}`

func TestService_SuperLazyFlow(t *testing.T) {
	svc, gen := newTestService()
	ctx := context.Background()

	snap, err := svc.StartSession(ctx, "", "make this better", session.ModeSuperLazy, "en")
	require.NoError(t, err)
	assert.Equal(t, session.StateRoundComplete, snap.State)

	gen.push(`{"generated_text":"a polished prompt"}`)
	snap, err = svc.RequestSynthesis(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StateFinished, snap.State)
	assert.Equal(t, "a polished prompt", snap.LatestResult)

	versions, err := svc.ListVersions(snap.SessionID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, "a polished prompt", versions[0].GeneratedPrompt)
}

func TestService_StartSession_QuestionFallback(t *testing.T) {
	svc, _ := newTestService()

	// Empty script: the question call fails and the built-in set is used.
	snap, err := svc.StartSession(context.Background(), "", "make this better", session.ModeGuidedFive, "en")
	require.NoError(t, err)

	assert.Equal(t, session.StateAwaitingAnswers, snap.State)
	require.Len(t, snap.Questions, 5)
	assert.Equal(t, "goal", snap.Questions[0].Topic)
}

func TestService_StartSession_ProviderQuestions(t *testing.T) {
	svc, gen := newTestService()
	gen.push(guidedQuestionsJSON)

	snap, err := svc.StartSession(context.Background(), "", "make this better", session.ModeGuidedFive, "en")
	require.NoError(t, err)

	require.Len(t, snap.Questions, 5)
	assert.Equal(t, "What is the goal?", snap.Questions[0].Prompt)
}

func TestService_StartSession_EmptyInput(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.StartSession(context.Background(), "", "   ", session.ModeGuidedFive, "en")
	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestService_GuidedFullFlow(t *testing.T) {
	svc, gen := newTestService()
	ctx := context.Background()
	gen.push(guidedQuestionsJSON)

	snap, err := svc.StartSession(ctx, "", "make this better", session.ModeGuidedFive, "en")
	require.NoError(t, err)
	id := snap.SessionID

	for _, answer := range []struct{ key, value string }{
		{"goal", "sell sneakers"},
		{"audience", "runners"},
		{"tone", "energetic"},
	} {
		_, err = svc.SubmitAnswer(id, answer.key, answer.value)
		require.NoError(t, err)
	}

	snap, err = svc.ConfirmRound(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateRoundComplete, snap.State)

	gen.push(`{"enhanced_prompt":"final prompt","lazy_tweaks":["shorter","bolder"]}`)
	snap, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StateFinished, snap.State)
	assert.Equal(t, "final prompt", snap.LatestResult)
	assert.Equal(t, []string{"shorter", "bolder"}, snap.LazyTweaks)
}

func TestService_SynthesisFailureKeepsState(t *testing.T) {
	svc, gen := newTestService()
	ctx := context.Background()

	snap, err := svc.StartSession(ctx, "", "make this better", session.ModeSuperLazy, "en")
	require.NoError(t, err)
	id := snap.SessionID

	t.Run("network failure", func(t *testing.T) {
		// Exhausted script acts as an unreachable provider.
		_, err := svc.RequestSynthesis(ctx, id)
		var netErr *models.NetworkError
		require.ErrorAs(t, err, &netErr)

		snap, _ := svc.GetSession(id)
		assert.Equal(t, session.StateRoundComplete, snap.State)
	})

	t.Run("unparsable response", func(t *testing.T) {
		gen.push("sorry, no JSON today")
		_, err := svc.RequestSynthesis(ctx, id)
		var parseErr *models.ParseError
		require.ErrorAs(t, err, &parseErr)
	})

	t.Run("wrong schema", func(t *testing.T) {
		gen.push(`{"wrong_field":"value"}`)
		_, err := svc.RequestSynthesis(ctx, id)
		var schemaErr *models.SchemaError
		require.ErrorAs(t, err, &schemaErr)
	})

	// No failed call produced a version.
	versions, err := svc.ListVersions(id)
	require.NoError(t, err)
	assert.Empty(t, versions)

	// The session is still usable: a good response completes it.
	gen.push(`{"generated_text":"recovered"}`)
	snap, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StateFinished, snap.State)
}

func TestService_ThreeRoundFlow(t *testing.T) {
	svc, gen := newTestService()
	ctx := context.Background()

	// Question call fails: fallback topic set opens round 1.
	snap, err := svc.StartSession(ctx, "", "make this better", session.ModeThreeRoundTopic, "en")
	require.NoError(t, err)
	id := snap.SessionID
	require.Len(t, snap.Questions, 6)

	answerAll := func(snap session.Snapshot) {
		for _, q := range snap.Questions {
			_, err := svc.SubmitAnswer(id, q.Topic, "answer for "+q.Topic)
			require.NoError(t, err)
		}
	}

	answerAll(snap)
	gen.push(`{"preliminary_prompt":"draft one"}`)
	snap, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StatePreliminaryOffered, snap.State)
	assert.Equal(t, "draft one", snap.LatestResult)

	// Preliminary counts as a synthesis: one version exists.
	versions, _ := svc.ListVersions(id)
	require.Len(t, versions, 1)

	// Continue into round 2 with fallback questions again.
	snap, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingAnswers, snap.State)
	assert.Equal(t, 2, snap.CurrentRound)

	answerAll(snap)
	gen.push(`{"preliminary_prompt":"draft two"}`)
	snap, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)

	// Finalize from the offered preliminary.
	gen.push(`{"enhanced_prompt":"the final","lazy_tweaks":[]}`)
	snap, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StateFinished, snap.State)
	assert.Equal(t, "the final", snap.LatestResult)

	versions, _ = svc.ListVersions(id)
	assert.Len(t, versions, 3)
}

func TestService_IterativeFlow(t *testing.T) {
	svc, gen := newTestService()
	ctx := context.Background()

	analysisJSON := `{"score":40,"score_label":"poor","questions":[
		{"topic":"clarity","prompt":"Clarify the ask","kind":"textarea"}
	]}`

	gen.push(analysisJSON)
	snap, err := svc.StartSession(ctx, "", "make this better", session.ModeIterativeAnalysis, "en")
	require.NoError(t, err)
	id := snap.SessionID

	assert.Equal(t, session.StateAwaitingAnswers, snap.State)
	require.NotNil(t, snap.Analysis)
	assert.Equal(t, 40, snap.Analysis.Score)
	assert.Equal(t, "poor", snap.Analysis.ScoreLabel)

	_, err = svc.SubmitAnswer(id, "clarity", "I want a haiku")
	require.NoError(t, err)

	gen.push(`{"improved_prompt":"better text"}`)
	snap, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StateRoundComplete, snap.State)
	assert.Equal(t, "better text", snap.LatestResult)

	// Next analysis pass opens iteration 2.
	gen.push(`{"score":70,"score_label":"good","questions":[
		{"topic":"depth","prompt":"Add depth where?","kind":"textarea"}
	]}`)
	snap, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentRound)
	assert.Equal(t, 70, snap.Analysis.Score)
}

func TestService_IterativeAnalysisFailureLeavesIdle(t *testing.T) {
	svc, _ := newTestService()

	// Analysis has no fallback set; the session stays idle for a retry.
	snap, err := svc.StartSession(context.Background(), "", "make this better", session.ModeIterativeAnalysis, "en")
	require.Error(t, err)
	assert.Equal(t, session.StateIdle, snap.State)
}

func TestService_ApplyTweak(t *testing.T) {
	svc, gen := newTestService()
	ctx := context.Background()

	snap, err := svc.StartSession(ctx, "", "make this better", session.ModeSuperLazy, "en")
	require.NoError(t, err)
	id := snap.SessionID

	gen.push(`{"generated_text":"version one"}`)
	_, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)

	gen.push(`{"improved_prompt":"version one, but funnier"}`)
	snap, err = svc.ApplyTweak(ctx, id, "make it funnier")
	require.NoError(t, err)
	assert.Equal(t, "version one, but funnier", snap.LatestResult)

	versions, _ := svc.ListVersions(id)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[1].Version)
	require.NotNil(t, versions[1].ParentID)
	assert.Equal(t, versions[0].ID, *versions[1].ParentID)
}

func TestService_ApplyTweak_NoResult(t *testing.T) {
	svc, _ := newTestService()

	snap, err := svc.StartSession(context.Background(), "", "make this better", session.ModeSuperLazy, "en")
	require.NoError(t, err)

	_, err = svc.ApplyTweak(context.Background(), snap.SessionID, "funnier")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestService_RevertToVersion(t *testing.T) {
	svc, gen := newTestService()
	ctx := context.Background()

	snap, err := svc.StartSession(ctx, "", "make this better", session.ModeSuperLazy, "en")
	require.NoError(t, err)
	id := snap.SessionID

	gen.push(`{"generated_text":"version one"}`)
	_, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)

	gen.push(`{"improved_prompt":"version two"}`)
	_, err = svc.ApplyTweak(ctx, id, "shorter")
	require.NoError(t, err)

	versions, _ := svc.ListVersions(id)
	require.Len(t, versions, 2)

	snap, err = svc.RevertToVersion(id, versions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "version one", snap.LatestResult)

	// Reverting changes only the live result, not the family.
	versions, _ = svc.ListVersions(id)
	assert.Len(t, versions, 2)
}

func TestService_StartOverClearsVersions(t *testing.T) {
	svc, gen := newTestService()
	ctx := context.Background()

	snap, err := svc.StartSession(ctx, "", "make this better", session.ModeSuperLazy, "en")
	require.NoError(t, err)
	id := snap.SessionID

	gen.push(`{"generated_text":"a result"}`)
	_, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)

	snap, err = svc.StartOver(ctx, id, "a completely new idea")
	require.NoError(t, err)
	// The direct mode reopens straight into its completed single round.
	assert.Equal(t, session.StateRoundComplete, snap.State)
	assert.Equal(t, "a completely new idea", snap.OriginalInput)
	assert.Empty(t, snap.LatestResult)

	versions, err := svc.ListVersions(id)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestService_ConcurrentSessionAccess(t *testing.T) {
	svc, gen := newTestService()
	ctx := context.Background()
	gen.push(guidedQuestionsJSON)

	snap, err := svc.StartSession(ctx, "", "make this better", session.ModeGuidedFive, "en")
	require.NoError(t, err)
	id := snap.SessionID

	// Answers, version listings, and snapshot reads land on the same
	// session from separate goroutines, as separate HTTP requests would.
	var wg sync.WaitGroup
	for _, key := range []string{"goal", "audience", "tone", "length", "detail"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := svc.SubmitAnswer(id, key, "answer for "+key)
			assert.NoError(t, err)
		}(key)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ListVersions(id)
			assert.NoError(t, err)
			_, err = svc.GetSession(id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err = svc.ConfirmRound(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateRoundComplete, snap.State)
	assert.Equal(t, 5, snap.AnsweredCount)

	gen.push(`{"enhanced_prompt":"final prompt","lazy_tweaks":[]}`)
	snap, err = svc.RequestSynthesis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "final prompt", snap.LatestResult)

	versions, err := svc.ListVersions(id)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestService_UnknownSession(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetSession("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.SubmitAnswer("nope", "goal", "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.RequestSynthesis(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_SubmitAnswer_EmptyKey(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.SubmitAnswer("whatever", "  ", "value")
	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}
