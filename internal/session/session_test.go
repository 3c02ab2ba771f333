package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/internal/codec"
	"storybook-server/internal/config"
	"storybook-server/internal/genclient"
	"storybook-server/internal/mocks"
	"storybook-server/internal/models"
	"storybook-server/internal/pipeline"
	"storybook-server/internal/repository"
	"storybook-server/internal/session"
)

const waitFor = 2 * time.Second

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) HandleEvent(e models.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

type harness struct {
	client *mocks.MockGenClient
	store  repository.Store
	events *recorder
	mgr    *session.Manager
}

func newHarness(t *testing.T, strategy string) *harness {
	t.Helper()
	h := &harness{
		client: mocks.NewMockGenClient(t),
		store:  repository.NewMemoryStore(),
		events: &recorder{},
	}
	p := pipeline.New(h.client, pipeline.Options{Strategy: strategy, MaxPages: 25}, zap.NewNop())
	h.mgr = session.NewManager(p, h.client, h.store, time.Hour, zap.NewNop(), h.events)
	t.Cleanup(h.mgr.Close)
	return h
}

func (h *harness) savedBook(t *testing.T, clientID string) *models.Storybook {
	t.Helper()
	d := codec.NewDurableStore(repository.Namespaced(h.store, clientID), codec.DefaultKey, zap.NewNop())
	book, err := d.Load(context.Background())
	require.NoError(t, err)
	return book
}

func form(numPages int) models.StoryFormData {
	return models.StoryFormData{
		Title: "The Lighthouse Fox", Genre: "🦊 Fable", Tone: "😊 Warm", Characters: "Lume the fox",
		Setting: "A windy coast", Plot: "Keeping the light on", NumPages: numPages,
		Audience: "👶 Ages 3-5", Style: "🎨 Watercolor", Author: "Ana",
	}
}

func storyJSON(n int) json.RawMessage {
	draft := models.TextOnlyStorybook{Cover: models.TextOnlyCover{Title: "The Lighthouse Fox", Author: "Ana", ImagePrompt: "cover"}}
	for i := n; i >= 1; i-- {
		draft.Pages = append(draft.Pages, models.TextOnlyPage{PageNumber: i, Text: fmt.Sprintf("text %d", i), ImagePrompt: fmt.Sprintf("page %d", i)})
	}
	raw, _ := json.Marshal(draft)
	return raw
}

func img(tag byte) genclient.Image {
	return genclient.Image{Data: []byte{0x89, 'P', 'N', 'G', tag}, MimeType: "image/png"}
}

func illustratedBook(n int) models.Storybook {
	book := models.Storybook{Cover: models.Cover{
		Title: "Ночной лис", Author: "Ana", ImagePrompt: "cover",
		ImageURL: models.DataURI("image/png", []byte{1}), MimeType: "image/png",
	}}
	for i := 1; i <= n; i++ {
		book.Pages = append(book.Pages, models.Page{
			PageNumber: i, Text: fmt.Sprintf("text %d", i), ImagePrompt: fmt.Sprintf("page %d", i),
			ImageURL: models.DataURI("image/png", []byte{byte(i + 1)}), MimeType: "image/png",
		})
	}
	return book
}

func shareLocation(t *testing.T, book models.Storybook) string {
	t.Helper()
	link, err := codec.ShareURL("https://books.example.com/", book)
	require.NoError(t, err)
	return link
}

func waitPhase(t *testing.T, s *session.Session, phase models.Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Snapshot().Phase == phase }, waitFor, 5*time.Millisecond,
		"session never reached %s", phase)
}

func TestConfirm_ViewingWithAllSlotsLoading(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	gate := make(chan struct{})
	h.client.On("GenerateStoryText", mock.Anything, mock.Anything).Return(storyJSON(3), nil).Once()
	h.client.On("GenerateImage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-gate }).
		Return(img(1), nil).Times(4)

	s, snap := h.mgr.Create(context.Background(), "", "client-1")
	assert.Equal(t, models.PhaseForm, snap.Phase)

	require.NoError(t, s.Submit(form(3)))
	waitPhase(t, s, models.PhasePreview)
	draft := s.Snapshot().Draft
	require.NotNil(t, draft)
	require.Len(t, draft.Pages, 3)
	assert.Equal(t, 1, draft.Pages[0].PageNumber)

	require.NoError(t, s.Confirm())
	snap = s.Snapshot()
	assert.Equal(t, models.PhaseViewing, snap.Phase)
	require.NotNil(t, snap.Book)
	assert.True(t, snap.Book.Cover.IsGeneratingImage)
	require.Len(t, snap.Book.Pages, 3)
	for _, p := range snap.Book.Pages {
		assert.True(t, p.IsGeneratingImage)
		assert.Empty(t, p.ImageURL)
	}

	close(gate)
	s.Wait()

	book, err := s.Book()
	require.NoError(t, err)
	assert.True(t, book.IsFullyIllustrated())

	saved := h.savedBook(t, "client-1")
	require.NotNil(t, saved)
	assert.Equal(t, book, *saved)

	var phases []models.Phase
	s.Close()
	for _, e := range h.events.all() {
		if e.Type == models.EventStateChanged {
			phases = append(phases, e.Phase)
		}
	}
	assert.Equal(t, []models.Phase{
		models.PhaseForm, models.PhaseGeneratingText, models.PhasePreview,
		models.PhaseGeneratingImages, models.PhaseViewing,
	}, phases)
}

func TestRestart_DiscardsLateResponses(t *testing.T) {
	h := newHarness(t, config.StrategyParallel)
	gate := make(chan struct{})
	var inFlight atomic.Int32
	h.client.On("GenerateStoryText", mock.Anything, mock.Anything).Return(storyJSON(3), nil).Once()
	h.client.On("GenerateImage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { inFlight.Add(1); <-gate }).
		Return(img(1), nil).Times(4)

	s, _ := h.mgr.Create(context.Background(), "", "client-1")
	require.NoError(t, s.Submit(form(3)))
	waitPhase(t, s, models.PhasePreview)
	require.NoError(t, s.Confirm())
	require.Eventually(t, func() bool { return inFlight.Load() == 4 }, waitFor, 5*time.Millisecond)

	require.NoError(t, s.Restart(context.Background()))
	close(gate)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, models.PhaseForm, snap.Phase)
	assert.Nil(t, snap.Book)
	_, err := s.Book()
	assert.ErrorIs(t, err, models.ErrNoActiveStory)
	assert.Nil(t, h.savedBook(t, "client-1"))

	s.Close()
	events := h.events.all()
	restartAt := -1
	for i, e := range events {
		if e.Type == models.EventStateChanged && e.Phase == models.PhaseForm && i > 0 {
			restartAt = i
		}
	}
	require.Positive(t, restartAt)
	for _, e := range events[restartAt+1:] {
		assert.NotEqual(t, models.EventImagePatched, e.Type, "late response leaked into the fresh session")
	}
}

func TestTextFailure_OnlyRestartLeavesError(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	h.client.On("GenerateStoryText", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: connection reset", models.ErrTransport)).Once()

	s, _ := h.mgr.Create(context.Background(), "", "")
	require.NoError(t, s.Submit(form(2)))
	waitPhase(t, s, models.PhaseError)
	assert.Contains(t, s.Snapshot().Message, "connection reset")

	assert.ErrorIs(t, s.Submit(form(2)), models.ErrInvalidTransition)
	assert.ErrorIs(t, s.Confirm(), models.ErrInvalidTransition)
	assert.ErrorIs(t, s.Cancel(), models.ErrInvalidTransition)
	assert.ErrorIs(t, s.StartEdit(models.CoverRef()), models.ErrInvalidTransition)
	assert.ErrorIs(t, s.Regenerate(models.CoverRef()), models.ErrInvalidTransition)

	require.NoError(t, s.Restart(context.Background()))
	assert.Equal(t, models.PhaseForm, s.Snapshot().Phase)
}

func TestMalformedStory_GoesToError(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	h.client.On("GenerateStoryText", mock.Anything, mock.Anything).
		Return(json.RawMessage(`{"cover":{"title":"x"}}`), nil).Once()

	s, _ := h.mgr.Create(context.Background(), "", "")
	require.NoError(t, s.Submit(form(2)))
	waitPhase(t, s, models.PhaseError)
}

func TestSubmit_InvalidFormKeepsForm(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	s, _ := h.mgr.Create(context.Background(), "", "")

	f := form(2)
	f.Plot = ""
	assert.ErrorIs(t, s.Submit(f), models.ErrInvalidInput)
	assert.Equal(t, models.PhaseForm, s.Snapshot().Phase)
}

func TestCancel_ReturnsToForm(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	h.client.On("GenerateStoryText", mock.Anything, mock.Anything).Return(storyJSON(2), nil).Once()

	s, _ := h.mgr.Create(context.Background(), "", "")
	require.NoError(t, s.Submit(form(2)))
	waitPhase(t, s, models.PhasePreview)
	require.NoError(t, s.Cancel())
	snap := s.Snapshot()
	assert.Equal(t, models.PhaseForm, snap.Phase)
	assert.Nil(t, snap.Draft)
}

func TestImageFailure_StaysViewing(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	h.client.On("GenerateStoryText", mock.Anything, mock.Anything).Return(storyJSON(2), nil).Once()
	h.client.On("GenerateImage", mock.Anything, "page 2").Return(genclient.Image{}, fmt.Errorf("%w: 500", models.ErrTransport)).Once()
	h.client.On("GenerateImage", mock.Anything, mock.Anything).Return(img(1), nil).Twice()

	s, _ := h.mgr.Create(context.Background(), "", "")
	require.NoError(t, s.Submit(form(2)))
	waitPhase(t, s, models.PhasePreview)
	require.NoError(t, s.Confirm())
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, models.PhaseViewing, snap.Phase)
	require.NotNil(t, snap.Book)
	assert.NotEmpty(t, snap.Book.Pages[0].ImageURL)
	assert.Empty(t, snap.Book.Pages[1].ImageURL)
	assert.False(t, snap.Book.Pages[1].IsGeneratingImage)
	assert.True(t, snap.Book.IsComplete())
}

func TestBoot_FromShareLink(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	book := illustratedBook(2)

	s, snap := h.mgr.Create(context.Background(), shareLocation(t, book)+"&lang=ru", "reader")
	assert.Equal(t, models.PhaseViewing, snap.Phase)
	require.NotNil(t, snap.Book)
	assert.Equal(t, book, *snap.Book)
	assert.Equal(t, "https://books.example.com/?lang=ru", snap.Location)
	assert.Empty(t, snap.Notice)

	s.Wait()
	saved := h.savedBook(t, "reader")
	require.NotNil(t, saved)
	assert.Equal(t, book, *saved)
}

func TestBoot_CorruptShareLinkFallsBackToDurableCopy(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	stored := illustratedBook(1)
	stored.Pages[0].IsGeneratingImage = true
	d := codec.NewDurableStore(repository.Namespaced(h.store, "reader"), codec.DefaultKey, zap.NewNop())
	require.NoError(t, d.Save(context.Background(), stored))

	_, snap := h.mgr.Create(context.Background(), "https://books.example.com/?story=not-a-book", "reader")
	assert.Equal(t, models.PhaseViewing, snap.Phase)
	assert.NotEmpty(t, snap.Notice)
	assert.Equal(t, "https://books.example.com/", snap.Location)
	require.NotNil(t, snap.Book)
	assert.False(t, snap.Book.Pages[0].IsGeneratingImage, "loaded books have nothing in flight")
}

func TestBoot_CorruptShareLinkWithoutDurableCopy(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	_, snap := h.mgr.Create(context.Background(), "/?story=bm9wZQ", "")
	assert.Equal(t, models.PhaseForm, snap.Phase)
	assert.NotEmpty(t, snap.Notice)
}

func TestEdit_FailureRollsBack(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	book := illustratedBook(2)
	h.client.On("EditImage", mock.Anything, mock.Anything, "make it blue").
		Return(genclient.Image{}, fmt.Errorf("%w: 503", models.ErrTransport)).Once()

	s, _ := h.mgr.Create(context.Background(), shareLocation(t, book), "")
	require.NoError(t, s.StartEdit(models.PageRef(0)))
	snap := s.Snapshot()
	assert.Equal(t, models.PhaseEditingImage, snap.Phase)
	require.NotNil(t, snap.Target)
	assert.Equal(t, book.Pages[0].ImageURL, snap.Target.ImageURL)

	require.NoError(t, s.FinishEdit("make it blue"))
	assert.Equal(t, models.PhaseViewing, s.Snapshot().Phase)
	s.Wait()

	got, err := s.Book()
	require.NoError(t, err)
	want, _ := json.Marshal(book)
	have, _ := json.Marshal(got)
	assert.Equal(t, string(want), string(have))

	s.Close()
	var types []models.EventType
	for _, e := range h.events.all() {
		if e.Type != models.EventStateChanged {
			types = append(types, e.Type)
		}
	}
	assert.Equal(t, []models.EventType{models.EventImagePatched, models.EventBookRestored, models.EventEditFailed}, types)
}

func TestEdit_Success(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	book := illustratedBook(2)
	h.client.On("EditImage", mock.Anything, genclient.Image{Data: []byte{1}, MimeType: "image/png"}, "add a moon").
		Return(img(9), nil).Once()

	s, _ := h.mgr.Create(context.Background(), shareLocation(t, book), "editor")
	require.NoError(t, s.StartEdit(models.CoverRef()))
	require.NoError(t, s.FinishEdit("  add a moon "))
	s.Wait()

	got, err := s.Book()
	require.NoError(t, err)
	assert.Equal(t, models.DataURI("image/png", img(9).Data), got.Cover.ImageURL)
	assert.Equal(t, book.Pages, got.Pages)

	saved := h.savedBook(t, "editor")
	require.NotNil(t, saved)
	assert.Equal(t, got, *saved)
}

func TestFinishEdit_NoImageFailsWithoutRemoteCall(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	book := illustratedBook(2)
	book.Pages[1].ImageURL = ""

	s, _ := h.mgr.Create(context.Background(), shareLocation(t, book), "")
	require.NoError(t, s.StartEdit(models.PageRef(1)))
	assert.ErrorIs(t, s.FinishEdit("   "), models.ErrInvalidInput, "blank instruction is rejected first")
	err := s.FinishEdit("make it blue")
	assert.ErrorIs(t, err, models.ErrInvalidEditTarget)
	assert.Equal(t, models.PhaseError, s.Snapshot().Phase)
	h.client.AssertNotCalled(t, "EditImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestCloseEdit(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	s, _ := h.mgr.Create(context.Background(), shareLocation(t, illustratedBook(1)), "")

	assert.ErrorIs(t, s.CloseEdit(), models.ErrInvalidTransition)
	require.NoError(t, s.StartEdit(models.CoverRef()))
	assert.ErrorIs(t, s.StartEdit(models.CoverRef()), models.ErrInvalidTransition)
	require.NoError(t, s.CloseEdit())
	assert.Equal(t, models.PhaseViewing, s.Snapshot().Phase)
	assert.ErrorIs(t, s.StartEdit(models.PageRef(5)), models.ErrInvalidInput)
}

func TestRegenerate(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	book := illustratedBook(2)
	gate := make(chan struct{})
	h.client.On("GenerateImage", mock.Anything, "page 2").
		Run(func(mock.Arguments) { <-gate }).
		Return(img(7), nil).Once()

	s, _ := h.mgr.Create(context.Background(), shareLocation(t, book), "")
	require.NoError(t, s.Regenerate(models.PageRef(1)))
	assert.ErrorIs(t, s.Regenerate(models.PageRef(1)), models.ErrInvalidEditTarget, "slot already has a request in flight")
	assert.ErrorIs(t, s.Regenerate(models.PageRef(9)), models.ErrInvalidInput)

	close(gate)
	s.Wait()
	got, err := s.Book()
	require.NoError(t, err)
	assert.Equal(t, models.DataURI("image/png", img(7).Data), got.Pages[1].ImageURL)
	assert.False(t, got.Pages[1].IsGeneratingImage)
	assert.Equal(t, book.Pages[0], got.Pages[0])
}

func TestRegenerate_FailureKeepsPriorImage(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	book := illustratedBook(1)
	h.client.On("GenerateImage", mock.Anything, "cover").Return(genclient.Image{}, fmt.Errorf("%w: 500", models.ErrTransport)).Once()

	s, _ := h.mgr.Create(context.Background(), shareLocation(t, book), "")
	require.NoError(t, s.Regenerate(models.CoverRef()))
	s.Wait()

	got, err := s.Book()
	require.NoError(t, err)
	assert.Equal(t, book, got)
	assert.Equal(t, models.PhaseViewing, s.Snapshot().Phase)
}

func TestShareLink(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	s, _ := h.mgr.Create(context.Background(), "", "")
	_, _, err := s.ShareLink("https://books.example.com/")
	assert.ErrorIs(t, err, models.ErrNoActiveStory)

	book := illustratedBook(2)
	s2, _ := h.mgr.Create(context.Background(), shareLocation(t, book), "")
	link, encoded, err := s2.ShareLink("https://books.example.com/")
	require.NoError(t, err)
	assert.Contains(t, link, encoded)
	decoded, err := codec.DecodeShare(encoded)
	require.NoError(t, err)
	assert.Equal(t, book, decoded)
}

func TestNarrate_OneActiveAtATime(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	oneSecond := make([]byte, genclient.SpeechSampleRate*2)
	h.client.On("GenerateSpeech", mock.Anything, "text 1").Return(oneSecond, nil).Once()
	h.client.On("GenerateSpeech", mock.Anything, "text 2").Return(oneSecond, nil).Once()

	s, _ := h.mgr.Create(context.Background(), shareLocation(t, illustratedBook(2)), "")
	started, err := s.Narrate(context.Background(), models.PageRef(0))
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, "page[0]", s.Snapshot().Narrating)

	started, err = s.Narrate(context.Background(), models.PageRef(1))
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, "page[1]", s.Snapshot().Narrating)

	started, err = s.Narrate(context.Background(), models.PageRef(1))
	require.NoError(t, err)
	assert.False(t, started, "narrating the active target toggles it off")
	assert.Empty(t, s.Snapshot().Narrating)

	s.Close()
	var seq []string
	for _, e := range h.events.all() {
		switch e.Type {
		case models.EventNarrationStarted:
			require.NotNil(t, e.Audio)
			assert.Len(t, e.Audio.Data, len(oneSecond))
			assert.Equal(t, 24000, e.Audio.SampleRate)
			seq = append(seq, "start "+e.Audio.Target)
		case models.EventNarrationStopped:
			seq = append(seq, "stop "+e.Audio.Target)
		}
	}
	assert.Equal(t, []string{"start page[0]", "stop page[0]", "start page[1]", "stop page[1]"}, seq)
}

func TestNarrate_CoverText(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	h.client.On("GenerateSpeech", mock.Anything, "Title: Ночной лис. By Ana").Return([]byte{0, 0}, nil).Once()

	s, _ := h.mgr.Create(context.Background(), shareLocation(t, illustratedBook(1)), "")
	_, err := s.Narrate(context.Background(), models.CoverRef())
	require.NoError(t, err)
}

func TestNarrate_RequiresBook(t *testing.T) {
	h := newHarness(t, config.StrategySequential)
	s, _ := h.mgr.Create(context.Background(), "", "")
	_, err := s.Narrate(context.Background(), models.CoverRef())
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}
