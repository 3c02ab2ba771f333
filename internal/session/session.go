package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook-server/internal/codec"
	"storybook-server/internal/models"
	"storybook-server/internal/narration"
	"storybook-server/internal/pipeline"
)

const (
	saveTimeout     = 10 * time.Second
	shareLinkNotice = "The shared storybook link could not be loaded."
)

// Deps are the collaborators of a Session.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Speech   narration.SpeechSource
	Durable  *codec.DurableStore
	Sinks    []EventSink
	Logger   *zap.Logger
}

// Session is one user's walk through the storybook state machine. All
// methods are safe for concurrent use.
type Session struct {
	id       string
	pipeline *pipeline.Pipeline
	durable  *codec.DurableStore
	narrator *narration.Narrator
	outbox   *outbox
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// phase mirrors state.Phase() for event producers that must not take mu.
	phase atomic.Value

	mu         sync.Mutex
	state      State
	token      uint64
	busy       map[models.SlotRef]struct{}
	location   string
	notice     string
	lastActive time.Time
	closed     bool

	// saveMu orders durable saves against the clear done by Restart.
	saveMu sync.Mutex
}

// New creates a session in the Form state. Call Boot before anything else.
func New(id string, deps Deps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		pipeline:   deps.Pipeline,
		durable:    deps.Durable,
		outbox:     newOutbox(deps.Sinks),
		logger:     deps.Logger.Named("Session").With(zap.String("session_id", id)),
		ctx:        ctx,
		cancel:     cancel,
		state:      Form{},
		busy:       make(map[models.SlotRef]struct{}),
		lastActive: timeNow(),
	}
	s.phase.Store(models.PhaseForm)
	s.narrator = narration.New(deps.Speech, s.openOutput, s.logger)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Boot restores a storybook from a share link in location or, failing
// that, from the durable copy. The share parameter is stripped from the
// stored location either way.
func (s *Session) Boot(ctx context.Context, location string) Snapshot {
	shared, stripped, err := codec.ExtractShared(location)
	notice := ""
	if err != nil {
		s.logger.Warn("Share link could not be decoded", zap.Error(err))
		notice = shareLinkNotice
	}

	book := shared
	if book == nil {
		loaded, err := s.durable.Load(ctx)
		if err != nil {
			s.logger.Warn("Failed to load saved storybook, starting fresh", zap.Error(err))
		}
		book = loaded
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = stripped
	if book != nil {
		s.setStateLocked(Viewing{Book: settle(*book)})
		if shared != nil {
			s.logger.Info("Storybook loaded from share link", zap.Int("pages", len(book.Pages)))
			s.saveLocked()
		} else {
			s.logger.Info("Storybook restored from durable copy", zap.Int("pages", len(book.Pages)))
		}
	} else {
		s.setStateLocked(Form{Notice: notice})
	}
	s.notice = notice
	return s.snapshotLocked()
}

// Submit validates form and starts story text generation.
func (s *Session) Submit(form models.StoryFormData) error {
	if err := form.Validate(s.pipeline.Options().MaxPages); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if _, ok := s.state.(Form); !ok {
		return s.invalidLocked("submit")
	}
	s.setStateLocked(GeneratingText{Form: form})
	token := s.token
	s.goLocked(func() { s.generateText(token, form) })
	return nil
}

func (s *Session) generateText(token uint64, form models.StoryFormData) {
	draft, err := s.pipeline.GenerateStoryText(s.ctx, form)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token {
		s.logger.Debug("Discarding story text for a discarded session")
		return
	}
	if err != nil {
		s.failLocked(err.Error())
		return
	}
	s.setStateLocked(Preview{Draft: draft})
}

// Confirm builds the placeholder book from the draft, enters Viewing and
// starts illustrating in the background.
func (s *Session) Confirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	st, ok := s.state.(Preview)
	if !ok {
		return s.invalidLocked("confirm")
	}
	draft := st.Draft
	book := models.NewPlaceholderBook(draft)
	s.setStateLocked(GeneratingImages{Book: book})
	s.setStateLocked(Viewing{Book: book})

	b := &sessionBook{s: s, token: s.token}
	s.goLocked(func() {
		stats := s.pipeline.Illustrate(s.ctx, draft, b)
		s.logger.Info("Illustration finished",
			zap.Int("requested", stats.Requested),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed),
			zap.Int("dropped", stats.Dropped),
		)
	})
	return nil
}

// Cancel discards the draft and returns to Form.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if _, ok := s.state.(Preview); !ok {
		return s.invalidLocked("cancel")
	}
	s.discardLocked()
	s.setStateLocked(Form{})
	return nil
}

// StartEdit opens the edit dialog on ref.
func (s *Session) StartEdit(ref models.SlotRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	st, ok := s.state.(Viewing)
	if !ok {
		return s.invalidLocked("start edit")
	}
	target, err := models.TargetFor(st.Book, ref)
	if err != nil {
		return err
	}
	s.setStateLocked(EditingImage{Book: st.Book, Target: target})
	return nil
}

// CloseEdit closes the edit dialog without editing.
func (s *Session) CloseEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	st, ok := s.state.(EditingImage)
	if !ok {
		return s.invalidLocked("close edit")
	}
	s.setStateLocked(Viewing{Book: st.Book})
	return nil
}

// FinishEdit closes the dialog and edits the target image in the
// background. A target without a usable image moves the session to Failed.
func (s *Session) FinishEdit(instruction string) error {
	instruction = strings.TrimSpace(instruction)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	st, ok := s.state.(EditingImage)
	if !ok {
		return s.invalidLocked("finish edit")
	}
	if instruction == "" {
		return fmt.Errorf("%w: edit instruction is required", models.ErrInvalidInput)
	}

	ref := st.Target.Ref()
	target, err := models.TargetFor(st.Book, ref)
	if err != nil {
		return err
	}
	if err := s.claimLocked(st.Book, ref); err != nil {
		return err
	}
	if target.ImageURL == "" {
		err := fmt.Errorf("%w: %s has no image to edit", models.ErrInvalidEditTarget, ref)
		s.failLocked(err.Error())
		return err
	}
	if _, _, err := models.ParseDataURI(target.ImageURL); err != nil {
		err = fmt.Errorf("%w: %s image is not decodable: %v", models.ErrInvalidEditTarget, ref, err)
		s.failLocked(err.Error())
		return err
	}

	s.setStateLocked(Viewing{Book: st.Book})
	s.busy[ref] = struct{}{}
	b := &sessionBook{s: s, token: s.token}
	s.goLocked(func() {
		err := s.pipeline.EditImage(s.ctx, b, target, instruction)
		s.finishImageOp(b.token, ref, err)
	})
	return nil
}

// Regenerate renders ref again from its imagePrompt in the background.
func (s *Session) Regenerate(ref models.SlotRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	st, ok := s.state.(Viewing)
	if !ok {
		return s.invalidLocked("regenerate")
	}
	if _, err := st.Book.Slot(ref); err != nil {
		return err
	}
	if err := s.claimLocked(st.Book, ref); err != nil {
		return err
	}

	s.busy[ref] = struct{}{}
	b := &sessionBook{s: s, token: s.token}
	s.goLocked(func() {
		err := s.pipeline.RegenerateImage(s.ctx, b, ref)
		s.finishImageOp(b.token, ref, err)
	})
	return nil
}

func (s *Session) finishImageOp(token uint64, ref models.SlotRef, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token {
		return
	}
	delete(s.busy, ref)
	if err != nil && !errors.Is(err, pipeline.ErrStale) {
		s.emitLocked(models.Event{Type: models.EventEditFailed, Message: err.Error()})
	}
}

// Restart abandons everything in flight, clears the durable copy and
// returns to Form. It is allowed in every state.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.discardLocked()
	s.setStateLocked(Form{})
	s.mu.Unlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.durable.Clear(ctx); err != nil {
		s.logger.Warn("Failed to clear saved storybook", zap.Error(err))
	}
	return nil
}

// Narrate toggles narration of ref: it stops the narration if ref is the
// one playing, otherwise it stops whatever plays and narrates ref.
func (s *Session) Narrate(ctx context.Context, ref models.SlotRef) (started bool, err error) {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	book, ok := bookOf(s.state)
	if !ok {
		err := s.invalidLocked("narrate")
		s.mu.Unlock()
		return false, err
	}
	text, err := narration.Script(book, ref)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return s.narrator.Toggle(ctx, ref.String(), text)
}

// StopNarration halts any narration.
func (s *Session) StopNarration() {
	s.narrator.Stop()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Book returns the current storybook.
func (s *Session) Book() (models.Storybook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := bookOf(s.state)
	if !ok {
		return models.Storybook{}, models.ErrNoActiveStory
	}
	return book, nil
}

// ShareLink encodes the finished storybook into a link based on baseURL.
func (s *Session) ShareLink(baseURL string) (link, encoded string, err error) {
	book, err := s.Book()
	if err != nil {
		return "", "", err
	}
	if !book.IsComplete() {
		return "", "", fmt.Errorf("%w: images are still being generated", models.ErrInvalidTransition)
	}
	if encoded, err = codec.EncodeShare(book); err != nil {
		return "", "", err
	}
	if link, err = codec.ShareURL(baseURL, book); err != nil {
		return "", "", err
	}
	return link, encoded, nil
}

// LastActive is the time of the last command or applied patch.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Wait blocks until no background work is running.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close abandons background work and stops event delivery.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.discardLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.outbox.close()
}

func (s *Session) checkLocked() error {
	if s.closed {
		return fmt.Errorf("%w: %s is closed", models.ErrSessionNotFound, s.id)
	}
	s.lastActive = timeNow()
	return nil
}

func (s *Session) invalidLocked(command string) error {
	return fmt.Errorf("%w: cannot %s in state %s", models.ErrInvalidTransition, command, s.state.Phase())
}

// claimLocked rejects slots that already have a request in flight.
func (s *Session) claimLocked(book models.Storybook, ref models.SlotRef) error {
	slot, err := book.Slot(ref)
	if err != nil {
		return err
	}
	if _, busy := s.busy[ref]; busy || slot.IsGeneratingImage {
		return fmt.Errorf("%w: %s is still generating", models.ErrInvalidEditTarget, ref)
	}
	return nil
}

// discardLocked makes every in-flight operation stale.
func (s *Session) discardLocked() {
	s.token++
	clear(s.busy)
	s.narrator.Stop()
}

func (s *Session) failLocked(message string) {
	s.discardLocked()
	s.setStateLocked(Failed{Message: message})
	s.logger.Warn("Session failed", zap.String("message", message))
}

func (s *Session) setStateLocked(next State) {
	from := s.state.Phase()
	s.state = next
	s.phase.Store(next.Phase())
	transitions.WithLabelValues(string(from), string(next.Phase())).Inc()

	s.notice = ""

	snap := snapshotOf(s.id, next)
	message := snap.Message
	if message == "" {
		message = snap.Notice
	}
	s.emitLocked(models.Event{
		Type:    models.EventStateChanged,
		Book:    snap.Book,
		Draft:   snap.Draft,
		Target:  snap.Target,
		Message: message,
	})
}

func (s *Session) snapshotLocked() Snapshot {
	snap := snapshotOf(s.id, s.state)
	snap.Location = s.location
	if snap.Notice == "" {
		snap.Notice = s.notice
	}
	snap.Narrating, _ = s.narrator.Active()
	return snap
}

func (s *Session) emitLocked(event models.Event) {
	s.publish(event)
}

// publish stamps and queues event. It does not take mu.
func (s *Session) publish(event models.Event) {
	event.ID = uuid.NewString()
	event.SessionID = s.id
	event.Phase = s.phase.Load().(models.Phase)
	event.Timestamp = time.Now().UTC()
	s.outbox.push(event)
}

func (s *Session) goLocked(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// saveLocked schedules a durable save of the current book if it is complete.
func (s *Session) saveLocked() {
	token := s.token
	s.goLocked(func() { s.save(token) })
}

func (s *Session) save(token uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	book, ok := bookOf(s.state)
	s.mu.Unlock()
	if !ok || !book.IsComplete() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.durable.Save(ctx, book); err != nil {
		s.logger.Warn("Failed to save storybook", zap.Error(err))
	}
}

// settle clears loading flags on a book that has no requests in flight.
func settle(book models.Storybook) models.Storybook {
	out := book.Clone()
	out.Cover.IsGeneratingImage = false
	for i := range out.Pages {
		out.Pages[i].IsGeneratingImage = false
	}
	return out
}
