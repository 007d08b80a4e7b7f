package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/zhouzirui/implantai/backend/internal/logger"
	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
	"github.com/zhouzirui/implantai/backend/internal/service/ai"
)

var (
	ErrBusy            = errors.New("a message is already being sent")
	ErrEmptySubmission = errors.New("message text or at least one image is required")
	ErrActionNotFound  = errors.New("quick action not found")
)

// Sender delivers one user turn to the model and returns its reply.
type Sender interface {
	Send(ctx context.Context, req ai.Request) (ai.Reply, error)
}

// Recorder keeps an audit copy of the conversation. Failures are logged and
// never interrupt the conversation.
type Recorder interface {
	RecordTurn(ctx context.Context, turn chat.Turn) error
	RecordReset(ctx context.Context, greeting chat.Turn) error
}

// Options wires a Service.
type Options struct {
	Store    *Store
	Sender   Sender
	Actions  catalog.ActionStore
	Recorder Recorder
	Logger   *zap.Logger
	Model    catalog.Model
}

// SubmitResult is the outcome of one accepted submission.
type SubmitResult struct {
	User    chat.Turn
	Reply   chat.Turn
	Failure *ai.TransportError
}

// Service is the conversation controller behind every user-facing entry
// point. At most one submission is in flight at a time.
type Service struct {
	store    *Store
	sender   Sender
	actions  catalog.ActionStore
	recorder Recorder
	logger   *zap.Logger
	events   *broadcaster

	busy atomic.Bool

	mu       sync.RWMutex
	selected catalog.Model
}

// NewService wires the controller. A nil Store gets a fresh one without a
// session discarder; a zero Model selects Auto.
func NewService(opts Options) *Service {
	store := opts.Store
	if store == nil {
		store = NewStore(nil)
	}
	actions := opts.Actions
	if actions == nil {
		actions = catalog.NewMemoryActionStore(catalog.SeedActions())
	}
	selected := opts.Model
	if !selected.Valid() {
		selected = catalog.Auto
	}

	return &Service{
		store:    store,
		sender:   opts.Sender,
		actions:  actions,
		recorder: opts.Recorder,
		logger:   logger.OrNop(opts.Logger).Named("chat"),
		events:   newBroadcaster(),
		selected: selected,
	}
}

// Submit appends a user turn, sends it and appends the reply or a failure
// turn. Blank text with no images is rejected before anything is sent.
// A transport failure is not returned as an error; it is reported in
// SubmitResult.Failure and recorded as a failure turn.
func (s *Service) Submit(ctx context.Context, text string, images []chat.Image) (SubmitResult, error) {
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return SubmitResult{}, ErrEmptySubmission
	}
	if s.sender == nil {
		return SubmitResult{}, errors.New("chat service has no sender")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return SubmitResult{}, ErrBusy
	}
	s.events.publish(Event{Type: EventBusy, Busy: true})
	defer func() {
		s.busy.Store(false)
		s.events.publish(Event{Type: EventBusy, Busy: false})
	}()

	// in-flight sends run to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	log := s.store.All(ctx)
	model := s.SelectedModel()

	userTurn, err := s.append(ctx, chat.NewUserTurn(text, images))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("failed to store user turn: %w", err)
	}

	result := SubmitResult{User: userTurn}

	reply, err := s.sender.Send(ctx, ai.Request{
		Text:   text,
		Images: images,
		Model:  model,
		Log:    log,
	})

	var replyTurn chat.Turn
	if err != nil {
		result.Failure = ai.Classify(err)
		replyTurn = chat.NewFailureTurn(result.Failure.UserMessage())
		s.logger.Warn("submission failed",
			zap.String("turn", userTurn.ID),
			zap.String("reason", string(result.Failure.Reason)),
		)
	} else {
		replyTurn = chat.NewAssistantTurn(reply.Text, reply.Model)
	}

	stored, err := s.append(ctx, replyTurn)
	if err != nil {
		return result, fmt.Errorf("failed to store reply turn: %w", err)
	}
	result.Reply = stored
	s.logger.Debug("submission completed",
		zap.String("turn", stored.ID),
		zap.Bool("failure", stored.Failure),
		zap.Int("log", s.store.Len()),
	)
	return result, nil
}

// SubmitAction submits the prompt of a quick action together with images.
func (s *Service) SubmitAction(ctx context.Context, actionID string, images []chat.Image) (SubmitResult, error) {
	action, ok := s.actions.FindByID(actionID)
	if !ok {
		return SubmitResult{}, fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
	}
	return s.Submit(ctx, action.Prompt, images)
}

// SelectModel changes the model used by the next submission. It is allowed
// while a submission is in flight; that submission keeps its model.
func (s *Service) SelectModel(_ context.Context, id string) (catalog.Model, error) {
	m, err := catalog.Parse(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	changed := s.selected != m
	s.selected = m
	s.mu.Unlock()

	if changed {
		s.logger.Info("model selected", zap.String("model", m.String()))
		s.events.publish(Event{Type: EventModel, Model: m, Busy: s.Busy()})
	}
	return m, nil
}

// Reset clears the conversation and discards the live remote session.
// It is rejected while a submission is in flight.
func (s *Service) Reset(ctx context.Context) (chat.Turn, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return chat.Turn{}, ErrBusy
	}
	defer s.busy.Store(false)

	greeting := s.store.Reset(ctx)
	if s.recorder != nil {
		if err := s.recorder.RecordReset(ctx, greeting); err != nil {
			s.logger.Warn("failed to audit reset", zap.Error(err))
		}
	}

	s.logger.Info("conversation reset")
	s.events.publish(Event{Type: EventReset, Turn: &greeting})
	return greeting, nil
}

// Turns returns the conversation log.
func (s *Service) Turns(ctx context.Context) []chat.Turn {
	return s.store.All(ctx)
}

// Busy reports whether a submission is in flight.
func (s *Service) Busy() bool {
	return s.busy.Load()
}

// SelectedModel returns the model the next submission will request.
func (s *Service) SelectedModel() catalog.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Actions returns the quick action catalog.
func (s *Service) Actions() catalog.ActionStore {
	return s.actions
}

// Subscribe streams conversation events until cancel is called.
func (s *Service) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

func (s *Service) append(ctx context.Context, turn chat.Turn) (chat.Turn, error) {
	stored, err := s.store.Append(ctx, turn)
	if err != nil {
		return chat.Turn{}, err
	}

	if s.recorder != nil {
		if err := s.recorder.RecordTurn(ctx, stored); err != nil {
			s.logger.Warn("failed to audit turn", zap.String("turn", stored.ID), zap.Error(err))
		}
	}

	s.events.publish(Event{Type: EventTurn, Turn: &stored, Busy: s.Busy()})
	return stored, nil
}
