package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zhouzirui/implantai/backend/internal/logger"
	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
)

// ModelFactory builds chat models bound to one concrete catalog entry.
type ModelFactory interface {
	NewChatModel(ctx context.Context, m catalog.Model, temperature float32) (model.BaseChatModel, error)
}

// Options are applied to every handle the reconciler builds.
type Options struct {
	SystemInstruction string
	Temperature       float32
	Logger            *zap.Logger
}

// InitError reports that a remote session could not be created.
type InitError struct {
	Model catalog.Model
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize session for model %s: %v", e.Model, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Reconciler keeps at most one live handle and rebuilds it whenever the
// selected model no longer matches the bound one.
type Reconciler struct {
	factory ModelFactory
	opts    Options
	logger  *zap.Logger
	tracer  trace.Tracer

	mu      sync.Mutex
	current *Handle
}

// NewReconciler creates a reconciler with no live handle.
func NewReconciler(factory ModelFactory, opts Options) *Reconciler {
	return &Reconciler{
		factory: factory,
		opts:    opts,
		logger:  logger.OrNop(opts.Logger).Named("session"),
		tracer:  otel.Tracer("implantai/session"),
	}
}

// EnsureSession returns a handle bound to the concrete model for requested.
// An existing handle is reused when its bound model already matches;
// otherwise a new one is seeded from log. The log must not yet contain the
// turn about to be sent. On failure the previous state is left untouched.
func (r *Reconciler) EnsureSession(ctx context.Context, requested catalog.Model, log []chat.Turn) (*Handle, error) {
	if !requested.Valid() {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownModel, requested)
	}
	target := catalog.Resolve(requested)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.boundModel == target {
		return r.current, nil
	}

	ctx, span := r.tracer.Start(ctx, "session.rebuild", trace.WithAttributes(
		attribute.String("implantai.model.requested", requested.String()),
		attribute.String("implantai.model.bound", target.String()),
	))
	defer span.End()

	previous := catalog.Model("")
	if r.current != nil {
		previous = r.current.boundModel
	}

	chatModel, err := r.factory.NewChatModel(ctx, target, r.opts.Temperature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model init failed")
		return nil, &InitError{Model: target, Err: err}
	}

	history := TranslateHistory(log)
	handle, err := newHandle(ctx, chatModel, requested, target, r.opts, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chain compile failed")
		return nil, &InitError{Model: target, Err: err}
	}

	r.current = handle
	span.SetAttributes(attribute.Int("implantai.history.length", len(history)))

	r.logger.Info("session rebuilt",
		zap.String("handle", handle.id),
		zap.String("requested", requested.String()),
		zap.String("bound", target.String()),
		zap.String("previous", previous.String()),
		zap.Int("history", len(history)),
	)

	return handle, nil
}

// Reset discards the live handle. The next EnsureSession rebuilds.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.logger.Info("session discarded", zap.String("handle", r.current.id))
	}
	r.current = nil
}

// Current returns the live handle or nil when absent.
func (r *Reconciler) Current() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
