package ai

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zhouzirui/implantai/backend/internal/logger"
	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
	"github.com/zhouzirui/implantai/backend/internal/service/session"
)

// NoReplyPlaceholder replaces a reply that carried no text.
const NoReplyPlaceholder = session.NoReplyPlaceholder

// ErrEmptyTurn is returned when a request has blank text and no images.
var ErrEmptyTurn = session.ErrEmptyTurn

// Request is one outgoing user turn.
type Request struct {
	Text   string
	Images []chat.Image
	Model  catalog.Model
	// Log is the conversation before this turn. It seeds a rebuilt session.
	Log []chat.Turn
}

// Reply is the text the remote model produced for a Request.
type Reply struct {
	Text   string
	Model  catalog.Model
	Handle string
}

// Transport sends turns through the reconciled session.
type Transport struct {
	sessions *session.Reconciler
	logger   *zap.Logger
	tracer   trace.Tracer
	duration metric.Float64Histogram
	failures metric.Int64Counter
}

// NewTransport creates a transport on top of sessions.
func NewTransport(sessions *session.Reconciler, log *zap.Logger) *Transport {
	t := &Transport{
		sessions: sessions,
		logger:   logger.OrNop(log).Named("transport"),
		tracer:   otel.Tracer("implantai/ai"),
	}

	meter := otel.Meter("implantai/ai")
	if histogram, err := meter.Float64Histogram(
		"implantai.transport.duration",
		metric.WithDescription("Model round trip duration in milliseconds"),
		metric.WithUnit("ms"),
	); err == nil {
		t.duration = histogram
	}
	if counter, err := meter.Int64Counter(
		"implantai.transport.failures",
		metric.WithDescription("Failed sends by classified reason"),
	); err == nil {
		t.failures = counter
	}

	return t
}

// Sessions exposes the reconciler so a conversation reset can discard the handle.
func (t *Transport) Sessions() *session.Reconciler {
	return t.sessions
}

// Send transmits req through a session bound to req.Model and waits for the
// reply. Every remote failure is returned as a *TransportError. No retry is
// attempted.
func (t *Transport) Send(ctx context.Context, req Request) (Reply, error) {
	turn, ok := session.BuildMessage(schema.User, req.Text, req.Images)
	if !ok {
		return Reply{}, ErrEmptyTurn
	}

	ctx, span := t.tracer.Start(ctx, "transport.send", trace.WithAttributes(
		attribute.String("implantai.model.requested", req.Model.String()),
		attribute.Int("implantai.turn.images", len(req.Images)),
	))
	defer span.End()

	handle, err := t.sessions.EnsureSession(ctx, req.Model, req.Log)
	if err != nil {
		return Reply{}, t.fail(ctx, span, req.Model, err)
	}

	bound := handle.BoundModel()
	span.SetAttributes(attribute.String("implantai.model.bound", bound.String()))

	start := time.Now()
	response, err := handle.Send(ctx, turn)
	elapsed := time.Since(start)
	if t.duration != nil {
		t.duration.Record(ctx, float64(elapsed.Milliseconds()),
			metric.WithAttributes(attribute.String("model", bound.String())))
	}
	if err != nil {
		return Reply{}, t.fail(ctx, span, bound, err)
	}

	text := ""
	if response != nil {
		text = response.Content
	}
	if text == "" {
		text = NoReplyPlaceholder
	}

	t.logger.Info("reply received",
		zap.String("handle", handle.ID()),
		zap.String("model", bound.String()),
		zap.Int("length", len(text)),
		zap.Duration("elapsed", elapsed),
	)

	return Reply{Text: text, Model: bound, Handle: handle.ID()}, nil
}

func (t *Transport) fail(ctx context.Context, span trace.Span, m catalog.Model, err error) error {
	classified := Classify(err)

	span.RecordError(err)
	span.SetStatus(codes.Error, string(classified.Reason))
	if t.failures != nil {
		t.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", string(classified.Reason)),
			attribute.String("model", m.String()),
		))
	}

	t.logger.Warn("send failed",
		zap.String("model", m.String()),
		zap.String("reason", string(classified.Reason)),
		zap.Error(err),
	)
	return classified
}
