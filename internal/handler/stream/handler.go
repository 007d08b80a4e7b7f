package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
	chatService "github.com/zhouzirui/implantai/backend/internal/service/chat"
	"github.com/zhouzirui/implantai/backend/pkg/utils"
)

// DefaultHeartbeat is how often an idle stream sends a keepalive comment.
const DefaultHeartbeat = 15 * time.Second

// EventSource is the part of the conversation service the stream needs.
type EventSource interface {
	Subscribe() (<-chan chatService.Event, func())
	Turns(ctx context.Context) []chat.Turn
	SelectedModel() catalog.Model
	Busy() bool
}

// Handler pushes conversation events to clients via Server-Sent Events
type Handler struct {
	source    EventSource
	heartbeat time.Duration
	logger    *zap.Logger
}

// New creates a new stream handler
func New(source EventSource, heartbeat time.Duration, logger *zap.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{source: source, heartbeat: heartbeat, logger: logger.Named("sse")}
}

// RegisterRoutes 注册事件流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversation/events", h.handleEvents)
}

// snapshot is sent once when a stream opens so clients start from current state.
type snapshot struct {
	Turns []chat.Turn   `json:"turns"`
	Model catalog.Model `json:"model"`
	Busy  bool          `json:"busy"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// 先订阅再发送快照，避免丢失中间事件
	events, cancel := h.source.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	if err := utils.SendSSEEvent(w, flusher, "snapshot", snapshot{
		Turns: h.source.Turns(ctx),
		Model: h.source.SelectedModel(),
		Busy:  h.source.Busy(),
	}); err != nil {
		return
	}

	h.logger.Debug("stream opened", zap.String("remote", r.RemoteAddr))
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("stream closed", zap.String("remote", r.RemoteAddr))
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(evt.Type), evt); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat "+t.UTC().Format(time.RFC3339)); err != nil {
				return
			}
		}
	}
}
