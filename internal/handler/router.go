package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/implantai/backend/internal/handler/catalog"
	"github.com/zhouzirui/implantai/backend/internal/handler/chat"
	"github.com/zhouzirui/implantai/backend/internal/handler/images"
	"github.com/zhouzirui/implantai/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/implantai/backend/internal/middleware"
	catalogModel "github.com/zhouzirui/implantai/backend/internal/model/catalog"
	chatService "github.com/zhouzirui/implantai/backend/internal/service/chat"
	"github.com/zhouzirui/implantai/backend/internal/service/imaging"
	"github.com/zhouzirui/implantai/backend/internal/service/session"
	"github.com/zhouzirui/implantai/backend/pkg/utils"
)

// Disclaimer is shown with every clinical answer surface.
const Disclaimer = "ImplantAI is a decision-support tool. Its output does not replace clinical judgement; verify every recommendation before treatment."

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Chat     *chatService.Service
	Sessions *session.Reconciler
	Imaging  imaging.Options
	Logger   *zap.Logger

	Product       string
	Version       string
	HasCredential bool
	Heartbeat     time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Create handlers
	catalogHandler := catalog.New(deps.Chat.Actions(), deps.Chat)
	chatHandler := chat.New(deps.Chat, deps.Imaging, logger)
	imageHandler := images.New(deps.Imaging, logger)
	streamHandler := stream.New(deps.Chat, deps.Heartbeat, logger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/meta", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, buildMeta(deps))
		})

		catalogHandler.RegisterRoutes(api)
		imageHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
	})

	return r
}

// SessionView is the debug view of the live remote session.
type SessionView struct {
	ID          string             `json:"id"`
	BoundModel  catalogModel.Model `json:"boundModel"`
	Requested   catalogModel.Model `json:"requested"`
	Temperature float32            `json:"temperature"`
	History     int                `json:"history"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// Meta backs the disclaimer banner and the settings/debug panel.
type Meta struct {
	Product       string             `json:"product"`
	Version       string             `json:"version"`
	Disclaimer    string             `json:"disclaimer"`
	HasCredential bool               `json:"hasCredential"`
	AutoResolves  catalogModel.Model `json:"autoResolvesTo"`
	Selected      catalogModel.Model `json:"selected"`
	Busy          bool               `json:"busy"`
	MaxDimension  int                `json:"maxImageDimension"`
	Session       *SessionView       `json:"session"`
}

func buildMeta(deps Dependencies) Meta {
	meta := Meta{
		Product:       deps.Product,
		Version:       deps.Version,
		Disclaimer:    Disclaimer,
		HasCredential: deps.HasCredential,
		AutoResolves:  catalogModel.AutoDefault,
		Selected:      deps.Chat.SelectedModel(),
		Busy:          deps.Chat.Busy(),
		MaxDimension:  deps.Imaging.MaxDimension,
	}

	if deps.Sessions != nil {
		if h := deps.Sessions.Current(); h != nil {
			meta.Session = &SessionView{
				ID:          h.ID(),
				BoundModel:  h.BoundModel(),
				Requested:   h.Requested(),
				Temperature: h.Temperature(),
				History:     len(h.History()),
				CreatedAt:   h.CreatedAt(),
			}
		}
	}
	return meta
}
