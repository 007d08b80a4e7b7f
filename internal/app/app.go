// Package app assembles the conversation stack shared by the API server and
// the terminal client.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/implantai/backend/internal/config"
	"github.com/zhouzirui/implantai/backend/internal/logger"
	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/service/ai"
	"github.com/zhouzirui/implantai/backend/internal/service/chat"
	"github.com/zhouzirui/implantai/backend/internal/service/session"
	"github.com/zhouzirui/implantai/backend/internal/storage/audit"
)

// App holds the wired services of one process.
type App struct {
	Config    *config.Config
	Sessions  *session.Reconciler
	Transport *ai.Transport
	Chat      *chat.Service
	Journal   *audit.Journal
}

// Build wires the conversation stack from cfg. factory may be nil, in which
// case cfg.AI builds the Ark chat models.
func Build(ctx context.Context, cfg *config.Config, factory session.ModelFactory, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if factory == nil {
		factory = cfg.AI
	}
	log = logger.OrNop(log)

	if !cfg.AI.HasCredential() {
		log.Warn("Ark 凭证未配置，发送消息时将返回配置错误")
	}

	reconciler := session.NewReconciler(factory, session.Options{
		SystemInstruction: ai.DefaultInstruction().Render(),
		Temperature:       cfg.AI.Temperature,
		Logger:            log,
	})
	transport := ai.NewTransport(reconciler, log)

	a := &App{
		Config:    cfg,
		Sessions:  reconciler,
		Transport: transport,
	}

	var recorder chat.Recorder
	if cfg.Audit.Enabled() {
		journal, err := audit.Open(ctx, cfg.Audit.DBPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit journal: %w", err)
		}
		a.Journal = journal
		recorder = journal
	}

	a.Chat = chat.NewService(chat.Options{
		Store:    chat.NewStore(reconciler),
		Sender:   transport,
		Actions:  catalog.NewMemoryActionStore(catalog.SeedActions()),
		Recorder: recorder,
		Logger:   log,
		Model:    catalog.Auto,
	})

	return a, nil
}

// Close releases resources opened by Build.
func (a *App) Close() error {
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}
