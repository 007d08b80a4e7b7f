package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
)

// NoReplyPlaceholder stands in for a reply that carried no text.
const NoReplyPlaceholder = "No response was generated."

// ErrEmptyTurn is returned when an outgoing turn has no text and no images.
var ErrEmptyTurn = errors.New("turn has no text and no images")

// Handle is a live remote chat bound to one concrete model. It keeps the
// history exchanged through it so follow-up sends carry the full context.
// The binding never changes; a different model needs a new Handle.
type Handle struct {
	id          string
	boundModel  catalog.Model
	requested   catalog.Model
	temperature float32
	instruction string
	createdAt   time.Time
	seeded      int
	runnable    compose.Runnable[map[string]any, *schema.Message]

	mu      sync.Mutex
	history []*schema.Message
}

func newHandle(ctx context.Context, chatModel model.BaseChatModel, requested, bound catalog.Model, opts Options, history []*schema.Message) (*Handle, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.MessagesPlaceholder("turn", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Handle{
		id:          uuid.NewString(),
		boundModel:  bound,
		requested:   requested,
		temperature: opts.Temperature,
		instruction: opts.SystemInstruction,
		createdAt:   time.Now(),
		seeded:      len(history),
		runnable:    runnable,
		history:     history,
	}, nil
}

// ID uniquely identifies the handle for logs and diagnostics.
func (h *Handle) ID() string { return h.id }

// BoundModel is the concrete model the handle talks to.
func (h *Handle) BoundModel() catalog.Model { return h.boundModel }

// Requested is the selection the handle was created for, possibly Auto.
func (h *Handle) Requested() catalog.Model { return h.requested }

// Temperature is the decoding temperature the model was built with.
func (h *Handle) Temperature() float32 { return h.temperature }

// SeededLength is the number of history messages the handle was created with.
func (h *Handle) SeededLength() int { return h.seeded }

// CreatedAt reports when the handle was built.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// History returns a copy of the messages exchanged so far, seed included.
func (h *Handle) History() []*schema.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*schema.Message(nil), h.history...)
}

// Send transmits one turn with the current history and waits for exactly one
// reply. On success both the turn and the reply join the handle history; a
// reply without text is recorded as NoReplyPlaceholder.
func (h *Handle) Send(ctx context.Context, turn *schema.Message) (*schema.Message, error) {
	if Segments(turn) == 0 {
		return nil, ErrEmptyTurn
	}

	input := map[string]any{
		"system":  h.instruction,
		"history": h.History(),
		"turn":    []*schema.Message{turn},
	}

	reply, err := h.runnable.Invoke(ctx, input)
	if err != nil {
		return nil, err
	}

	recorded := reply
	if reply == nil || reply.Content == "" {
		recorded = schema.AssistantMessage(NoReplyPlaceholder, nil)
	}

	h.mu.Lock()
	h.history = append(h.history, turn, recorded)
	h.mu.Unlock()

	return reply, nil
}
