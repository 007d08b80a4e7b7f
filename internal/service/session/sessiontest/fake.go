// Package sessiontest provides in-memory chat models for tests that drive
// the session layer without a remote endpoint.
package sessiontest

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
)

// Model is a scripted chat model. It records every input it receives.
type Model struct {
	Bound catalog.Model
	Reply string
	Err   error

	mu     sync.Mutex
	inputs [][]*schema.Message
}

var _ model.BaseChatModel = (*Model)(nil)

func (m *Model) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	reply, err := m.Reply, m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return schema.AssistantMessage(reply, nil), nil
}

func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Inputs returns the message lists passed to Generate, oldest first.
func (m *Model) Inputs() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.inputs...)
}

// LastInput returns the most recent message list, or nil.
func (m *Model) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[len(m.inputs)-1]
}

// Factory builds Models and remembers each one.
type Factory struct {
	Reply   string
	SendErr error
	InitErr error

	mu     sync.Mutex
	models []*Model
	temps  []float32
}

func (f *Factory) NewChatModel(_ context.Context, m catalog.Model, temperature float32) (model.BaseChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.InitErr != nil {
		return nil, f.InitErr
	}
	built := &Model{Bound: m, Reply: f.Reply, Err: f.SendErr}
	f.models = append(f.models, built)
	f.temps = append(f.temps, temperature)
	return built, nil
}

// Built returns the models created so far.
func (f *Factory) Built() []*Model {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Model(nil), f.models...)
}

// Temperatures returns the temperature passed for each build.
func (f *Factory) Temperatures() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float32(nil), f.temps...)
}

// Last returns the most recently built model, or nil.
func (f *Factory) Last() *Model {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.models) == 0 {
		return nil
	}
	return f.models[len(f.models)-1]
}
