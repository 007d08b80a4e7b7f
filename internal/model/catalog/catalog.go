// Package catalog holds the fixed set of selectable models and clinical quick actions.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownModel is returned when an identifier does not name a catalog model.
var ErrUnknownModel = errors.New("unknown model")

// Model identifies a selectable model tier. Auto is abstract and must be
// resolved before a session is bound to it.
type Model string

const (
	Auto  Model = "auto"
	Pro   Model = "pro"
	Flash Model = "flash"
	Lite  Model = "lite"
)

// AutoDefault is the concrete tier an Auto selection resolves to.
const AutoDefault = Flash

// Config is the display metadata for a model tier.
type Config struct {
	ID          Model  `json:"id"`
	Label       string `json:"label"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// All returns every selectable model, Auto first.
func All() []Model {
	return []Model{Auto, Pro, Flash, Lite}
}

// Concrete returns the tiers a session can be bound to.
func Concrete() []Model {
	return []Model{Pro, Flash, Lite}
}

// Parse maps an identifier to a catalog model.
func Parse(id string) (Model, error) {
	m := Model(strings.ToLower(strings.TrimSpace(id)))
	if _, ok := m.lookup(); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return m, nil
}

// Resolve maps Auto to AutoDefault and returns any other model unchanged.
func Resolve(m Model) Model {
	if m == Auto {
		return AutoDefault
	}
	return m
}

// IsConcrete reports whether m can be bound to a session directly.
func (m Model) IsConcrete() bool {
	switch m {
	case Pro, Flash, Lite:
		return true
	}
	return false
}

// Valid reports whether m is part of the catalog.
func (m Model) Valid() bool {
	_, ok := m.lookup()
	return ok
}

// Config returns the display metadata of m.
func (m Model) Config() Config {
	cfg, ok := m.lookup()
	if !ok {
		return Config{ID: m, Label: string(m)}
	}
	return cfg
}

func (m Model) String() string {
	return string(m)
}

func (m Model) lookup() (Config, bool) {
	switch m {
	case Auto:
		return Config{ID: Auto, Label: "Auto (System Choice)", Icon: "Circle", Description: "Balanced performance"}, true
	case Pro:
		return Config{ID: Pro, Label: "Pro", Icon: "Gem", Description: "Complex reasoning"}, true
	case Flash:
		return Config{ID: Flash, Label: "Flash", Icon: "Zap", Description: "Speed/Reasoning balance"}, true
	case Lite:
		return Config{ID: Lite, Label: "Flash Lite", Icon: "Leaf", Description: "Simple/Fast"}, true
	}
	return Config{}, false
}

// Configs lists display metadata for every model in All order.
func Configs() []Config {
	models := All()
	out := make([]Config, 0, len(models))
	for _, m := range models {
		out = append(out, m.Config())
	}
	return out
}
