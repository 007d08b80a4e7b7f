package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAutoUsesDefaultTier(t *testing.T) {
	assert.Equal(t, AutoDefault, Resolve(Auto))
	assert.True(t, Resolve(Auto).IsConcrete())
	for _, m := range Concrete() {
		assert.Equal(t, m, Resolve(m))
	}
}

func TestParse(t *testing.T) {
	m, err := Parse(" Flash ")
	require.NoError(t, err)
	assert.Equal(t, Flash, m)

	_, err = Parse("gpt-99")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownModel))
}

func TestEveryModelHasDisplayMetadata(t *testing.T) {
	for _, m := range All() {
		cfg := m.Config()
		assert.Equal(t, m, cfg.ID)
		assert.NotEmpty(t, cfg.Label, "label for %s", m)
		assert.NotEmpty(t, cfg.Description, "description for %s", m)
	}
	assert.False(t, Auto.IsConcrete())
	assert.False(t, Model("nope").Valid())
}

func TestActionStoreFiltersByCategory(t *testing.T) {
	store := NewMemoryActionStore(SeedActions())

	surgical := store.ListByCategory(Surgical)
	require.Len(t, surgical, 2)
	for _, a := range surgical {
		assert.Equal(t, Surgical, a.Category)
	}
	assert.Len(t, store.ListByCategory(""), len(SeedActions()))

	action, ok := store.FindByID("patient_memo")
	require.True(t, ok)
	assert.Equal(t, General, action.Category)

	_, ok = store.FindByID("missing")
	assert.False(t, ok)
}

func TestSeedActionsAreWellFormed(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range SeedActions() {
		assert.False(t, seen[a.ID], "duplicate action %s", a.ID)
		seen[a.ID] = true
		assert.True(t, ValidCategory(a.Category))
		assert.NotEmpty(t, a.Prompt)
	}
}
