package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFactory struct{ name string }

func (s *stubFactory) Name() string { return s.name }
func (s *stubFactory) Create(config map[string]any) (Provider, error) {
	return NewMock(8), nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubFactory{name: "stub"}))

	factory, err := r.Get("stub")
	require.NoError(t, err)
	assert.Equal(t, "stub", factory.Name())
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubFactory{name: "stub"}))
	err := r.Register(&stubFactory{name: "stub"})
	assert.Error(t, err)
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	assert.Error(t, err)
}

func TestRegistry_NilFactory(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
}

func TestRegistry_EmptyName(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&stubFactory{name: ""}))
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubFactory{name: "zeta"}))
	require.NoError(t, r.Register(&stubFactory{name: "alpha"}))

	assert.Equal(t, []string{"alpha", "zeta"}, r.List())
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubFactory{name: "stub"}))
	r.Unregister("stub")

	_, err := r.Get("stub")
	assert.Error(t, err)
}

func TestGlobalRegistry_HasDefaults(t *testing.T) {
	names := List()
	assert.Contains(t, names, "mock")
	assert.Contains(t, names, "http")
}
