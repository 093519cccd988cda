package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	poderr "github.com/podev-dev/podev/internal/errors"
)

func TestNewElementRegistry(t *testing.T) {
	reg := NewElementRegistry(true)

	assert.NotNil(t, reg)
	assert.Equal(t, 0, reg.Count())
	assert.Empty(t, reg.Names())
}

func TestDefine_AndGet(t *testing.T) {
	reg := NewElementRegistry(false)

	def := &ElementDefinition{
		Tag:                "app-content",
		ObservedAttributes: []string{"initial-state"},
		BundlePath:         "dist/server/content.js",
		Version:            1,
	}
	require.NoError(t, reg.Define(def))

	got, ok := reg.Get("app-content")
	assert.True(t, ok)
	assert.Equal(t, def, got)
	assert.True(t, reg.Has("app-content"))
	assert.Equal(t, 1, reg.Count())
}

func TestDefine_DuplicateInProductionFails(t *testing.T) {
	reg := NewElementRegistry(false)

	require.NoError(t, reg.Define(&ElementDefinition{Tag: "app-content", Version: 1}))
	err := reg.Define(&ElementDefinition{Tag: "app-content", Version: 2})

	require.Error(t, err)
	var dup *poderr.DuplicateElementError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "app-content", dup.Name)

	// The original definition survives the failed redefinition.
	got, ok := reg.Get("app-content")
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.Version)
}

func TestDefine_DuplicateInDevelopmentSucceeds(t *testing.T) {
	reg := NewElementRegistry(true)

	require.NoError(t, reg.Define(&ElementDefinition{Tag: "app-content", Version: 1}))
	require.NoError(t, reg.Define(&ElementDefinition{Tag: "app-content", Version: 2}))

	got, ok := reg.Get("app-content")
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Version)
	assert.Equal(t, 1, reg.Count())
}

func TestNames_Sorted(t *testing.T) {
	reg := NewElementRegistry(true)

	require.NoError(t, reg.Define(&ElementDefinition{Tag: "app-footer"}))
	require.NoError(t, reg.Define(&ElementDefinition{Tag: "app-content"}))
	require.NoError(t, reg.Define(&ElementDefinition{Tag: "app-header"}))

	assert.Equal(t, []string{"app-content", "app-footer", "app-header"}, reg.Names())
}

func TestDefine_ConcurrentDevelopmentLastWriteWins(t *testing.T) {
	reg := NewElementRegistry(true)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			assert.NoError(t, reg.Define(&ElementDefinition{Tag: "app-content", Version: v}))
		}(uint64(i))
	}
	wg.Wait()

	assert.Equal(t, 1, reg.Count())
	_, ok := reg.Get("app-content")
	assert.True(t, ok)
}
