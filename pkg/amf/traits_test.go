package amf

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraitRegistryRegisterLookup(t *testing.T) {
	reg := NewTraitRegistry()
	require.NoError(t, reg.Register(Trait{
		Alias:  "com.example.Point",
		Fields: []string{"x", "y"},
	}))

	tr, ok := reg.Lookup("com.example.Point")
	require.True(t, ok)
	assert.Equal(t, "com.example.Point", tr.Alias)
	assert.Equal(t, []string{"x", "y"}, tr.Fields)

	_, ok = reg.Lookup("com.example.Missing")
	assert.False(t, ok)
}

func TestTraitRegistryRejectsEmptyAlias(t *testing.T) {
	reg := NewTraitRegistry()
	assert.Error(t, reg.Register(Trait{Fields: []string{"x"}}))
}

func TestTraitRegistryRejectsDuplicate(t *testing.T) {
	reg := NewTraitRegistry()
	require.NoError(t, reg.Register(Trait{Alias: "a"}))
	assert.Error(t, reg.Register(Trait{Alias: "a"}))
}

func TestTraitRegistryCopiesFields(t *testing.T) {
	reg := NewTraitRegistry()
	fields := []string{"x", "y"}
	require.NoError(t, reg.Register(Trait{Alias: "a", Fields: fields}))

	fields[0] = "mutated"
	tr, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "x", tr.Fields[0])
}

func TestTraitRegistryConcurrent(t *testing.T) {
	reg := NewTraitRegistry()
	require.NoError(t, reg.Register(Trait{Alias: "base", Fields: []string{"id"}}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, ok := reg.Lookup("base")
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
}
