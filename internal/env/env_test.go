package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestGet_EvaluatesLazilyAndCaches(t *testing.T) {
	e := NewWithLookup(lookupFrom(nil))
	calls := 0
	e.RegisterFlag("X", func() FlagValue { calls++; return float64(3) }, nil)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 3.0, e.GetNumber("X"))
	assert.Equal(t, 3.0, e.GetNumber("X"))
	assert.Equal(t, 1, calls)

	_, err := e.Get("MISSING")
	assert.Error(t, err)
}

func TestSet_RunsHook(t *testing.T) {
	e := NewWithLookup(lookupFrom(nil))
	var hooked []FlagValue
	e.RegisterFlag("B", func() FlagValue { return false }, func(v FlagValue) { hooked = append(hooked, v) })

	require.NoError(t, e.Set("B", true))
	assert.True(t, e.GetBool("B"))
	assert.Equal(t, []FlagValue{true}, hooked)

	assert.Error(t, e.Set("UNKNOWN", true))
}

func TestGetBool_PanicsOnWrongType(t *testing.T) {
	e := NewWithLookup(lookupFrom(nil))
	e.RegisterFlag("N", func() FlagValue { return float64(1) }, nil)
	assert.Panics(t, func() { e.GetBool("N") })
	assert.Panics(t, func() { e.GetBool("MISSING") })
}

func TestOverrides(t *testing.T) {
	e := NewWithLookup(lookupFrom(map[string]string{
		OverridesVar: "IS_TEST:true, DEBUG:true,NUM_WORKERS:4,BROKEN,BAD:maybe",
	}))
	RegisterEngineFlags(e)

	assert.True(t, e.GetBool(FlagDebug))
	assert.Equal(t, 4.0, e.GetNumber(FlagNumWorkers))
	assert.Equal(t, 32.0, e.GetNumber(FlagFloatPrecision))

	// Reset drops explicit values but re-applies overrides.
	require.NoError(t, e.Set(FlagNumWorkers, float64(1)))
	e.Reset()
	assert.Equal(t, 4.0, e.GetNumber(FlagNumWorkers))
	assert.True(t, e.GetBool(FlagDebug))
}

func TestFlagsSnapshot(t *testing.T) {
	e := NewWithLookup(lookupFrom(nil))
	RegisterEngineFlags(e)
	e.GetBool(FlagProd)

	snap := e.Flags()
	assert.Equal(t, false, snap[FlagProd])
	snap[FlagProd] = true
	assert.False(t, e.GetBool(FlagProd))

	e.SetFlags(map[string]FlagValue{FlagProd: true})
	assert.True(t, e.GetBool(FlagProd))
	e.SetFlags(nil)
	assert.Empty(t, e.Flags())
}

func TestParseFlagValue(t *testing.T) {
	v, err := ParseFlagValue("A", "TRUE")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = ParseFlagValue("A", "0.5")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	_, err = ParseFlagValue("A", "yes")
	assert.Error(t, err)
}

func TestPlatform(t *testing.T) {
	e := NewWithLookup(lookupFrom(nil))
	p := DetectPlatform()
	assert.NotEmpty(t, p.OS)
	assert.Positive(t, p.LogicalCores)

	e.SetPlatform("test", p)
	name, got := e.Platform()
	assert.Equal(t, "test", name)
	assert.Equal(t, p, got)

	d := Default()
	name, _ = d.Platform()
	assert.Contains(t, name, "go/")
	assert.True(t, d.IsRegistered(FlagHasAVX2))
}
