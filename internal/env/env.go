// Package env holds the process-wide flag registry that controls runtime
// behavior of the engine (debug mode, leak checks, precision policy, ...).
//
// Flags are registered with an evaluation function that lazily computes the
// default. Values can be overridden programmatically with Set or through the
// TFCORE_FLAGS environment variable:
//
//	TFCORE_FLAGS="DEBUG:true,NUM_WORKERS:4"
package env

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"strings"
	"sync"
)

// OverridesVar is the environment variable parsed for flag overrides.
const OverridesVar = "TFCORE_FLAGS"

// FlagValue is either a bool or a float64.
type FlagValue = any

// EvaluateFunc computes the default value of a flag.
type EvaluateFunc func() FlagValue

// SetHook is called whenever a flag is set explicitly.
type SetHook func(value FlagValue)

type flagEntry struct {
	evaluate EvaluateFunc
	setHook  SetHook
}

// Environment is a registry of typed feature flags.
type Environment struct {
	mu        sync.Mutex
	flags     map[string]FlagValue
	registry  map[string]flagEntry
	overrides map[string]FlagValue

	platformName string
	platform     Platform

	lookup func(string) string
}

// New creates an empty environment reading overrides from the process
// environment.
func New() *Environment {
	return NewWithLookup(os.Getenv)
}

// NewWithLookup creates an environment whose overrides come from lookup.
// Tests use it to inject TFCORE_FLAGS without touching the process env.
func NewWithLookup(lookup func(string) string) *Environment {
	e := &Environment{
		flags:    make(map[string]FlagValue),
		registry: make(map[string]flagEntry),
		lookup:   lookup,
	}
	e.populateOverrides()
	return e
}

// RegisterFlag registers a flag with its evaluation function and optional
// set hook. A pending override for the flag is applied immediately.
func (e *Environment) RegisterFlag(name string, evaluate EvaluateFunc, setHook SetHook) {
	e.mu.Lock()
	e.registry[name] = flagEntry{evaluate: evaluate, setHook: setHook}
	override, ok := e.overrides[name]
	e.mu.Unlock()

	if !ok {
		return
	}
	if !e.quiet() {
		slog.Warn("setting feature override from "+OverridesVar, "flag", name, "value", override)
	}
	if err := e.Set(name, override); err != nil {
		slog.Warn("failed to apply flag override", "flag", name, "error", err)
	}
}

// IsRegistered reports whether the flag has been registered.
func (e *Environment) IsRegistered(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.registry[name]
	return ok
}

// Get returns the flag value, evaluating and caching it on first use.
func (e *Environment) Get(name string) (FlagValue, error) {
	e.mu.Lock()
	if v, ok := e.flags[name]; ok {
		e.mu.Unlock()
		return v, nil
	}
	entry, ok := e.registry[name]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("cannot evaluate flag '%s': no evaluation function found", name)
	}

	// Evaluation may read other flags, so it runs unlocked.
	v := entry.evaluate()

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.flags[name]; ok {
		return cached, nil
	}
	e.flags[name] = v
	return v, nil
}

// GetBool returns a boolean flag. It panics if the flag is unknown or not a bool.
func (e *Environment) GetBool(name string) bool {
	v, err := e.Get(name)
	if err != nil {
		panic(err)
	}
	b, ok := v.(bool)
	if !ok {
		panic(fmt.Sprintf("flag %s is not a bool (got %T)", name, v))
	}
	return b
}

// GetNumber returns a numeric flag. It panics if the flag is unknown or not numeric.
func (e *Environment) GetNumber(name string) float64 {
	v, err := e.Get(name)
	if err != nil {
		panic(err)
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		panic(fmt.Sprintf("flag %s is not a number (got %T)", name, v))
	}
}

// Set assigns a value to a registered flag and runs its set hook.
func (e *Environment) Set(name string, value FlagValue) error {
	e.mu.Lock()
	entry, ok := e.registry[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("cannot set flag %s as it has not been registered", name)
	}
	e.flags[name] = value
	e.mu.Unlock()

	if entry.setHook != nil {
		entry.setHook(value)
	}
	return nil
}

// Flags returns a copy of the evaluated flag values.
func (e *Environment) Flags() map[string]FlagValue {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.flags)
}

// SetFlags replaces all evaluated flag values without running set hooks.
func (e *Environment) SetFlags(flags map[string]FlagValue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flags = maps.Clone(flags)
	if e.flags == nil {
		e.flags = make(map[string]FlagValue)
	}
}

// Reset drops every evaluated value and re-reads the overrides.
// Registrations are preserved.
func (e *Environment) Reset() {
	e.mu.Lock()
	e.flags = make(map[string]FlagValue)
	e.mu.Unlock()
	e.populateOverrides()

	e.mu.Lock()
	pending := maps.Clone(e.overrides)
	e.mu.Unlock()
	for name, value := range pending {
		if e.IsRegistered(name) {
			_ = e.Set(name, value)
		}
	}
}

func (e *Environment) quiet() bool {
	return e.boolIfSet("IS_TEST") || e.boolIfSet("PROD")
}

// boolIfSet reads a bool flag without panicking when it is not registered.
func (e *Environment) boolIfSet(name string) bool {
	if !e.IsRegistered(name) {
		return false
	}
	v, err := e.Get(name)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (e *Environment) populateOverrides() {
	overrides := make(map[string]FlagValue)
	raw := strings.TrimSpace(e.lookup(OverridesVar))
	if raw != "" {
		for _, pair := range strings.Split(raw, ",") {
			name, value, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			name = strings.TrimSpace(name)
			parsed, err := ParseFlagValue(name, strings.TrimSpace(value))
			if err != nil {
				slog.Warn("ignoring flag override", "error", err)
				continue
			}
			overrides[name] = parsed
		}
	}

	e.mu.Lock()
	e.overrides = overrides
	e.mu.Unlock()
}

// ParseFlagValue parses an override value: true/false become bools and
// numerics become float64.
func ParseFlagValue(name, value string) (FlagValue, error) {
	switch strings.ToLower(value) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n, nil
	}
	return nil, fmt.Errorf("could not parse value flag value %s for flag %s", value, name)
}
