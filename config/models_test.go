package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mirascope/mirascope-sub001/llm"
)

// stubAdapter satisfies llm.Adapter without serving any turns; the bridge
// tests only care about wiring, not generation.
type stubAdapter struct {
	name string
}

func (s stubAdapter) Name() string { return s.name }

func (s stubAdapter) Call(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	return nil, errors.New("not serving")
}

func (s stubAdapter) Stream(ctx context.Context, req llm.Request) (llm.DeltaStream, error) {
	return nil, errors.New("not serving")
}

func profileConfig() Config {
	temp := float32(0.2)
	return Config{
		Providers: []ProviderConfig{
			{Name: "local", Type: "openai_compatible", BaseURL: "http://localhost:11434/v1"},
		},
		Profiles: map[string][]ModelProfile{
			"default": {
				{Provider: "anthropic", Model: "claude-sonnet-4-0", Temperature: &temp, MaxTokens: 8192},
				{Provider: "local", Model: "qwen3"},
			},
		},
	}
}

func TestConfig_Models(t *testing.T) {
	cfg := profileConfig()
	var resolved []string
	models, err := cfg.Models("default", func(provider string) (llm.Adapter, error) {
		resolved = append(resolved, provider)
		return stubAdapter{name: provider}, nil
	})
	require.NoError(t, err)

	// Candidate order is preserved and parameters carry over.
	require.Len(t, models, 2)
	assert.Equal(t, []string{"anthropic", "local"}, resolved)
	assert.Equal(t, "claude-sonnet-4-0", models[0].Id)
	assert.Equal(t, "anthropic", models[0].Provider())
	require.NotNil(t, models[0].Params.Temperature)
	assert.InDelta(t, 0.2, *models[0].Params.Temperature, 1e-6)
	assert.Equal(t, 8192, models[0].Params.MaxTokens)
	assert.Equal(t, "qwen3", models[1].Id)
	assert.Equal(t, "local", models[1].Provider())
}

func TestConfig_Models_UnknownProfile(t *testing.T) {
	cfg := profileConfig()
	_, err := cfg.Models("missing", func(provider string) (llm.Adapter, error) {
		return stubAdapter{name: provider}, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown profile: missing")
}

func TestConfig_Models_ResolverErrorPropagates(t *testing.T) {
	cfg := profileConfig()
	boom := errors.New("no such adapter")
	_, err := cfg.Models("default", func(provider string) (llm.Adapter, error) {
		return nil, fmt.Errorf("%s: %w", provider, boom)
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "anthropic")
}

func TestConfig_RetryModel(t *testing.T) {
	cfg := profileConfig()
	rm, err := cfg.RetryModel("default", llm.RetryPolicy{}, func(provider string) (llm.Adapter, error) {
		return stubAdapter{name: provider}, nil
	})
	require.NoError(t, err)

	// The first candidate is active until its budget runs out.
	assert.Equal(t, "claude-sonnet-4-0", rm.Active().Id)
}
