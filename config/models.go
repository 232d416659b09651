package config

import (
	"fmt"

	"github.com/Mirascope/mirascope-sub001/llm"
)

// AdapterResolver returns the adapter serving a named provider. Callers own
// adapter construction; the config layer only knows provider names.
type AdapterResolver func(provider string) (llm.Adapter, error)

// Models resolves a profile into its ordered candidate chain. Each entry
// becomes a model bound to the resolved adapter, with the profile's
// generation parameters applied.
func (c Config) Models(profile string, resolve AdapterResolver) ([]*llm.Model, error) {
	candidates, ok := c.Profile(profile)
	if !ok {
		return nil, fmt.Errorf("unknown profile: %s", profile)
	}
	models := make([]*llm.Model, 0, len(candidates))
	for _, candidate := range candidates {
		adapter, err := resolve(candidate.Provider)
		if err != nil {
			return nil, fmt.Errorf("resolving adapter for provider %s: %w", candidate.Provider, err)
		}
		model := llm.NewModel(adapter, candidate.Model)
		model.Params = llm.Params{
			Temperature: candidate.Temperature,
			MaxTokens:   candidate.MaxTokens,
		}
		models = append(models, model)
	}
	return models, nil
}

// RetryModel builds the fallback chain for a profile: the first candidate is
// primary, the rest take over in order as budgets run out.
func (c Config) RetryModel(profile string, policy llm.RetryPolicy, resolve AdapterResolver) (*llm.RetryModel, error) {
	models, err := c.Models(profile, resolve)
	if err != nil {
		return nil, err
	}
	return llm.NewRetryModel(policy, models...)
}
