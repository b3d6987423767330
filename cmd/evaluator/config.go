package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/pavelanni/evaluator/internal/grading"
	"github.com/pavelanni/evaluator/internal/llm"
	"github.com/pavelanni/evaluator/internal/llm/prompts"
)

// engineConfig builds the immutable engine configuration from flags, env and file.
func engineConfig(v *viper.Viper) (grading.Config, error) {
	cfg := grading.DefaultConfig()

	band, err := grading.BandByName(v.GetString("grade-scale"))
	if err != nil {
		return grading.Config{}, err
	}
	cfg.Band = band

	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		return grading.Config{}, fmt.Errorf("invalid prompt-variant %q (want strict, standard or lenient)", variant)
	}
	cfg.PromptVariant = prompts.PromptVariant(variant)

	if d := v.GetDuration("provider-timeout"); d > 0 {
		cfg.ProviderTimeout = d
	}
	if n := v.GetInt("workers"); n > 0 {
		cfg.Workers = n
	}
	return cfg, nil
}

// buildProviders creates clients in the configured priority order. Providers
// without an API key are skipped; none at all means every free-text answer is
// scored by the local fallback.
func buildProviders(v *viper.Viper) ([]*llm.Client, error) {
	var clients []*llm.Client
	seen := make(map[string]bool)
	for _, name := range providerNames(v) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var baseURL, defaultURL string
		switch name {
		case llm.ProviderOpenAI:
			baseURL = v.GetString("openai-url")
		case llm.ProviderGemini:
			baseURL, defaultURL = v.GetString("gemini-url"), llm.GeminiBaseURL
		default:
			return nil, fmt.Errorf("unknown provider %q (want %s or %s)", name, llm.ProviderOpenAI, llm.ProviderGemini)
		}
		if baseURL == "" {
			baseURL = defaultURL
		}

		key := v.GetString(name + "-key")
		if key == "" {
			slog.Info("provider not configured, skipping", "provider", name)
			continue
		}
		opts := llm.DefaultOptions()
		opts.JSONMode = v.GetBool("json-mode")
		c, err := llm.New(name, baseURL, key, v.GetString(name+"-model"), opts)
		if err != nil {
			return nil, fmt.Errorf("create %s client: %w", name, err)
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// providerNames flattens the providers setting. Values from the environment
// arrive as one "openai,gemini" element, so every element is split on commas.
func providerNames(v *viper.Viper) []string {
	var names []string
	for _, entry := range v.GetStringSlice("providers") {
		for _, name := range strings.Split(entry, ",") {
			names = append(names, strings.ToLower(strings.TrimSpace(name)))
		}
	}
	return names
}

func asProviders(clients []*llm.Client) []grading.Provider {
	out := make([]grading.Provider, len(clients))
	for i, c := range clients {
		out[i] = c
	}
	return out
}
