package agent

import "github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"

// providerDefault carries the default model and base URL override a
// provider gets when the caller doesn't specify its own.
type providerDefault struct {
	model   string
	baseURL string
}

var providerDefaults = map[models.LLMProvider]providerDefault{
	models.LLMProviderOpenAI:    {model: "gpt-4o"},
	models.LLMProviderAnthropic: {model: "claude-3-opus-20240229", baseURL: "https://api.anthropic.com/v1"},
	models.LLMProviderGoogle:    {model: "gemini-pro", baseURL: "https://generativelanguage.googleapis.com/v1beta"},
}

// ProviderOllama isn't part of the persisted LLMConfig.Provider enum (spec
// §3 restricts that to openai/anthropic/google) but the adapter itself
// accepts it for local development, per spec §4.4's provider table.
const ProviderOllama = "ollama"

var ollamaDefault = providerDefault{model: "llama2", baseURL: "http://localhost:11434/v1"}

// resolveDefaults fills in a provider's default model/base URL when the
// caller left them blank.
func resolveDefaults(provider string, model, baseURL string) (resolvedModel, resolvedBaseURL string) {
	var def providerDefault
	if provider == ProviderOllama {
		def = ollamaDefault
	} else {
		def = providerDefaults[models.LLMProvider(provider)]
	}

	resolvedModel = model
	if resolvedModel == "" {
		resolvedModel = def.model
	}
	resolvedBaseURL = baseURL
	if resolvedBaseURL == "" {
		resolvedBaseURL = def.baseURL
	}
	return resolvedModel, resolvedBaseURL
}
