package agent

import (
	"context"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rs/zerolog/log"
)

const defaultInstructions = "You are a helpful WhatsApp assistant. Use the tools available to you to search, list, summarize, and analyze the user's own message history when it helps answer their question."

const apologyText = "I apologize, but I encountered an error processing your request."

// defaultRunTimeout bounds the whole tool-calling run loop; the LLM HTTP
// client itself additionally enforces a per-call timeout.
const defaultRunTimeout = 60 * time.Second

const maxToolIterations = 5

// ConversationTurn is one entry of the conversation history the caller
// prepends ahead of the live user message, oldest first.
type ConversationTurn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Agent is the LLM adapter (C4): a provider-neutral, stateless-per-run
// wrapper around go-openai's chat-completions client, carrying the fixed
// five-tool set from internal/agent/tools.go. Instructions and model can be
// updated in place; any run already underway keeps using what was set at
// its start, since each ProcessMessage call reads them once up front.
type Agent struct {
	Name         string
	Instructions string
	Model        string
	Temperature  float32

	client *openai.Client
}

// New constructs an Agent for the given provider. anthropic/google/ollama
// are reached through go-openai's OpenAI-compatible base_url override,
// following the teacher's ProviderConfig{BaseURL} pattern.
func New(provider, apiKey, model, baseURL string, temperature float32) *Agent {
	resolvedModel, resolvedBaseURL := resolveDefaults(provider, model, baseURL)

	cfg := openai.DefaultConfig(apiKey)
	if resolvedBaseURL != "" {
		cfg.BaseURL = resolvedBaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	return &Agent{
		Name:         "WhatsApp Assistant",
		Instructions: defaultInstructions,
		Model:        resolvedModel,
		Temperature:  temperature,
		client:       openai.NewClientWithConfig(cfg),
	}
}

// UpdateInstructions replaces the agent's system prompt in place.
func (a *Agent) UpdateInstructions(instructions string) {
	if instructions != "" {
		a.Instructions = instructions
	}
}

// ProcessMessage performs one agent run: it prepends conversationHistory
// (oldest first), appends the current user message, and executes the
// tool-calling loop until the model emits a final text message. Any error
// raised along the way is swallowed into a fixed apology string: the
// adapter never propagates failures, so the caller always observes
// "success" from the adapter's point of view. Errors that should trigger a
// worker retry are the responsibility of the surrounding agent service
// (failing to load config, failing to persist), not the adapter.
func (a *Agent) ProcessMessage(ctx context.Context, text string, tools ToolSet, conversationHistory []ConversationTurn) string {
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(conversationHistory)+2)
	chatMessages = append(chatMessages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: a.Instructions,
	})
	for _, turn := range conversationHistory {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	chatMessages = append(chatMessages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	toolDefs := Definitions()

	for i := 0; i < maxToolIterations; i++ {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       a.Model,
			Messages:    chatMessages,
			Temperature: a.Temperature,
			Tools:       toolDefs,
		})
		if err != nil {
			log.Error().Err(err).Msg("agent run failed")
			return apologyText
		}
		if len(resp.Choices) == 0 {
			log.Error().Msg("agent run returned no choices")
			return apologyText
		}

		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			return choice.Content
		}

		chatMessages = append(chatMessages, choice)
		for _, call := range choice.ToolCalls {
			result, err := tools.Invoke(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				result = `{"error": "tool invocation failed"}`
			}
			chatMessages = append(chatMessages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	log.Warn().Int("iterations", maxToolIterations).Msg("agent run hit tool-call iteration ceiling")
	return apologyText
}
