package agent

import (
	"context"
	"fmt"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/crypto"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/messages"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
)

// TurnResult is the outcome of one Service.ProcessTurn call, mirroring the
// source's AgentResponse schema.
type TurnResult struct {
	Content      string
	Success      bool
	ErrorMessage string
	Provider     string
	Model        string
}

// Service orchestrates one conversational turn (spec §4.9's "agent
// service"): load the user's active LLM configuration, build conversation
// context, decrypt the API key, run the adapter, persist the outbound
// reply. The inbound message itself is persisted by the caller before the
// turn is handed off (see internal/webhook). It is stateless per
// invocation; every call takes the user id it operates on.
type Service struct {
	messages   *messages.Service
	users      *repository.UserRepository
	llmConfigs *repository.LLMConfigRepository
	encryptor  *crypto.Encryptor
}

func NewService(msgs *messages.Service, users *repository.UserRepository, llmConfigs *repository.LLMConfigRepository, encryptor *crypto.Encryptor) *Service {
	return &Service{messages: msgs, users: users, llmConfigs: llmConfigs, encryptor: encryptor}
}

// ProcessTurn runs one full turn for userID given the incoming text. A
// non-nil error means an infrastructure failure occurred (storage, config
// lookup) and the caller (the message processor, C8) should retry; a
// returned TurnResult with Success=false but a nil error means the turn
// reached a terminal, non-retriable outcome (no LLM configured, or the
// adapter itself swallowed a provider failure into its apology) that the
// worker should acknowledge rather than retry, per spec §4.9/§7.
func (s *Service) ProcessTurn(ctx context.Context, userID uint, text string) (*TurnResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("process turn: user %d not found", userID)
	}

	// The inbound message is already persisted by the webhook handler before
	// it enqueues the turn (internal/webhook/handler.go); storing it again
	// here would double-count it in conversation history and stats.

	cfg, err := s.llmConfigs.GetActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load llm config: %w", err)
	}
	if cfg == nil {
		return s.errorResult("LLM configuration not found"), nil
	}

	history, err := s.buildConversationContext(ctx, userID, 20)
	if err != nil {
		return nil, fmt.Errorf("build conversation context: %w", err)
	}

	apiKey, err := s.encryptor.Decrypt(cfg.APIKeyEncrypted)
	if err != nil {
		return s.errorResult("LLM configuration corrupt"), nil
	}

	settings := cfg.Settings()
	ag := New(string(cfg.Provider), apiKey, settings.Model(), "", settings.Temperature())
	if instr := settings.CustomInstructions(); instr != "" {
		ag.UpdateInstructions(instr)
	}

	toolSet := ToolSet{Messages: s.messages, UserID: userID, UserPhone: user.PhoneNumber}
	reply := ag.ProcessMessage(ctx, text, toolSet, history)

	if _, err := s.messages.StoreMessage(ctx, userID, messages.MessageCreate{
		Direction:   models.DirectionOutgoing,
		MessageType: models.MessageTypeText,
		Content:     &reply,
	}); err != nil {
		return nil, fmt.Errorf("store outgoing message: %w", err)
	}

	return &TurnResult{
		Content:  reply,
		Success:  true,
		Provider: string(cfg.Provider),
		Model:    ag.Model,
	}, nil
}

// buildConversationContext fetches the last maxMessages messages, drops
// system-direction ones, and returns them oldest-first mapped to
// user/assistant roles.
func (s *Service) buildConversationContext(ctx context.Context, userID uint, maxMessages int) ([]ConversationTurn, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("build conversation context: user %d not found", userID)
	}

	recent, err := s.messages.GetRecentMessages(ctx, userID, maxMessages)
	if err != nil {
		return nil, err
	}

	history := make([]ConversationTurn, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		var role string
		switch m.Direction(user.PhoneNumber) {
		case models.DirectionIncoming:
			role = "user"
		case models.DirectionOutgoing:
			role = "assistant"
		default:
			continue
		}
		history = append(history, ConversationTurn{Role: role, Content: messageContent(m)})
	}
	return history, nil
}

func (s *Service) errorResult(errMsg string) *TurnResult {
	return &TurnResult{
		Content:      apologyText,
		Success:      false,
		ErrorMessage: errMsg,
	}
}
