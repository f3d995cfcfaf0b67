// Package agent implements the LLM adapter (C4), the fixed five-tool set it
// invokes (C6), and the agent service that orchestrates one conversational
// turn (the agent-service half of C9). The run loop is grounded on
// internal/core/llm's provider-abstraction idiom from the teacher, adapted
// to github.com/sashabaranov/go-openai's native tool-calling support
// instead of the teacher's single-shot prompt/response call.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/messages"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
)

// ToolSet carries the run context every tool call is scoped by: the
// message store and the user the conversation belongs to. A zero-value
// ToolSet (Messages == nil) means "missing context"; every tool method
// returns its zero-value result rather than an error in that case.
// UserPhone is resolved once by the agent service when it builds the
// ToolSet, so tools never need a second user lookup just to label senders.
type ToolSet struct {
	Messages  *messages.Service
	UserID    uint
	UserPhone string
}

// MessageResult is the shape every message-listing tool returns.
type MessageResult struct {
	MessageID int64     `json:"message_id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// DateRange is the {start,end} shape summarize_chat/get_conversation_stats
// return.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// ChatSummary is summarize_chat's return shape.
type ChatSummary struct {
	Summary      string    `json:"summary"`
	MessageCount int       `json:"message_count"`
	DateRange    DateRange `json:"date_range"`
	KeyTopics    []string  `json:"key_topics"`
}

// ExtractedTask is one entry of extract_tasks' return list.
type ExtractedTask struct {
	Task        string    `json:"task"`
	MentionedAt time.Time `json:"mentioned_at"`
	Priority    string    `json:"priority"`
	Completed   bool      `json:"completed"`
}

// ConversationStatsResult is get_conversation_stats' return shape.
type ConversationStatsResult struct {
	TotalMessages             int       `json:"total_messages"`
	UserMessages              int       `json:"user_messages"`
	AssistantMessages         int       `json:"assistant_messages"`
	DateRange                 DateRange `json:"date_range"`
	AverageMessagesPerDay     float64   `json:"average_messages_per_day"`
}

func senderFor(m models.Message, userPhone string) string {
	if m.Direction(userPhone) == models.DirectionIncoming {
		return "user"
	}
	return "assistant"
}

func messageContent(m models.Message) string {
	if m.Content != nil {
		return *m.Content
	}
	if m.Caption != nil {
		return *m.Caption
	}
	return ""
}

// SearchMessages searches the user's history for query, newest first.
func (t ToolSet) SearchMessages(ctx context.Context, query string, limit int) []MessageResult {
	if t.Messages == nil {
		return []MessageResult{}
	}
	if limit <= 0 {
		limit = 10
	}

	msgs, err := t.Messages.SearchMessages(ctx, t.UserID, query, limit)
	if err != nil {
		return []MessageResult{}
	}
	return toResults(msgs, t.UserPhone)
}

// GetRecentMessages returns the most recent count messages in chronological
// (oldest-first) order.
func (t ToolSet) GetRecentMessages(ctx context.Context, count int) []MessageResult {
	if t.Messages == nil {
		return []MessageResult{}
	}
	if count <= 0 {
		count = 20
	}

	msgs, err := t.Messages.GetRecentMessages(ctx, t.UserID, count)
	if err != nil {
		return []MessageResult{}
	}
	// msgs is newest-first; reverse to chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return toResults(msgs, t.UserPhone)
}

// SummarizeChat summarizes the last lastN messages with a lightweight
// heuristic; the spec allows routing this through a secondary model call,
// but mandates only the return shape.
func (t ToolSet) SummarizeChat(ctx context.Context, lastN int) ChatSummary {
	if lastN <= 0 {
		lastN = 50
	}
	results := t.GetRecentMessages(ctx, lastN)
	if len(results) == 0 {
		return ChatSummary{Summary: "No messages found to summarize."}
	}

	start, end := results[0].Timestamp, results[len(results)-1].Timestamp
	return ChatSummary{
		Summary:      fmt.Sprintf("Conversation between user and assistant covering %d messages.", len(results)),
		MessageCount: len(results),
		DateRange:    DateRange{Start: &start, End: &end},
		KeyTopics:    []string{"general conversation"},
	}
}

var taskKeywords = []string{
	"todo", "task", "remind", "need to", "should", "must",
	"have to", "don't forget", "remember to",
}

// ExtractTasks spots actionable sentences in the last lastN messages via
// keyword heuristics.
func (t ToolSet) ExtractTasks(ctx context.Context, lastN int) []ExtractedTask {
	if lastN <= 0 {
		lastN = 100
	}
	results := t.GetRecentMessages(ctx, lastN)

	tasks := []ExtractedTask{}
	for _, m := range results {
		lower := strings.ToLower(m.Content)
		for _, kw := range taskKeywords {
			if strings.Contains(lower, kw) {
				task := m.Content
				if len(task) > 100 {
					task = task[:100]
				}
				tasks = append(tasks, ExtractedTask{
					Task:        task,
					MentionedAt: m.Timestamp,
					Priority:    "medium",
					Completed:   false,
				})
				break
			}
		}
	}
	return tasks
}

// GetConversationStats returns counts and date range over the user's full
// history.
func (t ToolSet) GetConversationStats(ctx context.Context) ConversationStatsResult {
	if t.Messages == nil {
		return ConversationStatsResult{}
	}

	stats, err := t.Messages.GetConversationStats(ctx, t.UserID)
	if err != nil {
		return ConversationStatsResult{}
	}

	return ConversationStatsResult{
		TotalMessages:         int(stats.Total),
		UserMessages:          int(stats.Sent),
		AssistantMessages:     int(stats.Total - stats.Sent),
		DateRange:             DateRange{Start: stats.FirstDate, End: stats.LastDate},
		AverageMessagesPerDay: stats.AvgPerDay,
	}
}

func toResults(msgs []models.Message, userPhone string) []MessageResult {
	out := make([]MessageResult, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResult{
			MessageID: int64(m.ID),
			Content:   messageContent(m),
			Sender:    senderFor(m, userPhone),
			Timestamp: m.Timestamp,
		})
	}
	return out
}

// Invoke dispatches a tool call by name with its JSON-encoded arguments and
// returns a JSON-encoded result, for the agent run loop to feed back to the
// model as a tool message.
func (t ToolSet) Invoke(ctx context.Context, name, argsJSON string) (string, error) {
	var raw json.RawMessage
	if argsJSON != "" {
		raw = json.RawMessage(argsJSON)
	}

	var result any
	switch name {
	case ToolSearchMessages:
		var args struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		_ = json.Unmarshal(raw, &args)
		result = t.SearchMessages(ctx, args.Query, args.Limit)
	case ToolGetRecentMessages:
		var args struct {
			Count int `json:"count"`
		}
		_ = json.Unmarshal(raw, &args)
		result = t.GetRecentMessages(ctx, args.Count)
	case ToolSummarizeChat:
		var args struct {
			LastNMessages int `json:"last_n_messages"`
		}
		_ = json.Unmarshal(raw, &args)
		result = t.SummarizeChat(ctx, args.LastNMessages)
	case ToolExtractTasks:
		var args struct {
			LastNMessages int `json:"last_n_messages"`
		}
		_ = json.Unmarshal(raw, &args)
		result = t.ExtractTasks(ctx, args.LastNMessages)
	case ToolGetConversationStats:
		result = t.GetConversationStats(ctx)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(out), nil
}

// Tool name constants, fixed per spec §4.6.
const (
	ToolSearchMessages       = "search_messages"
	ToolGetRecentMessages    = "get_recent_messages"
	ToolSummarizeChat        = "summarize_chat"
	ToolExtractTasks         = "extract_tasks"
	ToolGetConversationStats = "get_conversation_stats"
)

// Definitions returns the static tool schema the agent hands to the model
// on every run. Names, argument shapes, and defaults are fixed by spec
// §4.6, so the union is tagged statically rather than built from
// decorator-driven registration like the source.
func Definitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolSearchMessages,
				Description: "Search through the user's message history for a query string.",
				Parameters: jsonSchema(map[string]any{
					"query": map[string]any{"type": "string", "description": "Search query to find relevant messages"},
					"limit": map[string]any{"type": "integer", "description": "Maximum number of results to return (default 10)"},
				}, []string{"query"}),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolGetRecentMessages,
				Description: "Get the most recent messages from the conversation, oldest first.",
				Parameters: jsonSchema(map[string]any{
					"count": map[string]any{"type": "integer", "description": "Number of recent messages to retrieve (default 20)"},
				}, nil),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolSummarizeChat,
				Description: "Generate a summary of recent conversation including key topics.",
				Parameters: jsonSchema(map[string]any{
					"last_n_messages": map[string]any{"type": "integer", "description": "Number of recent messages to summarize (default 50)"},
				}, nil),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolExtractTasks,
				Description: "Extract actionable tasks mentioned in the conversation.",
				Parameters: jsonSchema(map[string]any{
					"last_n_messages": map[string]any{"type": "integer", "description": "Number of recent messages to analyze (default 100)"},
				}, nil),
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ToolGetConversationStats,
				Description: "Get statistics about the entire conversation history.",
				Parameters:  jsonSchema(map[string]any{}, nil),
			},
		},
	}
}

func jsonSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
