package models

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
	RoleSystem    string = "system"
	RoleTool      string = "tool"
)

const (
	maxTitleRunes = 50
	defaultTitle  = "New chat"
)

// Field names follow the flat JSON blobs written by older clients, so the same
// structs decode legacy data, fallback data and database columns.

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

type Attachment struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"` // inline payload, usually base64
}

type AttachmentRef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Reasoning   *string      `json:"reasoning,omitempty"`
	Usage       *Usage       `json:"usage,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// HistoryMessage is a Message as archived in history: attachments keep only
// their type and name.
type HistoryMessage struct {
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Reasoning   *string         `json:"reasoning,omitempty"`
	Usage       *Usage          `json:"usage,omitempty"`
	ToolCalls   []ToolCall      `json:"toolCalls,omitempty"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

type HistoryEntry struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Model    string           `json:"model"`
	SavedAt  int64            `json:"savedAt"` // unix milliseconds
	Messages []HistoryMessage `json:"messages"`
}

func StripMessage(msg Message) HistoryMessage {
	stripped := HistoryMessage{
		Role:      msg.Role,
		Content:   msg.Content,
		Reasoning: msg.Reasoning,
		Usage:     msg.Usage,
		ToolCalls: msg.ToolCalls,
	}
	if len(msg.Attachments) > 0 {
		stripped.Attachments = make([]AttachmentRef, len(msg.Attachments))
		for i, a := range msg.Attachments {
			stripped.Attachments[i] = AttachmentRef{Type: a.Type, Name: a.Name}
		}
	}
	return stripped
}

func StripMessages(msgs []Message) []HistoryMessage {
	stripped := make([]HistoryMessage, len(msgs))
	for i, msg := range msgs {
		stripped[i] = StripMessage(msg)
	}
	return stripped
}

// DeriveTitle returns an excerpt of the first user message with non-empty text.
func DeriveTitle(msgs []Message) string {
	for _, msg := range msgs {
		if msg.Role != RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(msg.Content), " ")
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) <= maxTitleRunes {
			return text
		}
		runes := []rune(text)
		return strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
	}
	return defaultTitle
}

func NewHistoryEntry(msgs []Message, model string, savedAt int64) HistoryEntry {
	return HistoryEntry{
		ID:       uuid.New().String(),
		Title:    DeriveTitle(msgs),
		Model:    model,
		SavedAt:  savedAt,
		Messages: StripMessages(msgs),
	}
}
