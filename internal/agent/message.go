// Package agent abstracts the coding-agent stream. The orchestrator only
// relies on messages carrying a discriminated type and, for assistant
// messages, content blocks of type text or tool_use; everything else rides
// along as raw JSON for debug events.
package agent

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Message types emitted by the agent CLI's stream-json output.
const (
	MessageSystem    = "system"
	MessageAssistant = "assistant"
	MessageUser      = "user"
	MessageResult    = "result"
	MessageStream    = "stream_event"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one element of an assistant or user message.
type ContentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Usage reports token consumption from a result message.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// Message is one provider-native message from the agent stream. Messages are
// immutable once emitted; ordering is the emission order of the stream.
type Message struct {
	Type      string
	Subtype   string
	SessionID string
	Content   []ContentBlock
	EventType string // stream_event inner type (content_block_delta, ...)
	Delta     string // text delta carried by a stream_event
	Result    string
	IsError   bool
	Usage     *Usage
	Raw       json.RawMessage
}

// ParseMessage decodes one stream-json line.
func ParseMessage(line []byte) (*Message, error) {
	var env struct {
		Type      string `json:"type"`
		Subtype   string `json:"subtype"`
		SessionID string `json:"session_id"`
		Message   struct {
			Content []ContentBlock `json:"content"`
		} `json:"message"`
		Result  string `json:"result"`
		IsError bool   `json:"is_error"`
		Usage   *Usage `json:"usage"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("parse agent message: %w", err)
	}

	msg := &Message{
		Type:      env.Type,
		Subtype:   env.Subtype,
		SessionID: env.SessionID,
		Content:   env.Message.Content,
		Result:    env.Result,
		IsError:   env.IsError,
		Usage:     env.Usage,
		Raw:       json.RawMessage(append([]byte(nil), line...)),
	}

	// Partial-message events nest the interesting bits one level down.
	if msg.Type == MessageStream {
		msg.EventType = gjson.GetBytes(line, "event.type").String()
		msg.Delta = gjson.GetBytes(line, "event.delta.text").String()
	}
	return msg, nil
}

// AssistantText concatenates the text blocks of an assistant message.
func (m *Message) AssistantText() string {
	if m.Type != MessageAssistant {
		return ""
	}
	var out string
	for _, block := range m.Content {
		if block.Type == BlockText {
			out += block.Text
		}
	}
	return out
}

// ToolUses returns the tool_use blocks of an assistant message.
func (m *Message) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, block := range m.Content {
		if block.Type == BlockToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}
