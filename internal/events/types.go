// Package events defines the canonical execution-event union and the
// in-memory fan-out used by live consumers. Events are immutable once
// emitted; within a phase their order is the agent stream's emission order.
package events

import (
	"encoding/json"
	"time"
)

// Kind discriminates the event union. Every event carries exactly one
// payload type; consumers switch on Kind exhaustively.
type Kind string

const (
	// KindToken is a streaming text delta. High frequency; batched by the
	// progress reporter.
	KindToken Kind = "token"
	// KindContentBlockStart marks the start of a content block.
	KindContentBlockStart Kind = "content_block_start"
	// KindContentBlockStop marks the end of a content block.
	KindContentBlockStop Kind = "content_block_stop"
	// KindMessageStart marks the start of an assistant message.
	KindMessageStart Kind = "message_start"
	// KindMessageStop marks the end of an assistant message.
	KindMessageStop Kind = "message_stop"
	// KindToolCall is an agent tool invocation.
	KindToolCall Kind = "tool_call"
	// KindToolResult is the result returned for a tool invocation.
	KindToolResult Kind = "tool_result"
	// KindStatus is an informational status line (run_started,
	// branch_created, phase transitions).
	KindStatus Kind = "status"
	// KindMetric reports token usage and cost.
	KindMetric Kind = "metric"
	// KindArtifact reports an artifact write.
	KindArtifact Kind = "artifact"
	// KindTodo carries a recomputed todo checklist.
	KindTodo Kind = "todo"
	// KindError is a non-fatal error surfaced to observers.
	KindError Kind = "error"
	// KindDone marks the end of a phase's stream.
	KindDone Kind = "done"
	// KindRaw wraps an unmodified provider message for debugging.
	KindRaw Kind = "raw"
)

// Event is one execution event. Data holds the payload type matching Kind.
type Event struct {
	Kind   Kind      `json:"kind"`
	TaskID string    `json:"task_id"`
	Phase  string    `json:"phase,omitempty"`
	Time   time.Time `json:"time"`
	Data   any       `json:"data,omitempty"`
}

// New creates an event stamped with the current time.
func New(kind Kind, taskID, phase string, data any) Event {
	return Event{Kind: kind, TaskID: taskID, Phase: phase, Time: time.Now(), Data: data}
}

// TokenData is a streaming text fragment.
type TokenData struct {
	Text string `json:"text"`
}

// ToolCallData describes a tool invocation.
type ToolCallData struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResultData describes a tool result.
type ToolResultData struct {
	ToolID  string          `json:"tool_id"`
	Content json.RawMessage `json:"content,omitempty"`
}

// StatusData is a human-readable status line.
type StatusData struct {
	Message string `json:"message"`
}

// MetricData reports usage for a phase execution.
type MetricData struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// ArtifactData reports a persisted artifact.
type ArtifactData struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

// ErrorData is an error surfaced through the event stream.
type ErrorData struct {
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// DoneData marks stream completion for a phase.
type DoneData struct {
	Status string `json:"status"`
}

// RawData wraps a provider-native message verbatim.
type RawData struct {
	Message json.RawMessage `json:"message"`
}
