package stage

import (
	"github.com/posthog/taskagent/internal/agent"
	"github.com/posthog/taskagent/internal/events"
)

// transform converts one provider message into zero or more canonical
// events. The switch is exhaustive over the message types the agent CLI
// emits; anything unrecognized produces nothing (its raw wrapper event is
// emitted separately).
func transform(taskID, phase string, msg *agent.Message) []events.Event {
	var out []events.Event
	emit := func(kind events.Kind, data any) {
		out = append(out, events.New(kind, taskID, phase, data))
	}

	switch msg.Type {
	case agent.MessageSystem:
		if msg.Subtype == "init" {
			emit(events.KindStatus, events.StatusData{Message: "agent session started"})
		}

	case agent.MessageStream:
		switch msg.EventType {
		case "content_block_start":
			emit(events.KindContentBlockStart, nil)
		case "content_block_stop":
			emit(events.KindContentBlockStop, nil)
		case "message_start":
			emit(events.KindMessageStart, nil)
		case "message_stop":
			emit(events.KindMessageStop, nil)
		case "content_block_delta":
			if msg.Delta != "" {
				emit(events.KindToken, events.TokenData{Text: msg.Delta})
			}
		}

	case agent.MessageAssistant:
		for _, use := range msg.ToolUses() {
			emit(events.KindToolCall, events.ToolCallData{
				ID:    use.ID,
				Name:  use.Name,
				Input: use.Input,
			})
		}

	case agent.MessageUser:
		for _, block := range msg.Content {
			if block.Type == agent.BlockToolResult {
				emit(events.KindToolResult, events.ToolResultData{
					ToolID:  block.ID,
					Content: block.Content,
				})
			}
		}

	case agent.MessageResult:
		if msg.Usage != nil {
			emit(events.KindMetric, events.MetricData{
				InputTokens:              msg.Usage.InputTokens,
				OutputTokens:             msg.Usage.OutputTokens,
				CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
				CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
			})
		}
		if msg.IsError {
			emit(events.KindError, events.ErrorData{Message: msg.Result, Fatal: true})
		}
	}

	return out
}
