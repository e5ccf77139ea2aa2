package vendorllm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Client adapts github.com/sashabaranov/go-openai's Chat Completions
// streaming API to the Vendor interface.
//
// Design note (recorded per DESIGN.md): spec §3/§4.5 describe a
// vendor-assigned opaque "thread handle", which maps most directly onto the
// OpenAI Assistants API's Threads/Runs objects. This adapter instead builds
// on Chat Completions streaming with function-calling, and treats the
// thread as a plain in-process message slice owned by aisession.Session.
// Both read the spec's "thread" the same way functionally (an ordered
// history the vendor call is re-given each round), but Chat Completions
// streaming plus incremental tool-call-delta accumulation is the
// well-documented, stable part of go-openai's surface, whereas streaming
// specifically an Assistants run is a newer, narrower corner of the same
// library. Picking the better-attested API keeps this adapter correct
// without guessing at a less certain one; the narrow Vendor interface
// means swapping the implementation later costs nothing outside this file.
type Client struct {
	raw *openai.Client
}

// NewClient builds a Client from an API key (spec §6: LLM_API_KEY).
func NewClient(apiKey string) *Client {
	return &Client{raw: openai.NewClient(apiKey)}
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func toOpenAITools(defs []ToolDef) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

// Stream implements Vendor. It issues one streamed chat completion request
// and translates the delta stream into Event values, accumulating
// tool-call-name/argument fragments by their index the same way the OpenAI
// streaming tool-calling protocol requires (deltas arrive split across
// chunks, keyed by a stable per-call index).
func (c *Client) Stream(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	sreq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   true,
	}
	if len(req.Tools) > 0 {
		sreq.Tools = toOpenAITools(req.Tools)
	}
	stream, err := c.raw.CreateChatCompletionStream(ctx, sreq)
	if err != nil {
		return nil, err
	}

	out := make(chan Event)
	go c.pump(ctx, stream, out)
	return out, nil
}

type pendingToolCall struct {
	id, name, args string
}

func (c *Client) pump(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- Event) {
	defer close(out)
	defer stream.Close()

	var text strings.Builder
	calls := map[int]*pendingToolCall{}
	var order []int

	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if ctx.Err() != nil {
			emit(Event{Kind: EventCancelled})
			return
		}
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if len(order) > 0 {
				result := make([]ToolCall, 0, len(order))
				for _, idx := range order {
					tc := calls[idx]
					result = append(result, ToolCall{ID: tc.id, Name: tc.name, Arguments: tc.args})
				}
				emit(Event{Kind: EventToolCallRequest, ToolCalls: result})
				return
			}
			emit(Event{Kind: EventFinal, Text: text.String()})
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				emit(Event{Kind: EventCancelled})
				return
			}
			emit(Event{Kind: EventFailed, Err: err})
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !emit(Event{Kind: EventChunk, Text: delta.Content}) {
				return
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			cur, ok := calls[idx]
			if !ok {
				cur = &pendingToolCall{}
				calls[idx] = cur
				order = append(order, idx)
			}
			if tc.ID != "" {
				cur.id = tc.ID
			}
			if tc.Function.Name != "" {
				cur.name += tc.Function.Name
			}
			cur.args += tc.Function.Arguments
		}
	}
}
