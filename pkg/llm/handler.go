package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Reply is one assistant turn. EndCall is set when the model invoked the
// hangup tool; Text still carries whatever the model wanted spoken first.
type Reply struct {
	Text    string
	EndCall bool
	Reason  string
}

// HangupArgs are the arguments of the hangup tool call.
type HangupArgs struct {
	Reason string `json:"reason"`
}

// Define the function for hanging up
var hangupDefinition = openai.FunctionDefinition{
	Name:        "hangup",
	Description: "End the conversation and hang up the call. Use after saying goodbye, or when the caller asks to end the call.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"reason": {
				"type": "string",
				"description": "Reason for hanging up the call"
			}
		},
		"required": []
	}`),
}

// Handler manages one call's conversation with the model.
type Handler struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	systemMsg   string
	stateless   bool
	mutex       sync.Mutex
	logger      *logrus.Logger
	messages    []openai.ChatCompletionMessage
}

// NewHandler creates a handler with a fresh conversation. When stateless is
// set, earlier turns are not replayed to the model.
func NewHandler(cfg *Config, systemPrompt string, logger *logrus.Logger) *Handler {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	client := openai.NewClientWithConfig(clientCfg)

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
	}

	return &Handler{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		systemMsg:   systemPrompt,
		stateless:   cfg.Stateless,
		logger:      logger,
		messages:    messages,
	}
}

// Respond sends one user turn and collects the streamed reply. Tool calls for
// hangup are folded into the Reply rather than executed here; the session
// owns call teardown.
func (h *Handler) Respond(ctx context.Context, userText string) (Reply, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.messages = append(h.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	request := openai.ChatCompletionRequest{
		Model:       h.model,
		Messages:    h.requestMessages(),
		Temperature: h.temperature,
		MaxTokens:   h.maxTokens,
		Stream:      true,
		Tools: []openai.Tool{
			{
				Type:     openai.ToolTypeFunction,
				Function: &hangupDefinition,
			},
		},
	}

	stream, err := h.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		h.rollbackUserTurn()
		return Reply{}, fmt.Errorf("create chat completion stream: %w", err)
	}
	defer stream.Close()

	var reply Reply
	var text strings.Builder
	var toolArgs strings.Builder

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			h.rollbackUserTurn()
			return Reply{}, fmt.Errorf("receive from stream: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		for _, toolCall := range choice.Delta.ToolCalls {
			if toolCall.Function.Name == "hangup" {
				reply.EndCall = true
			}
			if reply.EndCall {
				toolArgs.WriteString(toolCall.Function.Arguments)
			}
		}

		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
		}

		if choice.FinishReason != "" {
			h.logger.WithField("finishReason", choice.FinishReason).Debug("LLM stream finished")
		}
	}

	reply.Text = strings.TrimSpace(text.String())

	if reply.EndCall {
		var args HangupArgs
		if err := json.Unmarshal([]byte(toolArgs.String()), &args); err == nil {
			reply.Reason = args.Reason
		}
	}

	h.messages = append(h.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply.Text,
	})

	h.logger.WithFields(logrus.Fields{
		"chars":   len(reply.Text),
		"endCall": reply.EndCall,
		"reason":  reply.Reason,
	}).Info("LLM turn completed")

	return reply, nil
}

// requestMessages returns the message window to send. Stateless mode sends
// only the system prompt and the latest user turn.
func (h *Handler) requestMessages() []openai.ChatCompletionMessage {
	if !h.stateless || len(h.messages) < 2 {
		return h.messages
	}
	return []openai.ChatCompletionMessage{
		h.messages[0],
		h.messages[len(h.messages)-1],
	}
}

// rollbackUserTurn removes the last user message after a failed request so a
// retry does not duplicate it.
func (h *Handler) rollbackUserTurn() {
	if len(h.messages) > 1 && h.messages[len(h.messages)-1].Role == openai.ChatMessageRoleUser {
		h.messages = h.messages[:len(h.messages)-1]
	}
}

// Reset clears the conversation history but keeps the system prompt
func (h *Handler) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.messages = []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: h.systemMsg,
		},
	}
}

// Messages returns a copy of the current conversation.
func (h *Handler) Messages() []openai.ChatCompletionMessage {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	messages := make([]openai.ChatCompletionMessage, len(h.messages))
	copy(messages, h.messages)
	return messages
}

// Transcript renders the conversation without the system prompt, one line per
// turn, for call logs and alerts.
func (h *Handler) Transcript() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var b strings.Builder
	for _, m := range h.messages {
		switch m.Role {
		case openai.ChatMessageRoleUser:
			fmt.Fprintf(&b, "Caller: %s\n", m.Content)
		case openai.ChatMessageRoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// SetSystemPrompt updates the system prompt
func (h *Handler) SetSystemPrompt(prompt string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.systemMsg = prompt
	if len(h.messages) > 0 && h.messages[0].Role == openai.ChatMessageRoleSystem {
		h.messages[0].Content = prompt
	}
}
