package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Strategy is one wire protocol for asking a model to generate text.
type Strategy interface {
	Name() string
	Path() string
	Request(model, system, user string) any
	// Parse extracts the generated text. Blank text is malformed.
	Parse(body []byte) (string, error)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messages(system, user string) []message {
	return []message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// DefaultStrategies is the order tried against an Ollama-compatible server.
func DefaultStrategies() []Strategy {
	return []Strategy{OllamaChat{}, OllamaGenerate{}, OpenAIChat{}}
}

type OllamaChat struct{}

func (OllamaChat) Name() string { return "ollama-chat" }
func (OllamaChat) Path() string { return "/api/chat" }

func (OllamaChat) Request(model, system, user string) any {
	return struct {
		Model    string    `json:"model"`
		Stream   bool      `json:"stream"`
		Messages []message `json:"messages"`
	}{model, false, messages(system, user)}
}

func (OllamaChat) Parse(body []byte) (string, error) {
	var out struct {
		Message *message `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Message == nil {
		return "", fmt.Errorf("%w: no message in /api/chat response", ErrMalformedResponse)
	}
	return nonBlank(out.Message.Content)
}

type OllamaGenerate struct{}

func (OllamaGenerate) Name() string { return "ollama-generate" }
func (OllamaGenerate) Path() string { return "/api/generate" }

func (OllamaGenerate) Request(model, system, user string) any {
	return struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
		Stream bool   `json:"stream"`
	}{model, strings.TrimSpace(system + "\n\n" + user), false}
}

func (OllamaGenerate) Parse(body []byte) (string, error) {
	var out struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Response == nil {
		return "", fmt.Errorf("%w: no response in /api/generate response", ErrMalformedResponse)
	}
	return nonBlank(*out.Response)
}

// OpenAIChat talks to an OpenAI-compatible chat completions endpoint.
type OpenAIChat struct{}

func (OpenAIChat) Name() string { return "openai-chat" }
func (OpenAIChat) Path() string { return "/v1/chat/completions" }

func (OpenAIChat) Request(model, system, user string) any {
	return struct {
		Model    string    `json:"model"`
		Messages []message `json:"messages"`
		Stream   bool      `json:"stream"`
	}{model, messages(system, user), false}
}

func (OpenAIChat) Parse(body []byte) (string, error) {
	var out struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in completion", ErrMalformedResponse)
	}
	return nonBlank(out.Choices[0].Message.Content)
}

func nonBlank(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty text", ErrMalformedResponse)
	}
	return s, nil
}
