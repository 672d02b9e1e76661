package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"gwi.com/campus-knowledge/internal/store"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIService is the OpenAI-backed LanguageModel.
type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey, model string) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey), model)
}

func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, model string) *OpenAIService {
	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("OPENAI_MODEL not set, defaulting", "model", model)
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIService{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAIService) Close() {}

func openAIMessages(system string, history []ChatTurn, prompt string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == store.RoleMachine {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

func (o *OpenAIService) StreamAnswer(ctx context.Context, req AnswerRequest, onChunk func(string) error) error {
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: openAIMessages(chatSystemInstruction, req.History, req.Prompt),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("OpenAI stream request failed: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("OpenAI stream failed: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onChunk(resp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

func (o *OpenAIService) CompleteJSON(ctx context.Context, systemInstruction, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    openAIMessages(systemInstruction, nil, prompt),
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIService) GenerateTitle(ctx context.Context, basis string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               o.model,
		Messages:            openAIMessages(titleSystemInstruction, nil, titlePrompt(basis)),
		Temperature:         0.3,
		MaxCompletionTokens: 20,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI title request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	title := cleanTitle(resp.Choices[0].Message.Content)
	if title == "" {
		return "", fmt.Errorf("LLM generated an empty title string")
	}
	return title, nil
}

var _ LanguageModel = (*OpenAIService)(nil)
