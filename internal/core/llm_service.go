package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"gwi.com/campus-knowledge/internal/store"
)

const (
	defaultChatModelName       = "gemini-1.5-flash-latest"
	defaultClassifierModelName = "gemini-1.5-flash-latest"
	defaultTitleModelName      = "gemini-1.5-flash-latest"
)

// LLMService answers, classifies and titles through Gemini.
type LLMService struct {
	client          *genai.Client
	chatModel       string
	classifierModel string
}

func NewLLMService(ctx context.Context, apiKey, chatModel, classifierModel string, opts ...option.ClientOption) (*LLMService, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if chatModel == "" {
		chatModel = defaultChatModelName
	}
	if classifierModel == "" {
		classifierModel = defaultClassifierModelName
	}
	return &LLMService{client: client, chatModel: chatModel, classifierModel: classifierModel}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			slog.Error("Error closing GenAI client", "error", err)
		} else {
			slog.Info("GenAI client closed")
		}
	}
}

func geminiRole(role store.Role) string {
	if role == store.RoleMachine {
		return "model"
	}
	return "user"
}

func (s *LLMService) StreamAnswer(ctx context.Context, req AnswerRequest, onChunk func(string) error) error {
	model := s.client.GenerativeModel(s.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	chatSession := model.StartChat()
	for _, turn := range req.History {
		chatSession.History = append(chatSession.History, &genai.Content{
			Role:  geminiRole(turn.Role),
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	iter := chatSession.SendMessageStream(ctx, genai.Text(req.Prompt))
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini chat stream failed: %w", err)
		}
		for _, text := range responseTexts(resp) {
			if err := onChunk(text); err != nil {
				return err
			}
		}
	}
}

func (s *LLMService) CompleteJSON(ctx context.Context, systemInstruction, prompt string) (string, error) {
	model := s.client.GenerativeModel(s.classifierModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	temp := float32(0)
	model.Temperature = &temp
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini JSON request failed: %w", err)
	}
	text := strings.Join(responseTexts(resp), "")
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty JSON response")
	}
	return text, nil
}

func (s *LLMService) GenerateTitle(ctx context.Context, basis string) (string, error) {
	model := s.client.GenerativeModel(defaultTitleModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(titlePrompt(basis)))
	if err != nil {
		return "", fmt.Errorf("gemini title generation request failed: %w", err)
	}

	title := cleanTitle(strings.Join(responseTexts(resp), ""))
	if title == "" {
		return "", fmt.Errorf("LLM generated an empty title string")
	}
	return title, nil
}

func responseTexts(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok && txt != "" {
			out = append(out, string(txt))
		} else if !ok {
			slog.Debug("Gemini response part was not text", "type", fmt.Sprintf("%T", part))
		}
	}
	return out
}

var _ LanguageModel = (*LLMService)(nil)
