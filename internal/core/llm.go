package core

import (
	"context"
	"fmt"
	"strings"

	"gwi.com/campus-knowledge/internal/config"
	"gwi.com/campus-knowledge/internal/store"
)

const (
	chatSystemInstruction = "You are a helpful campus assistant. Answer questions using the provided campus knowledge documents. " +
		"If the answer is not found in the provided context, clearly state that you don't have the information. " +
		"Keep your answers concise and directly related to the user's question and provided context. " +
		"Do not make up information. If the context is insufficient, say so."

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."

	emptyAnswerContent = "I'm sorry, I couldn't generate a response at this time. Please try again."
	errorContent       = "I'm sorry, I encountered an error while processing your request."
)

// ChatTurn is one prior message passed to the model as history.
type ChatTurn struct {
	Role    store.Role
	Content string
}

type AnswerRequest struct {
	History []ChatTurn
	// Prompt is the final user turn, already combined with knowledge context.
	Prompt string
}

// AnswerGenerator streams a model answer, calling onChunk for every text
// increment. An error returned by onChunk aborts generation.
type AnswerGenerator interface {
	StreamAnswer(ctx context.Context, req AnswerRequest, onChunk func(string) error) error
}

// JSONCompleter runs a single completion constrained to a JSON object.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, systemInstruction, prompt string) (string, error)
}

type TitleGenerator interface {
	GenerateTitle(ctx context.Context, basis string) (string, error)
}

// LanguageModel is implemented by every provider backend.
type LanguageModel interface {
	AnswerGenerator
	JSONCompleter
	TitleGenerator
	Close()
}

// NewLanguageModel builds the provider selected by cfg.LLMProvider.
func NewLanguageModel(ctx context.Context, cfg *config.Config) (LanguageModel, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "gemini", "":
		return NewLLMService(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.ClassifierModel)
	case "openai":
		return NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

func titlePrompt(basis string) string {
	return fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with or is about: \"%s\".", basis)
}

func cleanTitle(title string) string {
	return strings.Trim(title, "\"'\n\r\t .")
}
