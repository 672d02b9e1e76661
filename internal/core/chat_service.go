package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gwi.com/campus-knowledge/internal/metrics"
	"gwi.com/campus-knowledge/internal/store"
	"gwi.com/campus-knowledge/internal/utils"
)

const (
	historySize       = 6
	backgroundTimeout = 30 * time.Second
)

// AnswerSink receives the frames of one answer stream.
type AnswerSink interface {
	WriteStart() error
	WriteChunk(text string) error
	WriteEnd() error
	WriteError(msg string) error
}

type ChatService struct {
	dbStore    *store.SQLiteStore
	contextSvc *ContextService
	generator  AnswerGenerator
	titles     TitleGenerator
	classifier *Classifier
	streams    *streamRegistry
	background sync.WaitGroup
}

func NewChatService(db *store.SQLiteStore, contextSvc *ContextService, generator AnswerGenerator, titles TitleGenerator, classifier *Classifier) *ChatService {
	return &ChatService{
		dbStore:    db,
		contextSvc: contextSvc,
		generator:  generator,
		titles:     titles,
		classifier: classifier,
		streams:    newStreamRegistry(),
	}
}

// Wait blocks until background classification and titling tasks finish.
func (s *ChatService) Wait() {
	s.background.Wait()
}

func (s *ChatService) runBackground(fn func(ctx context.Context)) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *ChatService) CreateConversation(ctx context.Context, ownerID string) (*store.Conversation, error) {
	conv, err := s.dbStore.CreateConversation(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *ChatService) ListConversations(ctx context.Context, ownerID string) ([]store.Conversation, error) {
	return s.dbStore.ListConversations(ctx, ownerID)
}

// GetConversation returns the conversation and its messages in order.
func (s *ChatService) GetConversation(ctx context.Context, conversationID, ownerID string) (*store.Conversation, []store.Message, error) {
	conv, err := s.ownedConversation(ctx, conversationID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.dbStore.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for conversation: %w", err)
	}
	return conv, messages, nil
}

func (s *ChatService) ownedConversation(ctx context.Context, conversationID, ownerID string) (*store.Conversation, error) {
	conv, err := s.dbStore.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	return conv, nil
}

// PostMessage stores a user message. Any generation still running in the
// conversation is cancelled, and earlier user messages left without a reply
// receive the error-content reply first.
func (s *ChatService) PostMessage(ctx context.Context, conversationID, ownerID, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message content is empty: %w", ErrInvalidInput)
	}
	conv, err := s.ownedConversation(ctx, conversationID, ownerID)
	if err != nil {
		return nil, err
	}

	if s.streams.cancel(conversationID) {
		slog.Info("Cancelled in-flight answer for new message", "conversation", conversationID)
	}
	if err := s.resolveUnanswered(ctx, conversationID); err != nil {
		return nil, err
	}

	userMsg, err := s.dbStore.AppendMessage(ctx, conversationID, store.RoleUser, content, "")
	if err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	s.runBackground(func(ctx context.Context) {
		result := s.classifier.ClassifyDetailed(ctx, content)
		if err := s.dbStore.SetMessageCategory(ctx, userMsg.ID, string(result.Category)); err != nil {
			slog.Error("Failed to save message category", "message", userMsg.ID, "error", err)
		}
	})

	if conv.Title == nil || *conv.Title == "" {
		s.runBackground(func(ctx context.Context) {
			s.generateAndSaveTitle(ctx, conversationID, content)
		})
	}

	return userMsg, nil
}

func (s *ChatService) resolveUnanswered(ctx context.Context, conversationID string) error {
	pending, err := s.dbStore.UnansweredUserMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to check unanswered messages: %w", err)
	}
	for _, msg := range pending {
		_, err := s.dbStore.AppendMessage(ctx, conversationID, store.RoleMachine, errorContent, msg.ID)
		if err != nil && !errors.Is(err, store.ErrAlreadyReplied) {
			return fmt.Errorf("failed to close unanswered message %s: %w", msg.ID, err)
		}
	}
	return nil
}

func (s *ChatService) generateAndSaveTitle(ctx context.Context, conversationID, basisContent string) {
	slog.Debug("Attempting to generate title", "conversation", conversationID)
	title, err := s.titles.GenerateTitle(ctx, basisContent)
	if err != nil {
		slog.Warn("Failed to generate title, deriving from message", "conversation", conversationID, "error", err)
		title = utils.TitleFromText(basisContent, 60)
	}
	if title == "" {
		return
	}
	if err := s.dbStore.SetConversationTitle(ctx, conversationID, title); err != nil {
		slog.Error("Failed to save generated title", "conversation", conversationID, "title", title, "error", err)
		return
	}
	slog.Info("Saved conversation title", "conversation", conversationID, "title", title)
}

// StreamAnswer generates the reply to messageID and writes it to sink. Exactly
// one machine message is persisted: the full answer, or the error-content
// message when generation fails, is cancelled or is superseded.
func (s *ChatService) StreamAnswer(ctx context.Context, conversationID, messageID, ownerID string, sink AnswerSink) error {
	if _, err := s.ownedConversation(ctx, conversationID, ownerID); err != nil {
		return err
	}
	msg, err := s.dbStore.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID || msg.Role != store.RoleUser {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	reply, err := s.dbStore.ReplyFor(ctx, messageID)
	if err != nil {
		return err
	}
	if reply != nil {
		return fmt.Errorf("message %s: %w", messageID, ErrAlreadyAnswered)
	}

	genCtx, release := s.streams.begin(ctx, conversationID)
	defer release()
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	history, err := s.history(ctx, conversationID, messageID)
	if err != nil {
		slog.Warn("Proceeding without history", "conversation", conversationID, "error", err)
	}
	knowledge, err := s.contextSvc.GetRelevantContext(genCtx, ownerID, msg.Content)
	if err != nil {
		slog.Warn("Failed to get relevant context, proceeding without it", "error", err)
		knowledge = ""
	}

	var answer strings.Builder
	genErr := sink.WriteStart()
	if genErr == nil {
		genErr = s.generator.StreamAnswer(genCtx, AnswerRequest{History: history, Prompt: ComposePrompt(knowledge, msg.Content)}, func(chunk string) error {
			answer.WriteString(chunk)
			return sink.WriteChunk(chunk)
		})
	}
	if genErr == nil && strings.TrimSpace(answer.String()) == "" {
		answer.Reset()
		answer.WriteString(emptyAnswerContent)
		genErr = sink.WriteChunk(emptyAnswerContent)
	}

	persistCtx := context.WithoutCancel(ctx)
	if genErr != nil {
		outcome, cause := failureOutcome(genCtx)
		metrics.StreamsTotal.WithLabelValues(outcome).Inc()
		slog.Warn("Answer stream failed", "conversation", conversationID, "message", messageID, "outcome", outcome, "error", genErr)
		if _, err := s.dbStore.AppendMessage(persistCtx, conversationID, store.RoleMachine, errorContent, messageID); err != nil && !errors.Is(err, store.ErrAlreadyReplied) {
			slog.Error("Failed to store error reply", "message", messageID, "error", err)
		}
		sink.WriteError(cause)
		return fmt.Errorf("answer stream %s: %w", outcome, genErr)
	}

	if _, err := s.dbStore.AppendMessage(persistCtx, conversationID, store.RoleMachine, answer.String(), messageID); err != nil {
		if errors.Is(err, store.ErrAlreadyReplied) {
			metrics.StreamsTotal.WithLabelValues("superseded").Inc()
			sink.WriteError(ErrSuperseded.Error())
			return ErrSuperseded
		}
		metrics.StreamsTotal.WithLabelValues("error").Inc()
		sink.WriteError("failed to store answer")
		return fmt.Errorf("failed to store model message: %w", err)
	}

	metrics.StreamsTotal.WithLabelValues("complete").Inc()
	if err := sink.WriteEnd(); err != nil {
		slog.Debug("Client left before end of stream", "message", messageID, "error", err)
	}
	return nil
}

func failureOutcome(genCtx context.Context) (outcome string, clientMessage string) {
	switch {
	case errors.Is(context.Cause(genCtx), ErrSuperseded):
		return "superseded", ErrSuperseded.Error()
	case genCtx.Err() != nil:
		return "cancelled", "request cancelled"
	default:
		return "error", "failed to generate answer"
	}
}

// history returns the turns preceding messageID, oldest first.
func (s *ChatService) history(ctx context.Context, conversationID, messageID string) ([]ChatTurn, error) {
	messages, err := s.dbStore.LastMessages(ctx, conversationID, historySize+1)
	if err != nil {
		return nil, err
	}
	turns := make([]ChatTurn, 0, len(messages))
	for _, m := range messages {
		if m.ID == messageID {
			break
		}
		turns = append(turns, ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}

// SetMessageFeedback records whether a machine answer helped. reason is kept
// only for unhelpful answers.
func (s *ChatService) SetMessageFeedback(ctx context.Context, ownerID, messageID string, isHelpful bool, reason *string) error {
	msg, err := s.dbStore.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := s.ownedConversation(ctx, msg.ConversationID, ownerID); err != nil {
		return err
	}
	if msg.Role != store.RoleMachine {
		return fmt.Errorf("feedback is only accepted for answers: %w", ErrInvalidInput)
	}
	return s.dbStore.SetMessageFeedback(ctx, messageID, isHelpful, reason)
}

func (s *ChatService) ClassifyQuery(ctx context.Context, query string) ClassificationResult {
	return s.classifier.ClassifyDetailed(ctx, query)
}
