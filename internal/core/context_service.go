package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"gwi.com/campus-knowledge/internal/store"
	"gwi.com/campus-knowledge/internal/utils"
)

const defaultContextCharBudget = 12000

// ContextService selects knowledge documents for a question and packs their
// text into the prompt within a character budget.
type ContextService struct {
	dbStore    *store.SQLiteStore
	charBudget int
}

func NewContextService(db *store.SQLiteStore, charBudget int) *ContextService {
	if charBudget <= 0 {
		charBudget = defaultContextCharBudget
	}
	return &ContextService{dbStore: db, charBudget: charBudget}
}

type scoredDocument struct {
	doc   store.Document
	score int
}

// GetRelevantContext returns the synced documents visible to viewerID,
// best lexical match first, truncated to the budget.
func (s *ContextService) GetRelevantContext(ctx context.Context, viewerID, query string) (string, error) {
	docs, err := s.dbStore.ListVisibleDocuments(ctx, viewerID, true)
	if err != nil {
		return "", fmt.Errorf("failed to load knowledge documents: %w", err)
	}
	if len(docs) == 0 {
		slog.Debug("No knowledge documents available for context", "viewer", viewerID)
		return "", nil
	}

	terms := queryTerms(query)
	scored := make([]scoredDocument, 0, len(docs))
	for _, doc := range docs {
		scored = append(scored, scoredDocument{doc: doc, score: overlap(terms, doc.Title+"\n"+doc.Text)})
	}
	// docs arrive newest first; a stable sort keeps that order among equal scores
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	var contextBuilder strings.Builder
	remaining := s.charBudget
	included := 0
	for _, sd := range scored {
		if remaining <= 0 {
			break
		}
		section := fmt.Sprintf("### %s\n%s", sd.doc.Title, sd.doc.Text)
		if len(section) > remaining {
			section = utils.Truncate(section, remaining)
		}
		if contextBuilder.Len() > 0 {
			contextBuilder.WriteString("\n\n")
		}
		contextBuilder.WriteString(section)
		remaining -= len(section)
		included++
	}

	slog.Debug("Assembled knowledge context", "documents", included, "chars", contextBuilder.Len())
	return contextBuilder.String(), nil
}

// ComposePrompt combines knowledge context with the user's question into the
// final user turn.
func ComposePrompt(knowledge, question string) string {
	if knowledge != "" {
		return fmt.Sprintf("Based on our previous conversation and the following potentially relevant campus knowledge documents:\n\n--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\nNow, please answer my question: %s", knowledge, question)
	}
	return fmt.Sprintf("Based on our previous conversation (if any), and noting that I couldn't find specific campus documents for your current question, please answer: %s", question)
}

func queryTerms(query string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range tokenize(query) {
		if len(w) > 2 {
			terms[w] = true
		}
	}
	return terms
}

func overlap(terms map[string]bool, text string) int {
	if len(terms) == 0 {
		return 0
	}
	seen := make(map[string]bool)
	for _, w := range tokenize(text) {
		if terms[w] {
			seen[w] = true
		}
	}
	return len(seen)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
