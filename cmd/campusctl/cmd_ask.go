package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"gwi.com/campus-knowledge/internal/sse"
)

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	convID, err := ask(ctx, newAPIClient(), conversationID, strings.Join(args, " "), cmd.OutOrStdout())
	if convID != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", convID)
	}
	return err
}

// ask posts question to the conversation, creating one when conversationID is
// empty, and prints the streamed answer to out as it arrives.
func ask(ctx context.Context, c *apiClient, conversationID, question string, out io.Writer) (string, error) {
	if conversationID == "" {
		var conv struct {
			ID string `json:"id"`
		}
		if err := c.doJSON(ctx, http.MethodPost, "/api/conversations", nil, &conv); err != nil {
			return "", err
		}
		conversationID = conv.ID
	}

	var posted struct {
		StreamURL string `json:"stream_url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/messages", map[string]string{"content": question}, &posted); err != nil {
		return conversationID, err
	}

	client := sse.NewClient(c.http, c.header())
	client.Accumulator().OnChunk(func(_, chunk string) {
		fmt.Fprint(out, chunk)
	})
	snap, err := client.Ask(ctx, c.baseURL+posted.StreamURL)
	fmt.Fprintln(out)
	if err != nil {
		return conversationID, fmt.Errorf("answer %s: %w", snap.State, err)
	}
	return conversationID, nil
}
