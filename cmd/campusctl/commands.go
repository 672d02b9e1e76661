package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL      string
	authToken      string
	visibility     string
	publish        bool
	docTitle       string
	tokenRole      string
	tokenTTL       time.Duration
	conversationID string
	importFile     string

	rootCmd = &cobra.Command{
		Use:          "campusctl",
		Short:        "Operate a campus knowledge server",
		SilenceUsage: true,
	}

	tokenCmd = &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint a bearer token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Add a knowledge document",
	}
	ingestTextCmd = &cobra.Command{
		Use:   "text [title] [text]",
		Short: "Ingest authored text",
		Args:  cobra.ExactArgs(2),
		RunE:  runIngestText,
	}
	ingestFileCmd = &cobra.Command{
		Use:   "file [path]",
		Short: "Upload a local file (PDF, Word, plain text...)",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestFile,
	}
	ingestURLCmd = &cobra.Command{
		Use:   "url [url]",
		Short: "Import a web page or a remote document",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestURL,
	}

	importCmd = &cobra.Command{
		Use:   "import [url...]",
		Short: "Import many web pages concurrently",
		RunE:  runImport,
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CAMPUS_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("CAMPUS_TOKEN"), "bearer token")

	tokenCmd.Flags().StringVar(&tokenRole, "role", "student", "role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	for _, c := range []*cobra.Command{ingestTextCmd, ingestFileCmd, ingestURLCmd, importCmd} {
		c.Flags().StringVar(&visibility, "visibility", "onlyMe", "onlyMe or viewOnly")
		c.Flags().BoolVar(&publish, "publish", false, "publish immediately instead of saving a draft")
	}
	ingestFileCmd.Flags().StringVar(&docTitle, "title", "", "document title (defaults to the file name)")
	ingestURLCmd.Flags().StringVar(&docTitle, "title", "", "document title for remote documents")
	importCmd.Flags().StringVar(&importFile, "from", "", "file with one URL per line")

	askCmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")

	ingestCmd.AddCommand(ingestTextCmd, ingestFileCmd, ingestURLCmd)
	rootCmd.AddCommand(tokenCmd, ingestCmd, importCmd, askCmd)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
