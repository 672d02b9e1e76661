package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gwi.com/campus-knowledge/internal/auth"
	"gwi.com/campus-knowledge/internal/config"
)

type document struct {
	ID         string    `json:"id"`
	SourceType string    `json:"source_type"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Status     string    `json:"status"`
	Visibility string    `json:"visibility"`
	SourceURL  *string   `json:"source_url"`
	CreatedAt  time.Time `json:"created_at"`
}

func printDocument(w io.Writer, doc document) {
	fmt.Fprintf(w, "%s  %-12s %-7s %-8s %s (%s of text)\n",
		doc.ID, doc.SourceType, doc.Status, doc.Visibility, doc.Title, humanize.Bytes(uint64(len(doc.Text))))
}

func runToken(cmd *cobra.Command, args []string) error {
	// a missing .env is fine; the secret may come from the environment
	_ = godotenv.Load()
	config.AppConfig.JWTSecret = os.Getenv("JWT_SECRET")
	if config.AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	tok, err := auth.GenerateJWT(args[0], tokenRole, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func runIngestText(cmd *cobra.Command, args []string) error {
	var doc document
	err := newAPIClient().doJSON(cmd.Context(), http.MethodPost, "/api/documents", map[string]any{
		"source_type": "authored",
		"title":       args[0],
		"text":        args[1],
		"visibility":  visibility,
		"publish":     publish,
	}, &doc)
	if err != nil {
		return err
	}
	printDocument(cmd.OutOrStdout(), doc)
	return nil
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	var doc document
	err := newAPIClient().upload(cmd.Context(), "/api/documents/upload", args[0], map[string]string{
		"title":      docTitle,
		"visibility": visibility,
		"publish":    strconv.FormatBool(publish),
	}, &doc)
	if err != nil {
		return err
	}
	printDocument(cmd.OutOrStdout(), doc)
	return nil
}

func runIngestURL(cmd *cobra.Command, args []string) error {
	var doc document
	err := newAPIClient().doJSON(cmd.Context(), http.MethodPost, "/api/documents", map[string]any{
		"url":        args[0],
		"title":      docTitle,
		"visibility": visibility,
		"publish":    publish,
	}, &doc)
	if err != nil {
		return err
	}
	printDocument(cmd.OutOrStdout(), doc)
	return nil
}

type importResult struct {
	URL      string    `json:"url"`
	Document *document `json:"document"`
	Status   int       `json:"status"`
	Error    string    `json:"error"`
}

func runImport(cmd *cobra.Command, args []string) error {
	urls := append([]string(nil), args...)
	if importFile != "" {
		fromFile, err := readURLList(importFile)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs given")
	}

	var results []importResult
	err := newAPIClient().doJSON(cmd.Context(), http.MethodPost, "/api/documents/import", map[string]any{
		"urls":       urls,
		"visibility": visibility,
		"publish":    publish,
	}, &results)
	if err != nil {
		return err
	}

	failed := 0
	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Error != "" {
			failed++
			fmt.Fprintf(out, "FAIL %d %s: %s\n", r.Status, r.URL, r.Error)
			continue
		}
		if r.Document != nil {
			fmt.Fprint(out, "OK   ")
			printDocument(out, *r.Document)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(results))
	}
	return nil
}

func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
