package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/clock/system"
	"github.com/carelane/content-pipeline/internal/id/uuid"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

// newProcessCmd creates and configures the 'process' subcommand. It runs the
// pipeline once over a fixed set of documents and exits, printing a JSON
// summary of each document's final tracking state.
func newProcessCmd() *cobra.Command {
	var htmlEntries []string

	cmd := &cobra.Command{
		Use:   "process [urls...]",
		Short: "Process a fixed batch of documents and exit",
		Long: `Runs the full pipeline once over the given URLs: fetch, change detection,
extraction, chunking, and publishing. Use --html to supply a page body from
a local file instead of fetching it, which is useful for replaying saved
pages or testing extraction offline.

The command prints a JSON summary to stdout and exits non-zero if any
document failed.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcessCommand(cmd, args, htmlEntries)
		},
	}

	cmd.Flags().StringArrayVar(&htmlEntries, "html", nil,
		"inline document as url=path; the file content is processed instead of fetching the url (repeatable)")

	return cmd
}

func runProcessCommand(cmd *cobra.Command, args, htmlEntries []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	inline, err := loadInlineDocuments(htmlEntries)
	if err != nil {
		return err
	}
	tasks, err := buildTasks(args, inline)
	if err != nil {
		return err
	}

	summary, runErr := appInstance.RunBatch(cmd.Context(), tasks)
	if cerr := appInstance.Close(cmd.Context()); cerr != nil {
		zap.L().Warn("application close failed", zap.Error(cerr))
	}
	if runErr != nil {
		return fmt.Errorf("run batch: %w", runErr)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", summary.Failed, len(tasks))
	}
	return nil
}

// inlineDoc pairs a document URL with page content loaded from disk.
type inlineDoc struct {
	url     string
	content string
}

func loadInlineDocuments(entries []string) ([]inlineDoc, error) {
	docs := make([]inlineDoc, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --html entry %q, expected url=path", entry)
		}
		normalized, err := parseDocumentURL(parts[0])
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(parts[1])
		if err != nil {
			return nil, fmt.Errorf("read html file for %s: %w", normalized, err)
		}
		docs = append(docs, inlineDoc{url: normalized, content: string(content)})
	}
	return docs, nil
}

// buildTasks assembles one task per unique URL. URLs named only by --html
// become tasks of their own; duplicates keep their first occurrence.
func buildTasks(args []string, inline []inlineDoc) ([]pipeline.Task, error) {
	idGen := uuid.New()
	clk := system.New()

	contentByURL := make(map[string]string, len(inline))
	for _, doc := range inline {
		contentByURL[doc.url] = doc.content
	}

	tasks := make([]pipeline.Task, 0, len(args)+len(inline))
	seen := make(map[string]bool, len(args)+len(inline))
	add := func(rawURL, content string) error {
		id, err := idGen.NewID()
		if err != nil {
			return fmt.Errorf("generate task id: %w", err)
		}
		tasks = append(tasks, pipeline.Task{
			ID:         id,
			URL:        rawURL,
			RawContent: content,
			Enqueued:   clk.Now(),
		})
		return nil
	}

	for _, raw := range args {
		normalized, err := parseDocumentURL(raw)
		if err != nil {
			return nil, err
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		if err := add(normalized, contentByURL[normalized]); err != nil {
			return nil, err
		}
	}
	for _, doc := range inline {
		if seen[doc.url] {
			continue
		}
		seen[doc.url] = true
		if err := add(doc.url, doc.content); err != nil {
			return nil, err
		}
	}

	if len(tasks) == 0 {
		return nil, errors.New("no documents to process; pass URLs or --html entries")
	}
	return tasks, nil
}

func parseDocumentURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("url is empty")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("url %q is not parseable", raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("url %q must be absolute http or https", raw)
	}
	return trimmed, nil
}
