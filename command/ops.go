package command

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-snapshot/snapshot"
)

// BatchItem describes one document exported to one or more formats.
type BatchItem struct {
	Ref          string   `json:"ref"`
	Kind         string   `json:"kind"`
	HTML         string   `json:"html,omitempty"`
	HTMLFile     string   `json:"html_file,omitempty"`
	RootSelector string   `json:"root_selector"`
	BaseURL      string   `json:"base_url,omitempty"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	Formats      []string `json:"formats"`
}

// BatchLoader loads batch items from a source.
type BatchLoader func(ctx context.Context) ([]BatchItem, error)

// BatchCommand wires CLI/Cron execution for batch exports.
type BatchCommand struct {
	exporter   Exporter
	loader     BatchLoader
	formats    []snapshot.FormatID
	cliConfig  gcmd.CLIConfig
	cronConfig gcmd.HandlerConfig
	limits     BatchLimits
	sleep      func(time.Duration)
}

// BatchOption customizes batch commands.
type BatchOption func(*BatchCommand)

// BatchLimits bounds batch execution throughput.
type BatchLimits struct {
	MaxExports  int
	MinInterval time.Duration
}

// WithBatchCLIConfig overrides CLI configuration.
func WithBatchCLIConfig(cfg gcmd.CLIConfig) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.cliConfig = cfg
	}
}

// WithBatchCronConfig overrides cron configuration.
func WithBatchCronConfig(cfg gcmd.HandlerConfig) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.cronConfig = cfg
	}
}

// WithBatchLimits overrides batch execution limits.
func WithBatchLimits(limits BatchLimits) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.limits = limits
	}
}

// WithBatchFormats sets the formats used for items that list none.
func WithBatchFormats(formats ...snapshot.FormatID) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.formats = append([]snapshot.FormatID(nil), formats...)
	}
}

// NewBatchExportCommand creates a batch export CLI/Cron command.
func NewBatchExportCommand(exporter Exporter, loader BatchLoader, opts ...BatchOption) *BatchCommand {
	cmd := &BatchCommand{
		exporter: exporter,
		loader:   loader,
		cliConfig: gcmd.CLIConfig{
			Path:        []string{"snapshot-batch"},
			Description: "Export documents to every listed format",
			Group:       "snapshots",
		},
		cronConfig: gcmd.HandlerConfig{Expression: "0 * * * *"},
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cmd)
		}
	}
	return cmd
}

// CronHandler executes scheduled batch exports.
func (c *BatchCommand) CronHandler() func() error {
	return func() error {
		_, err := c.run(context.Background(), "")
		return err
	}
}

// CronOptions returns cron configuration.
func (c *BatchCommand) CronOptions() gcmd.HandlerConfig {
	if c == nil {
		return gcmd.HandlerConfig{}
	}
	return c.cronConfig
}

// CLIHandler exposes the CLI handler.
func (c *BatchCommand) CLIHandler() any {
	return &batchCLI{cmd: c}
}

// CLIOptions returns CLI configuration.
func (c *BatchCommand) CLIOptions() gcmd.CLIConfig {
	if c == nil {
		return gcmd.CLIConfig{}
	}
	return c.cliConfig
}

// run exports each item sequentially and stops at the first failure. Jobs
// for the same document never overlap, so the in-flight guard never trips.
func (c *BatchCommand) run(ctx context.Context, from string) (int, error) {
	if c == nil {
		return 0, errors.New("batch command is nil", errors.CategoryInternal).
			WithTextCode("BATCH_CMD_NIL")
	}
	if c.exporter == nil {
		return 0, errors.New("batch exporter is required", errors.CategoryValidation).
			WithTextCode("EXPORTER_REQUIRED")
	}

	items, err := c.loadItems(ctx, from)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, item := range items {
		doc, err := item.Document(filepath.Dir(from))
		if err != nil {
			return count, err
		}
		for _, req := range BuildFormatBatch(doc, c.itemFormats(item)) {
			if c.limits.MaxExports > 0 && count >= c.limits.MaxExports {
				return count, nil
			}
			if _, err := c.exporter.Export(ctx, req); err != nil {
				return count, snapshot.AsGoError(err)
			}
			count++
			if c.limits.MinInterval > 0 && c.sleep != nil {
				c.sleep(c.limits.MinInterval)
			}
		}
	}
	return count, nil
}

func (c *BatchCommand) itemFormats(item BatchItem) []snapshot.FormatID {
	if len(item.Formats) == 0 {
		return c.formats
	}
	formats := make([]snapshot.FormatID, 0, len(item.Formats))
	for _, f := range item.Formats {
		formats = append(formats, snapshot.FormatID(strings.TrimSpace(f)))
	}
	return formats
}

func (c *BatchCommand) loadItems(ctx context.Context, from string) ([]BatchItem, error) {
	if strings.TrimSpace(from) != "" {
		return loadBatchItemsFromFile(from)
	}
	if c.loader == nil {
		return nil, errors.New("batch loader not configured", errors.CategoryValidation).
			WithTextCode("LOADER_REQUIRED")
	}
	return c.loader(ctx)
}

// Document builds the visual document for the item. A relative HTMLFile is
// resolved against dir.
func (item BatchItem) Document(dir string) (snapshot.VisualDocument, error) {
	markup := []byte(item.HTML)
	if item.HTMLFile != "" {
		path := item.HTMLFile
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return snapshot.VisualDocument{}, errors.Wrap(err, errors.CategoryExternal, "read batch document failed").
				WithTextCode("BATCH_DOCUMENT_READ")
		}
		markup = content
	}
	if len(markup) == 0 {
		return snapshot.VisualDocument{}, errors.New("batch item has no markup", errors.CategoryValidation).
			WithTextCode("DOCUMENT_REQUIRED")
	}
	return snapshot.VisualDocument{
		Ref:          item.Ref,
		Kind:         item.Kind,
		HTML:         markup,
		RootSelector: item.RootSelector,
		BaseURL:      item.BaseURL,
		Width:        item.Width,
		Height:       item.Height,
	}, nil
}

type batchCLI struct {
	cmd  *BatchCommand
	From string `kong:"name='from',help='Path to JSON batch export items'"`
}

func (c *batchCLI) Run() error {
	if c == nil || c.cmd == nil {
		return errors.New("batch command is required", errors.CategoryInternal).
			WithTextCode("BATCH_CMD_NIL")
	}
	_, err := c.cmd.run(context.Background(), c.From)
	return err
}

func loadBatchItemsFromFile(path string) ([]BatchItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "read batch file failed").
			WithTextCode("BATCH_FILE_READ")
	}

	var items []BatchItem
	if err := json.Unmarshal(content, &items); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "batch file invalid JSON").
			WithTextCode("BATCH_FILE_INVALID")
	}
	return items, nil
}

// BuildFormatBatch returns one export request per format for doc. Empty
// format ids are skipped; no formats means every default format.
func BuildFormatBatch(doc snapshot.VisualDocument, formats []snapshot.FormatID) []snapshot.ExportRequest {
	if len(formats) == 0 {
		for _, spec := range snapshot.DefaultFormats() {
			formats = append(formats, spec.ID)
		}
	}

	requests := make([]snapshot.ExportRequest, 0, len(formats))
	for _, format := range formats {
		if strings.TrimSpace(string(format)) == "" {
			continue
		}
		requests = append(requests, snapshot.ExportRequest{
			Document: doc,
			Format:   format,
		})
	}
	return requests
}

// CLIHandler exposes pruning via CLI.
func (h *PruneArtifactsHandler) CLIHandler() any {
	return &pruneCLI{handler: h}
}

// CLIOptions describes prune CLI metadata.
func (h *PruneArtifactsHandler) CLIOptions() gcmd.CLIConfig {
	return gcmd.CLIConfig{
		Path:        []string{"snapshot-prune"},
		Description: "Remove expired snapshot files",
		Group:       "snapshots",
	}
}

type pruneCLI struct {
	handler *PruneArtifactsHandler
	Before  string `kong:"name='before',help='RFC3339 cutoff; defaults to now minus retention'"`
}

func (c *pruneCLI) Run() error {
	if c == nil || c.handler == nil {
		return errors.New("prune handler is required", errors.CategoryInternal).
			WithTextCode("PRUNE_HANDLER_REQUIRED")
	}
	msg := PruneArtifacts{}
	if strings.TrimSpace(c.Before) != "" {
		before, err := time.Parse(time.RFC3339, c.Before)
		if err != nil {
			return errors.Wrap(err, errors.CategoryValidation, "invalid cutoff timestamp").
				WithTextCode("CUTOFF_INVALID")
		}
		msg.Before = before
	}
	return c.handler.Execute(context.Background(), msg)
}
