package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/madjor5/penny-pal/internal/commands"
	"github.com/madjor5/penny-pal/internal/db"
	"github.com/madjor5/penny-pal/internal/importer"
)

type ImportCLI struct {
	commands.CommonConfig
	commands.EmbeddingConfig
	Import   ImportCmd   `cmd:"" help:"Import a JSONL receipts export into the database."`
	Backfill BackfillCmd `cmd:"" help:"Generate embeddings for rows that are missing them."`
}

type ImportCmd struct {
	File        string `arg:"" help:"Path to the JSONL receipts export"`
	Concurrency int    `help:"Number of concurrent operations to process" default:"5"`
	NoProgress  bool   `help:"Disable progress bar" default:"false"`
	DryRun      bool   `help:"Parse and report without writing anything" default:"false"`
	Limit       int    `help:"Limit the number of records to import (0 = no limit)" default:"0"`
	UseIndex    bool   `help:"Also add item embeddings to the vector index" default:"false"`
}

type BackfillCmd struct {
	NoProgress bool `help:"Disable progress bar" default:"false"`
	UseIndex   bool `help:"Also sync the vector index with the item table" default:"false"`
}

func (c *ImportCmd) Run(cli *ImportCLI) error {
	logger := log.New(os.Stderr)
	level, err := log.ParseLevel(cli.LogLevel)
	if err != nil {
		logger.Fatal("Invalid log level", "error", err)
	}
	logger.SetLevel(level)

	loc, err := time.LoadLocation(cli.Timezone)
	if err != nil {
		logger.Fatal("Failed to load timezone", "error", err)
	}

	database, err := db.New(cli.DataDir, logger, loc)
	if err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	records, err := importer.ParseFile(c.File)
	if err != nil {
		logger.Fatal("Failed to parse export file", "error", err, "file", c.File)
	}
	logger.Info("Parsed export file", "file", c.File, "records", len(records))

	embeddingProvider, err := commands.SetupEmbeddingProvider(ctx, cli.EmbeddingConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize embedding provider", "error", err)
	}
	defer commands.CloseEmbeddingProvider(embeddingProvider, logger)

	var opts []importer.Option
	if c.UseIndex {
		idx, err := commands.SetupVectorIndex(cli.DataDir, embeddingProvider, logger)
		if err != nil {
			logger.Fatal("Failed to open vector index", "error", err)
		}
		defer idx.Close()
		opts = append(opts, importer.WithIndex(idx))
	}

	imp := importer.New(logger, database, embeddingProvider, loc, opts...)
	stats, err := imp.Import(ctx, records, importer.Config{
		Concurrency: c.Concurrency,
		Progress:    !c.NoProgress,
		DryRun:      c.DryRun,
		Limit:       c.Limit,
	})
	if err != nil {
		logger.Fatal("Failed to import records", "error", err)
	}

	if c.DryRun {
		fmt.Printf("Dry run: would import %d transactions, %d already present\n",
			stats.Transactions, stats.Skipped)
		return nil
	}

	fmt.Printf("Imported %d transactions (%d items, %d new accounts), skipped %d already present\n",
		stats.Transactions, stats.Items, stats.Accounts, stats.Skipped)
	return nil
}

func (c *BackfillCmd) Run(cli *ImportCLI) error {
	logger := log.New(os.Stderr)
	level, err := log.ParseLevel(cli.LogLevel)
	if err != nil {
		logger.Fatal("Invalid log level", "error", err)
	}
	logger.SetLevel(level)

	loc, err := time.LoadLocation(cli.Timezone)
	if err != nil {
		logger.Fatal("Failed to load timezone", "error", err)
	}

	database, err := db.New(cli.DataDir, logger, loc)
	if err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	embeddingProvider, err := commands.SetupEmbeddingProvider(ctx, cli.EmbeddingConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize embedding provider", "error", err)
	}
	defer commands.CloseEmbeddingProvider(embeddingProvider, logger)

	var opts []importer.Option
	if c.UseIndex {
		idx, err := commands.SetupVectorIndex(cli.DataDir, embeddingProvider, logger)
		if err != nil {
			logger.Fatal("Failed to open vector index", "error", err)
		}
		defer idx.Close()
		opts = append(opts, importer.WithIndex(idx))
	}

	imp := importer.New(logger, database, embeddingProvider, loc, opts...)
	stats, err := imp.Backfill(ctx, importer.Config{
		Progress: !c.NoProgress,
	})
	if err != nil {
		logger.Fatal("Failed to backfill embeddings", "error", err)
	}

	fmt.Printf("Backfilled %d accounts, %d transactions, %d items; indexed %d items\n",
		stats.Accounts, stats.Transactions, stats.Items, stats.Indexed)
	return nil
}

func main() {
	_ = godotenv.Load()

	cli := &ImportCLI{}
	ctx := kong.Parse(cli,
		kong.Name("penny-pal-import"),
		kong.Description("Import receipt exports and maintain embeddings"),
		kong.UsageOnError(),
	)
	// Dispatch to the selected subcommand
	err := ctx.Run(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
