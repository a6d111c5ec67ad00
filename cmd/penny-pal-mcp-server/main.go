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
	"github.com/madjor5/penny-pal/internal/mcp"
	"github.com/madjor5/penny-pal/internal/receipt"
	"github.com/madjor5/penny-pal/internal/router"
	"github.com/madjor5/penny-pal/internal/search"
)

type CLI struct {
	commands.CommonConfig
	commands.EmbeddingConfig

	UseIndex bool `help:"Use the vector index for candidate lookup" default:"false"`
}

func (c *CLI) Run() error {
	// the server speaks JSON-RPC on stdout, so logs must stay on stderr
	logger := log.New(os.Stderr)
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		logger.Fatal("Invalid log level", "error", err)
	}
	logger.SetLevel(level)

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logger.Fatal("Failed to load timezone", "error", err)
	}

	database, err := db.New(c.DataDir, logger, loc)
	if err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer database.Close()

	ctx := context.Background()

	embeddingProvider, err := commands.SetupEmbeddingProvider(ctx, c.EmbeddingConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize embedding provider", "error", err)
	}
	defer commands.CloseEmbeddingProvider(embeddingProvider, logger)

	var searchOpts []search.Option
	if c.UseIndex {
		idx, err := commands.SetupVectorIndex(c.DataDir, embeddingProvider, logger)
		if err != nil {
			logger.Fatal("Failed to open vector index", "error", err)
		}
		defer idx.Close()
		searchOpts = append(searchOpts, search.WithIndex(idx))
	}

	searcher := search.New(logger, database, embeddingProvider, searchOpts...)
	reconstructor := receipt.New(logger, database)
	queryRouter := router.New(logger, searcher, reconstructor)

	server := mcp.New(database, queryRouter, reconstructor, logger)
	logger.Info("Starting MCP server on stdio")
	return server.Run()
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("penny-pal-mcp-server"),
		kong.Description("Serve purchase-history search tools over MCP"),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
