package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/madjor5/penny-pal/internal/commands"
	"github.com/madjor5/penny-pal/internal/db"
	"github.com/madjor5/penny-pal/internal/intent"
	"github.com/madjor5/penny-pal/internal/receipt"
	"github.com/madjor5/penny-pal/internal/router"
	"github.com/madjor5/penny-pal/internal/search"
	"github.com/madjor5/penny-pal/internal/trace"
	"github.com/madjor5/penny-pal/internal/types"
)

type CLI struct {
	commands.CommonConfig
	commands.EmbeddingConfig

	Ask     string `help:"Natural-language question to parse into a search, e.g. \"when did I last buy coffee?\"" xor:"query"`
	Term    string `help:"Search term to look up directly, skipping the question parser" xor:"query"`
	Type    string `help:"What the term names" default:"product" enum:"product,store"`
	Latest  bool   `help:"Only return the most recent result" default:"false"`
	Account string `help:"Account to search, by name or a fragment of it"`

	OpenRouterKey   string `help:"OpenRouter API key, needed with --ask" env:"OPENROUTER_API_KEY"`
	OpenRouterModel string `help:"OpenRouter model used to parse questions" default:"openai/gpt-4o-mini" env:"OPENROUTER_MODEL"`

	UseIndex  bool `help:"Use the vector index for candidate lookup" default:"false"`
	ShowTrace bool `help:"Print the decision trace after the results" default:"false"`
	JSON      bool `help:"Emit the raw result as JSON" default:"false"`
}

func (c *CLI) Run() error {
	logger := log.New(os.Stderr)

	// Set log level
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		logger.Fatal("Invalid log level", "error", err)
	}
	logger.SetLevel(level)

	// Load timezone
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logger.Fatal("Failed to load timezone", "error", err)
	}

	// Initialize database
	database, err := db.New(c.DataDir, logger, loc)
	if err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

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

	desc, err := c.descriptor(ctx, logger)
	if err != nil {
		return err
	}

	result, err := queryRouter.Route(ctx, desc)
	if err != nil {
		return err
	}

	if c.JSON {
		b, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Println(string(b))
		return nil
	}

	printResult(result)
	if c.ShowTrace {
		printTrace(result.Trace)
	}
	return nil
}

// descriptor builds the query descriptor, either by asking the intent parser
// to interpret a natural-language question or directly from flags
func (c *CLI) descriptor(ctx context.Context, logger *log.Logger) (types.QueryDescriptor, error) {
	if c.Ask != "" {
		if c.OpenRouterKey == "" {
			return types.QueryDescriptor{}, fmt.Errorf("--ask requires an OpenRouter API key")
		}
		parser := intent.NewOpenRouterParser(logger, c.OpenRouterKey, c.OpenRouterModel, 3)
		desc, err := parser.ParseQuery(ctx, c.Ask)
		if err != nil {
			return types.QueryDescriptor{}, fmt.Errorf("failed to parse question: %w", err)
		}
		// explicit flags win over the parser's reading
		if c.Account != "" {
			desc.Account = c.Account
		}
		if c.Latest {
			desc.IsLatest = true
		}
		return desc, nil
	}

	if c.Term == "" {
		return types.QueryDescriptor{}, fmt.Errorf("either --ask or --term is required")
	}
	return types.QueryDescriptor{
		Term:       c.Term,
		SearchType: types.SearchType(c.Type),
		IsLatest:   c.Latest,
		Account:    c.Account,
	}, nil
}

func printResult(result *router.Result) {
	switch result.Outcome {
	case router.OutcomeAmbiguousAccount:
		fmt.Printf("Which account did you mean by %q?\n\n", result.Descriptor.Account)
		for _, account := range result.AccountCandidates {
			fmt.Printf("  %s\n", account.Name)
		}
		return
	case router.OutcomeNoResults:
		fmt.Println("No purchases found")
		return
	}

	if result.Mode == router.ModeStore {
		fmt.Printf("Found %d visits:\n\n", len(result.Transactions))
		for _, tx := range result.Transactions {
			fmt.Printf("%s: %s - %s\n", tx.Date.Format("2006-01-02"), tx.Amount, tx.Merchant)
			if tx.Description != "" {
				fmt.Printf("  Description: %s\n", tx.Description)
			}
			if tx.Category != "" {
				fmt.Printf("  Category: %s\n", tx.Category)
			}
			fmt.Println()
		}
		return
	}

	fmt.Printf("Found %d receipts:\n\n", len(result.Receipts))
	for _, rec := range result.Receipts {
		printReceipt(rec)
	}
}

// printReceipt renders one receipt, marking the items the search matched on
func printReceipt(rec types.Receipt) {
	tx := rec.Transaction
	fmt.Printf("%s: %s - %s\n", tx.Date.Format("2006-01-02"), tx.Amount, tx.Merchant)
	for _, item := range rec.Items {
		marker := " "
		if item.Highlighted {
			marker = "*"
		}
		fmt.Printf("  %s %-40s %10s\n", marker, item.Description, item.Amount)
	}
	fmt.Printf("    %-40s %10s\n", "Total", rec.Total)
	fmt.Println()
}

func printTrace(tr *trace.Trace) {
	if tr == nil {
		return
	}
	fmt.Printf("Trace %s:\n", tr.ID)
	for _, event := range tr.Events {
		fmt.Printf("  %s %-8s %s\n", event.Time.Format("15:04:05.000"), event.Step, event.Detail)
	}
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("penny-pal-search"),
		kong.Description("Search your purchase history by product or store"),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
