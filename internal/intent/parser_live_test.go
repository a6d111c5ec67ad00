//go:build live
// +build live

package intent

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madjor5/penny-pal/internal/types"
)

func TestParseQuery_Live(t *testing.T) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENROUTER_API_KEY not set; skipping live test")
	}

	parser := NewOpenRouterParser(log.New(os.Stderr), apiKey, "openai/gpt-4o-mini", 3)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	desc, err := parser.ParseQuery(ctx, "when did I last buy coffee beans?")
	if err != nil {
		t.Fatalf("ParseQuery failed: %v", err)
	}
	t.Logf("Parsed descriptor: %+v", desc)

	if desc.SearchType != types.SearchTypeProduct {
		t.Errorf("expected a product search, got %q", desc.SearchType)
	}
	if !desc.IsLatest {
		t.Error("expected is_latest for a 'last buy' question")
	}
	if desc.Term == "" {
		t.Error("expected a non-empty term")
	}
}

func TestParseQueryStoreVisit_Live(t *testing.T) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENROUTER_API_KEY not set; skipping live test")
	}

	parser := NewOpenRouterParser(log.New(os.Stderr), apiKey, "openai/gpt-4o-mini", 3)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	desc, err := parser.ParseQuery(ctx, "show me my trader joe's trips from the checking account")
	if err != nil {
		t.Fatalf("ParseQuery failed: %v", err)
	}
	t.Logf("Parsed descriptor: %+v", desc)

	if desc.SearchType != types.SearchTypeStore {
		t.Errorf("expected a store search, got %q", desc.SearchType)
	}
	if desc.Account == "" {
		t.Error("expected the account hint extracted")
	}
}
