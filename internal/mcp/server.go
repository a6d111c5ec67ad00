package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/madjor5/penny-pal/internal/db"
	"github.com/madjor5/penny-pal/internal/receipt"
	"github.com/madjor5/penny-pal/internal/router"
	"github.com/madjor5/penny-pal/internal/types"
)

type Server struct {
	db       *db.DB
	router   *router.Router
	receipts *receipt.Reconstructor
	logger   *log.Logger
}

func New(db *db.DB, queryRouter *router.Router, reconstructor *receipt.Reconstructor, logger *log.Logger) *Server {
	return &Server{
		db:       db,
		router:   queryRouter,
		receipts: reconstructor,
		logger:   logger,
	}
}

func (s *Server) Run() error {
	// Create MCP server
	mcpServer := server.NewMCPServer(
		"Penny Pal",
		"1.0.0",
	)

	mcpServer.AddTool(mcp.NewTool("search_purchases",
		mcp.WithDescription("Search purchase history for a product and get back matching line items grouped into receipts"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for, e.g. \"banana chips\" or \"when did I last buy coffee\""),
		),
		mcp.WithBoolean("latest",
			mcp.Description("Only return the most recent matching purchase"),
		),
		mcp.WithString("account",
			mcp.Description("Restrict the search to one account, by name or a fragment of it"),
		),
	), s.searchPurchasesHandler)

	mcpServer.AddTool(mcp.NewTool("search_store_visits",
		mcp.WithDescription("Find transactions at stores whose name contains the given text"),
		mcp.WithString("store",
			mcp.Required(),
			mcp.Description("Store name or a fragment of it"),
		),
		mcp.WithBoolean("latest",
			mcp.Description("Only return the most recent visit, reconstructed as a receipt"),
		),
		mcp.WithString("account",
			mcp.Description("Restrict the search to one account, by name or a fragment of it"),
		),
	), s.searchStoreVisitsHandler)

	mcpServer.AddTool(mcp.NewTool("get_receipt",
		mcp.WithDescription("Reconstruct the receipt for a transaction: its line items in entry order and their total"),
		mcp.WithString("transaction_id",
			mcp.Required(),
			mcp.Description("ID of the transaction, as returned by the search tools"),
		),
	), s.getReceiptHandler)

	mcpServer.AddTool(mcp.NewTool("list_accounts",
		mcp.WithDescription("List the accounts purchases can be scoped to"),
	), s.listAccountsHandler)

	// Start the stdio server
	if err := server.ServeStdio(mcpServer); err != nil {
		return err
	}

	return nil
}

func (s *Server) searchPurchasesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, ok := request.Params.Arguments["query"].(string)
	if !ok {
		return nil, errors.New("query must be a string")
	}
	latest, err := boolArg(request.Params.Arguments, "latest")
	if err != nil {
		return nil, err
	}
	account, _ := request.Params.Arguments["account"].(string)

	result, err := s.router.Route(ctx, types.QueryDescriptor{
		Query:      query,
		Term:       query,
		SearchType: types.SearchTypeProduct,
		IsLatest:   latest,
		Account:    account,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search purchases: %w", err)
	}

	return jsonResult(result)
}

func (s *Server) searchStoreVisitsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, ok := request.Params.Arguments["store"].(string)
	if !ok {
		return nil, errors.New("store must be a string")
	}
	latest, err := boolArg(request.Params.Arguments, "latest")
	if err != nil {
		return nil, err
	}
	account, _ := request.Params.Arguments["account"].(string)

	result, err := s.router.Route(ctx, types.QueryDescriptor{
		Term:       store,
		SearchType: types.SearchTypeStore,
		IsLatest:   latest,
		Account:    account,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search store visits: %w", err)
	}

	return jsonResult(result)
}

func (s *Server) getReceiptHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := request.Params.Arguments["transaction_id"].(string)
	if !ok {
		return nil, errors.New("transaction_id must be a string")
	}

	rec, err := s.receipts.Reconstruct(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no transaction with id %q", id)), nil
		}
		return nil, fmt.Errorf("failed to reconstruct receipt: %w", err)
	}

	return jsonResult(rec)
}

func (s *Server) listAccountsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accounts, err := s.db.GetAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return jsonResult(accounts)
}

// boolArg reads an optional boolean argument, tolerating the string forms
// some clients send
func boolArg(args map[string]any, name string) (bool, error) {
	value, ok := args[name]
	if !ok {
		return false, nil
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean: %w", name, err)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%s must be a boolean", name)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
