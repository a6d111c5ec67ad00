package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/exp/slices"

	"github.com/madjor5/penny-pal/internal/types"
)

const searchToolName = "submit_search"

const systemPrompt = "You are a purchase-history search planner. You must call the " +
	"submit_search function to turn the user's question into a structured search. " +
	"DO NOT explain your reasoning or add comments. ONLY call the function with " +
	"properly formatted JSON arguments."

const promptTemplate = `Extract the purchase-history search from the following question.

Question: %s

Call the submit_search function with these fields:

RULES:
1. term: the product or store being asked about
   - Strip filler words, keep the actual thing ("fancy oat milk" not "some of that fancy oat milk")
   - Keep brand names as the user wrote them
2. search_type classification:
   - "product" when the question is about an item the user bought (line items on receipts)
   - "store" when the question is about visits to or spending at a merchant
3. is_latest: true only when the question asks about the most recent occurrence
   ("when did I last...", "what was the latest...")
4. account: the account the user names, if any ("my savings", "the joint card").
   Leave it out when no account is mentioned.

EXAMPLES:

Question: when did I last buy coffee beans?
{"term": "coffee beans", "search_type": "product", "is_latest": true}

Question: show my trader joe's trips from checking
{"term": "trader joe's", "search_type": "store", "account": "checking"}

Question: have I ever bought oat milk
{"term": "oat milk", "search_type": "product"}

Question: what did I get on my last costco run
{"term": "costco", "search_type": "store", "is_latest": true}`

// Parser turns natural-language questions about purchases into query
// descriptors by asking an LLM to call a single tool whose arguments are the
// descriptor fields. Invalid arguments are fed back to the model for another
// attempt rather than failing outright.
type Parser struct {
	logger   *log.Logger
	client   *openai.Client
	model    string
	maxLoops int
}

// NewParser creates a Parser using the given OpenAI-compatible client
func NewParser(logger *log.Logger, client *openai.Client, model string, maxLoops int) *Parser {
	return &Parser{
		logger:   logger,
		client:   client,
		model:    model,
		maxLoops: maxLoops,
	}
}

// NewOpenRouterParser creates a Parser talking to OpenRouter's
// OpenAI-compatible API
func NewOpenRouterParser(logger *log.Logger, apiKey, model string, maxLoops int) *Parser {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = "https://openrouter.ai/api/v1"
	return NewParser(logger, openai.NewClientWithConfig(cfg), model, maxLoops)
}

// searchToolArgs is the wire shape of a submit_search tool call
type searchToolArgs struct {
	Term       string `json:"term"`
	SearchType string `json:"search_type"`
	IsLatest   bool   `json:"is_latest"`
	Account    string `json:"account"`
}

func searchTool() openai.Tool {
	f := openai.FunctionDefinition{
		Name:        searchToolName,
		Description: "Submit the structured purchase-history search extracted from the user's question",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"term": map[string]any{
					"type":        "string",
					"description": "The product or store the user is asking about",
				},
				"search_type": map[string]any{
					"type":        "string",
					"enum":        []string{string(types.SearchTypeProduct), string(types.SearchTypeStore)},
					"description": "Whether to search purchased items or store visits",
				},
				"is_latest": map[string]any{
					"type":        "boolean",
					"description": "True when the question asks only about the most recent occurrence",
				},
				"account": map[string]any{
					"type":        "string",
					"description": "The account the user named, if any",
				},
			},
			"required": []string{"term", "search_type"},
		},
	}
	return openai.Tool{
		Type:     openai.ToolTypeFunction,
		Function: &f,
	}
}

// descriptorFromArgs checks the tool arguments against the closed set of
// search types and builds the descriptor, carrying the raw question along for
// downstream phrase matching
func descriptorFromArgs(question string, args searchToolArgs) (types.QueryDescriptor, error) {
	desc := types.QueryDescriptor{
		Query:    question,
		Term:     strings.TrimSpace(args.Term),
		IsLatest: args.IsLatest,
		Account:  strings.TrimSpace(args.Account),
	}

	switch args.SearchType {
	case string(types.SearchTypeProduct):
		desc.SearchType = types.SearchTypeProduct
	case string(types.SearchTypeStore):
		desc.SearchType = types.SearchTypeStore
	default:
		return types.QueryDescriptor{}, fmt.Errorf("invalid search_type %q. Please use only allowed values", args.SearchType)
	}

	if desc.Term == "" {
		return types.QueryDescriptor{}, fmt.Errorf("term must not be empty")
	}
	return desc, nil
}

// ParseQuery asks the model to translate question into a query descriptor
func (p *Parser) ParseQuery(ctx context.Context, question string) (types.QueryDescriptor, error) {
	startTime := time.Now()
	p.logger.Debug("Parsing question", "question", question, "model", p.model)

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf(promptTemplate, question),
		},
	}

	validate := func(toolCall openai.ToolCall) (types.QueryDescriptor, error) {
		if toolCall.Function.Name != searchToolName {
			return types.QueryDescriptor{}, fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
		}
		var args searchToolArgs
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
			p.logger.Warn("Invalid JSON in tool call arguments",
				"error", err,
				"arguments", toolCall.Function.Arguments)
			return types.QueryDescriptor{}, fmt.Errorf("invalid JSON in tool call arguments: %w", err)
		}
		return descriptorFromArgs(question, args)
	}

	desc, err := p.runToolLoop(ctx, messages, searchTool(), validate)
	if err != nil {
		return types.QueryDescriptor{}, err
	}

	p.logger.Debug("Parsed question",
		"term", desc.Term,
		"search_type", desc.SearchType,
		"is_latest", desc.IsLatest,
		"account", desc.Account,
		"duration", time.Since(startTime))
	return desc, nil
}

// runToolLoop requests a tool call and retries with the validation error
// appended as a correction whenever the arguments come back invalid
func (p *Parser) runToolLoop(
	ctx context.Context,
	initialMessages []openai.ChatCompletionMessage,
	tool openai.Tool,
	validate func(openai.ToolCall) (types.QueryDescriptor, error),
) (types.QueryDescriptor, error) {
	var (
		lastArguments string
		lastError     error
		chatMessages  = slices.Clone(initialMessages)
	)

	for loop := 1; loop <= p.maxLoops; loop++ {
		p.logger.Debug("Running parse loop", "loop", loop)

		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:      p.model,
			Messages:   chatMessages,
			Tools:      []openai.Tool{tool},
			ToolChoice: "auto",
		})
		if err != nil {
			lastError = err
			continue
		}

		if len(resp.Choices) == 0 {
			lastError = fmt.Errorf("no choices in response")
			continue
		}

		message := resp.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			lastError = fmt.Errorf("no tool calls in response")
			continue
		}

		toolCall := message.ToolCalls[0]
		lastArguments = toolCall.Function.Arguments

		desc, err := validate(toolCall)
		if err == nil {
			return desc, nil
		}
		p.logger.Debug("Tool call failed validation", "arguments", lastArguments, "error", err)
		lastError = err

		msg := ""
		if lastArguments != "" {
			msg += "Previous tool call arguments:\n" + lastArguments + "\n"
		}
		msg += "Error: " + lastError.Error() + "\n"
		msg += "Please correct your response using only allowed values."
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: msg,
		})
	}

	return types.QueryDescriptor{}, fmt.Errorf("failed to get a valid search after %d attempts: %w", p.maxLoops, lastError)
}
