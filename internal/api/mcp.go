package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Bharath-code/deckslayer/internal/storage"
)

// MCPLedger is the credit surface exposed to operators.
type MCPLedger interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	Credit(ctx context.Context, userID string, amount int, entryType, reason string) error
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Ledger  MCPLedger
	Records Records
}

// TrendsURI names the market trends resource.
const TrendsURI = "deckslayer://trends"

// NewMCPServer creates an MCP server with the operator tools and resources
// registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"deckslayer",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("deckslayer operator tools: inspect and grant credits, review recent analyses, read market trends."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("credit_balance",
			mcp.WithDescription("Return a user's current credit balance."),
			mcp.WithString("user_id", mcp.Description("User id"), mcp.Required()),
		),
		mcpCreditBalance(deps),
	)

	s.AddTool(
		mcp.NewTool("grant_credits",
			mcp.WithDescription("Add credits to a user's ledger as a grant."),
			mcp.WithString("user_id", mcp.Description("User id"), mcp.Required()),
			mcp.WithNumber("amount", mcp.Description("Number of credits to grant (positive)"), mcp.Required()),
			mcp.WithString("reason", mcp.Description("Ledger reason (default \"Operator grant\")")),
		),
		mcpGrantCredits(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_analyses",
			mcp.WithDescription("List a user's most recent deck analyses."),
			mcp.WithString("user_id", mcp.Description("User id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpRecentAnalyses(deps),
	)

	s.AddTool(
		mcp.NewTool("market_trends",
			mcp.WithDescription("Aggregate market insight stats: per-sector counts and average fundability, top narrative tags."),
			mcp.WithNumber("tags", mcp.Description("Number of narrative tags to return (default 20)")),
		),
		mcpMarketTrends(deps),
	)

	s.AddResource(
		mcp.NewResource(
			TrendsURI,
			"Market Trends",
			mcp.WithResourceDescription("Sector and narrative-tag statistics across all analysed decks"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTrends(deps),
	)

	return s
}

func mcpCreditBalance(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		bal, err := deps.Ledger.GetBalance(ctx, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("reading balance: %v", err)), nil
		}
		return mcpJSON(map[string]any{"user_id": userID, "balance": bal})
	}
}

func mcpGrantCredits(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		amount := req.GetInt("amount", 0)
		if amount <= 0 {
			return mcpError("amount must be a positive integer"), nil
		}
		reason := req.GetString("reason", "Operator grant")

		if err := deps.Ledger.Credit(ctx, userID, amount, storage.LedgerGrant, reason); err != nil {
			return mcpError(fmt.Sprintf("granting credits: %v", err)), nil
		}
		bal, err := deps.Ledger.GetBalance(ctx, userID)
		if err != nil {
			return mcpText(fmt.Sprintf("Granted %d credits to %s", amount, userID)), nil
		}
		return mcpText(fmt.Sprintf("Granted %d credits to %s (balance %d)", amount, userID, bal)), nil
	}
}

func mcpRecentAnalyses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		analyses, err := deps.Records.ListAnalyses(ctx, userID, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing analyses: %v", err)), nil
		}

		type row struct {
			ID               string `json:"id"`
			DeckName         string `json:"deck_name"`
			FundabilityScore int    `json:"fundability_score"`
			ExportUnlocked   bool   `json:"export_unlocked"`
			CreatedAt        string `json:"created_at"`
		}
		rows := make([]row, len(analyses))
		for i, a := range analyses {
			rows[i] = row{
				ID:               a.ID,
				DeckName:         a.DeckName,
				FundabilityScore: a.FundabilityScore,
				ExportUnlocked:   a.ExportUnlocked,
				CreatedAt:        a.CreatedAt.Format(time.RFC3339),
			}
		}
		return mcpJSON(rows)
	}
}

func mcpMarketTrends(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tags := req.GetInt("tags", 20)
		if tags <= 0 {
			tags = 20
		}
		trends, err := loadTrends(ctx, deps.Records, tags)
		if err != nil {
			return mcpError(fmt.Sprintf("loading trends: %v", err)), nil
		}
		return mcpJSON(trends)
	}
}

func mcpResourceTrends(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		trends, err := loadTrends(ctx, deps.Records, 20)
		if err != nil {
			return nil, fmt.Errorf("loading trends: %w", err)
		}
		b, err := json.Marshal(trends)
		if err != nil {
			return nil, fmt.Errorf("marshalling trends: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
