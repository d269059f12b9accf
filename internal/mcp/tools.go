package mcp

import (
	"context"
	"fmt"

	"project-chimera/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerTools(server *mcp.Server, userID int64, memos MemoReaderDecider, watchlist WatchlistReaderWriter, analysis RunStarter) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "memos_list",
		Description: "List investment memos with optional ticker/status filters",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in memosListInput) (*mcp.CallToolResult, memosListOutput, error) {
		if memos == nil {
			return nil, memosListOutput{}, fmt.Errorf("memo service unavailable")
		}
		filter, err := normalizeMemoFilter(userID, in)
		if err != nil {
			return nil, memosListOutput{}, err
		}
		result, err := memos.List(ctx, filter)
		if err != nil {
			return nil, memosListOutput{}, err
		}
		return nil, memosListOutput{Memos: result}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memos_get",
		Description: "Get a single investment memo with its contributing agent outputs",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in memosGetInput) (*mcp.CallToolResult, memosGetOutput, error) {
		if memos == nil {
			return nil, memosGetOutput{}, fmt.Errorf("memo service unavailable")
		}
		memo, err := memos.Get(ctx, in.ID, userID)
		if err != nil {
			return nil, memosGetOutput{}, err
		}
		return nil, memosGetOutput{Memo: memo}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memos_decide",
		Description: "Record the human decision on a pending memo: approved or rejected",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in memosDecideInput) (*mcp.CallToolResult, memosDecideOutput, error) {
		if memos == nil {
			return nil, memosDecideOutput{}, fmt.Errorf("memo service unavailable")
		}
		decision, err := normalizeDecision(in.Decision)
		if err != nil {
			return nil, memosDecideOutput{}, err
		}
		memo, err := memos.Decide(ctx, in.ID, userID, decision, in.Notes)
		if err != nil {
			return nil, memosDecideOutput{}, err
		}
		return nil, memosDecideOutput{Memo: memo}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "watchlist_list",
		Description: "List tracked tickers and the watchlist capacity",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ watchlistListInput) (*mcp.CallToolResult, watchlistListOutput, error) {
		if watchlist == nil {
			return nil, watchlistListOutput{}, fmt.Errorf("watchlist service unavailable")
		}
		tickers, err := watchlist.List(ctx, userID)
		if err != nil {
			return nil, watchlistListOutput{}, err
		}
		return nil, watchlistListOutput{Tickers: tickers, Capacity: domain.WatchlistCap}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "watchlist_add",
		Description: "Add a ticker to the watchlist",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in watchlistAddInput) (*mcp.CallToolResult, watchlistAddOutput, error) {
		if watchlist == nil {
			return nil, watchlistAddOutput{}, fmt.Errorf("watchlist service unavailable")
		}
		ticker, err := watchlist.Add(ctx, userID, in.Ticker)
		if err != nil {
			return nil, watchlistAddOutput{}, err
		}
		return nil, watchlistAddOutput{Ticker: ticker}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "watchlist_remove",
		Description: "Remove a ticker from the watchlist and cancel its in-flight runs",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in watchlistRemoveInput) (*mcp.CallToolResult, watchlistRemoveOutput, error) {
		if watchlist == nil {
			return nil, watchlistRemoveOutput{}, fmt.Errorf("watchlist service unavailable")
		}
		if err := watchlist.Remove(ctx, userID, in.Ticker); err != nil {
			return nil, watchlistRemoveOutput{}, err
		}
		return nil, watchlistRemoveOutput{Removed: true}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analysis_start",
		Description: "Start an asynchronous analysis run for a ticker; poll analysis_status for progress",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in analysisStartInput) (*mcp.CallToolResult, analysisStartOutput, error) {
		if analysis == nil {
			return nil, analysisStartOutput{}, fmt.Errorf("analysis service unavailable")
		}
		mode, err := normalizeMode(in.Mode)
		if err != nil {
			return nil, analysisStartOutput{}, err
		}
		run, err := analysis.Generate(ctx, userID, in.Ticker, mode)
		if err != nil {
			return nil, analysisStartOutput{}, err
		}
		return nil, analysisStartOutput{Run: run}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analysis_status",
		Description: "Get the current state of an analysis run",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in analysisStatusInput) (*mcp.CallToolResult, analysisStatusOutput, error) {
		if analysis == nil {
			return nil, analysisStatusOutput{}, fmt.Errorf("analysis service unavailable")
		}
		run, err := analysis.GetRun(ctx, in.RunID, userID)
		if err != nil {
			return nil, analysisStatusOutput{}, err
		}
		return nil, analysisStatusOutput{Run: run}, nil
	})
}
