package mcp

import (
	"context"
	"testing"
	"time"

	"project-chimera/internal/domain"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestToolsListAndInvoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv, memos, _, analysis := testServer()
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	tools, err := session.ListTools(ctx, &sdkmcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools failed: %v", err)
	}
	if len(tools.Tools) < 8 {
		t.Fatalf("expected at least 8 tools, got %d", len(tools.Tools))
	}

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "memos_list", Arguments: map[string]any{"ticker": "aapl", "status": "pending"}})
	if err != nil {
		t.Fatalf("call tool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	if memos.lastFilter.Ticker != "AAPL" || memos.lastFilter.Status != domain.MemoPending {
		t.Fatalf("unexpected memo filter: %+v", memos.lastFilter)
	}
	if memos.lastFilter.UserID != 7 {
		t.Fatalf("expected filter scoped to configured user, got %d", memos.lastFilter.UserID)
	}

	res, err = session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "analysis_start", Arguments: map[string]any{"ticker": "MSFT", "mode": "enhanced"}})
	if err != nil {
		t.Fatalf("start tool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected start tool error: %+v", res.Content)
	}
	if analysis.lastTicker != "MSFT" {
		t.Fatalf("expected analysis ticker MSFT, got %s", analysis.lastTicker)
	}
	if analysis.lastMode != domain.ModeEnhanced {
		t.Fatalf("expected enhanced mode, got %s", analysis.lastMode)
	}
}

func TestToolsDecideMemo(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv, memos, _, _ := testServer()
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "memos_decide",
		Arguments: map[string]any{"id": 1, "decision": "approved", "notes": "thesis holds"},
	})
	if err != nil {
		t.Fatalf("decide tool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected decide tool error: %+v", res.Content)
	}
	if memos.lastDecision != domain.MemoApproved || memos.lastNotes != "thesis holds" {
		t.Fatalf("unexpected recorded decision: %s / %s", memos.lastDecision, memos.lastNotes)
	}

	// Second decision on the same memo hits the conflict path.
	res, err = session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "memos_decide",
		Arguments: map[string]any{"id": 1, "decision": "rejected"},
	})
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected conflict error on second decision")
	}
}

func TestToolsValidationFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv, _, _, _ := testServer()
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "memos_decide",
		Arguments: map[string]any{"id": 1, "decision": "maybe"},
	})
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool-level validation error")
	}

	res, err = session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "analysis_start",
		Arguments: map[string]any{"ticker": "AAPL", "mode": "turbo"},
	})
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected unsupported mode error")
	}
}

func TestToolsWatchlistRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv, _, watchlist, _ := testServer()
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "watchlist_add", Arguments: map[string]any{"ticker": "nvda"}})
	if err != nil {
		t.Fatalf("add tool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected add tool error: %+v", res.Content)
	}
	if len(watchlist.tickers) != 3 || watchlist.tickers[2] != "NVDA" {
		t.Fatalf("expected NVDA appended, got %+v", watchlist.tickers)
	}

	res, err = session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "watchlist_remove", Arguments: map[string]any{"ticker": "MSFT"}})
	if err != nil {
		t.Fatalf("remove tool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected remove tool error: %+v", res.Content)
	}
	if len(watchlist.removed) != 1 || watchlist.removed[0] != "MSFT" {
		t.Fatalf("expected MSFT removed, got %+v", watchlist.removed)
	}
}
