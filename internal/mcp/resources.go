package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"project-chimera/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerResources(server *mcp.Server, userID int64, memos MemoReaderDecider, watchlist WatchlistReaderWriter) {
	server.AddResource(&mcp.Resource{
		URI:         "watchlist://tickers",
		Name:        "watchlist-tickers",
		Description: "Tracked tickers and the watchlist capacity",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if watchlist == nil {
			return nil, fmt.Errorf("watchlist service unavailable")
		}
		tickers, err := watchlist.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, watchlistListOutput{Tickers: tickers, Capacity: domain.WatchlistCap})
	})

	server.AddResource(&mcp.Resource{
		URI:         "memos://pending",
		Name:        "memos-pending",
		Description: "Memos currently awaiting a human decision",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if memos == nil {
			return nil, fmt.Errorf("memo service unavailable")
		}
		list, err := memos.List(ctx, domain.MemoFilter{UserID: userID, Status: domain.MemoPending, Limit: defaultMemoLimit})
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, memosListOutput{Memos: list})
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "memos://ticker/{ticker}{?status,limit}",
		Name:        "memos-by-ticker",
		Description: "Memos for a specific ticker; optional status/limit query params",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if memos == nil {
			return nil, fmt.Errorf("memo service unavailable")
		}

		parsed, err := url.Parse(req.Params.URI)
		if err != nil {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		if parsed.Scheme != "memos" || parsed.Host != "ticker" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}

		input := memosListInput{
			Ticker: strings.Trim(strings.TrimSpace(parsed.Path), "/"),
			Status: parsed.Query().Get("status"),
			Limit:  defaultMemoLimit,
		}
		if rawLimit := strings.TrimSpace(parsed.Query().Get("limit")); rawLimit != "" {
			n, err := strconv.Atoi(rawLimit)
			if err != nil {
				return nil, fmt.Errorf("invalid limit: %s", rawLimit)
			}
			input.Limit = n
		}

		filter, err := normalizeMemoFilter(userID, input)
		if err != nil {
			return nil, err
		}
		if filter.Ticker == "" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}

		list, err := memos.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, memosListOutput{Memos: list})
	})
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}, nil
}
