package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"project-chimera/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type MemoLister interface {
	List(ctx context.Context, filter domain.MemoFilter) ([]domain.InvestmentMemo, error)
}

type WatchlistViewer interface {
	List(ctx context.Context, userID int64) ([]string, error)
}

// StartTelegramBot wires the read-only Telegram surface: pending memo lookups,
// watchlist display and digest subscriptions. Returns nil when no token is
// configured so callers can skip the notifier wiring entirely.
func StartTelegramBot(botUserID int64, memoService MemoLister, watchlistService WatchlistViewer) *DigestDispatcher {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	digests := NewDigestDispatcher(b)

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/memos", func(c tele.Context) error {
		if memoService == nil {
			return c.Send("Memo service unavailable")
		}

		filter := domain.MemoFilter{UserID: botUserID, Status: domain.MemoPending, Limit: 5}
		if args := c.Args(); len(args) > 0 {
			ticker, err := domain.NormalizeTicker(args[0])
			if err != nil {
				return c.Send(fmt.Sprintf("Unknown ticker: %s", args[0]))
			}
			filter.Ticker = ticker
		}

		memos, err := memoService.List(context.Background(), filter)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching memos: %v", err))
		}
		if len(memos) == 0 {
			return c.Send("No pending memos right now.")
		}

		if err := c.Send("Pending memos:"); err != nil {
			return err
		}
		for _, m := range memos {
			if err := c.Send(formatMemoLine(m)); err != nil {
				return err
			}
		}
		return nil
	})

	b.Handle("/watchlist", func(c tele.Context) error {
		if watchlistService == nil {
			return c.Send("Watchlist service unavailable")
		}
		tickers, err := watchlistService.List(context.Background(), botUserID)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching watchlist: %v", err))
		}
		if len(tickers) == 0 {
			return c.Send("Watchlist is empty. Add tickers in the dashboard.")
		}
		return c.Send(fmt.Sprintf("Watchlist (%d/%d): %s", len(tickers), domain.WatchlistCap, strings.Join(tickers, ", ")))
	})

	b.Handle("/digest", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}

		mode, err := parseDigestMode(c.Args())
		if err != nil {
			return c.Send("Usage: /digest on | /digest off | /digest status")
		}

		switch mode {
		case "on":
			if digests.Subscribe(chat.ID) {
				return c.Send("Memo digests enabled for this chat.")
			}
			return c.Send("Memo digests are already enabled for this chat.")
		case "off":
			if digests.Unsubscribe(chat.ID) {
				return c.Send("Memo digests disabled for this chat.")
			}
			return c.Send("Memo digests are already disabled for this chat.")
		default:
			if digests.IsSubscribed(chat.ID) {
				return c.Send("Digest status: ON")
			}
			return c.Send("Digest status: OFF")
		}
	})

	log.Println("Telegram bot started")
	go b.Start()
	return digests
}

func formatMemoLine(m domain.InvestmentMemo) string {
	confidence := "n/a"
	if m.ConfidencePct != nil {
		confidence = fmt.Sprintf("%.0f%%", *m.ConfidencePct)
	}
	return fmt.Sprintf(
		"#%d %s %s confidence %s created %s",
		m.ID,
		m.Ticker,
		strings.ToUpper(string(m.Recommendation)),
		confidence,
		m.CreatedAt.UTC().Format(time.RFC822),
	)
}
