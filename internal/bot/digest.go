package bot

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"project-chimera/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// DigestDispatcher pushes a short digest to subscribed chats whenever an
// analysis run finishes and a memo lands in the pending queue.
type DigestDispatcher struct {
	sender messageSender

	mu          sync.RWMutex
	subscribers map[int64]struct{}
}

func NewDigestDispatcher(sender messageSender) *DigestDispatcher {
	return &DigestDispatcher{
		sender:      sender,
		subscribers: make(map[int64]struct{}),
	}
}

func (d *DigestDispatcher) Subscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; exists {
		return false
	}
	d.subscribers[chatID] = struct{}{}
	return true
}

func (d *DigestDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[chatID]; !exists {
		return false
	}
	delete(d.subscribers, chatID)
	return true
}

func (d *DigestDispatcher) IsSubscribed(chatID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.subscribers[chatID]
	return exists
}

func (d *DigestDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// MemoCompleted sends the digest for a freshly completed memo to every
// subscribed chat. Delivery failures are logged, never surfaced: the memo
// is already persisted and the digest is informational.
func (d *DigestDispatcher) MemoCompleted(userID int64, memo domain.InvestmentMemo) {
	if d == nil || d.sender == nil {
		return
	}

	chatIDs := d.snapshotSubscribers()
	if len(chatIDs) == 0 {
		return
	}

	msg := formatMemoDigest(memo)
	var failures []string
	for _, chatID := range chatIDs {
		if _, err := d.sender.Send(&tele.Chat{ID: chatID}, msg); err != nil {
			failures = append(failures, fmt.Sprintf("chat %d: %v", chatID, err))
		}
	}
	if len(failures) > 0 {
		log.Printf("failed sending %d memo digests for user %d: %s", len(failures), userID, strings.Join(failures, "; "))
	}
}

func (d *DigestDispatcher) snapshotSubscribers() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chatIDs := make([]int64, 0, len(d.subscribers))
	for chatID := range d.subscribers {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	return chatIDs
}

func parseDigestMode(args []string) (string, error) {
	if len(args) == 0 {
		return "status", nil
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "on":
		return "on", nil
	case "off":
		return "off", nil
	case "status":
		return "status", nil
	default:
		return "", fmt.Errorf("invalid mode")
	}
}

func formatMemoDigest(memo domain.InvestmentMemo) string {
	lines := []string{
		fmt.Sprintf("Memo ready: %s (%s analysis)", memo.Ticker, memo.Mode),
		fmt.Sprintf("Recommendation: %s", memo.Recommendation),
	}
	if memo.ConfidencePct != nil {
		lines = append(lines, fmt.Sprintf("Confidence: %.0f%%", *memo.ConfidencePct))
	}
	if memo.RiskScore != nil {
		lines = append(lines, fmt.Sprintf("Risk score: %.1f/10", *memo.RiskScore))
	}
	if memo.PositionSizePct != nil {
		lines = append(lines, fmt.Sprintf("Suggested position: %.1f%% of portfolio", *memo.PositionSizePct))
	}
	lines = append(lines, "Awaiting your decision: approve or reject in the dashboard.")
	return strings.Join(lines, "\n")
}
