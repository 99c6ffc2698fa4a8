package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/whitecathq/whitecat/internal/channel"
	"github.com/whitecathq/whitecat/internal/pipeline"
	"github.com/whitecathq/whitecat/internal/window"
)

const (
	summaryEmptyText = "No messages to summarize yet."
	summaryErrorText = "Sorry, I couldn't generate a summary. Please try again later."
)

var defaultSummaryKeywords = []string{"/summarize", "/summary", "/самарі"}

// HistoryEntry is one recorded chat message for summarization.
type HistoryEntry struct {
	Username  string
	Text      string
	Timestamp time.Time
	Forwarded bool
}

// SummaryUnit records chat history and produces a summary when a
// trigger keyword appears. Trigger messages themselves are never
// recorded, so summaries do not quote summary requests.
type SummaryUnit struct {
	logger    *slog.Logger
	keywords  []string
	completer Completer
	replier   channel.Replier
	history   *window.Store[HistoryEntry]
}

// NewSummaryUnit creates the summary unit with the given history
// capacity. Nil keywords use the defaults.
func NewSummaryUnit(log *slog.Logger, completer Completer, replier channel.Replier, historyCapacity int, keywords []string) (*SummaryUnit, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(keywords) == 0 {
		keywords = defaultSummaryKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	history, err := window.NewStore[HistoryEntry](historyCapacity)
	if err != nil {
		return nil, err
	}
	return &SummaryUnit{
		logger:    log.With(slog.String("unit", "SUMMARY")),
		keywords:  lowered,
		completer: completer,
		replier:   replier,
		history:   history,
	}, nil
}

// Name returns the unit name used for registration and overrides.
func (u *SummaryUnit) Name() string { return "SUMMARY" }

// HistoryLen reports the recorded messages for a chat.
func (u *SummaryUnit) HistoryLen(chatID string) int {
	return u.history.Len(chatID)
}

// Process records non-trigger messages and passes them through. A
// trigger keyword produces a summary of the recorded history and halts.
func (u *SummaryUnit) Process(ctx context.Context, pc *pipeline.Context) error {
	msg := pc.Event
	text := msg.Content()
	if text == "" {
		return nil
	}

	if !u.isTrigger(text) {
		u.record(msg, text)
		return nil
	}

	pc.Halt()

	if err := u.replier.NotifyTyping(ctx, msg.ChatID); err != nil {
		u.logger.Warn("notify typing failed", slog.String("chat_id", msg.ChatID), slog.Any("error", err))
	}

	entries := u.history.Snapshot(msg.ChatID)
	if len(entries) == 0 {
		u.reply(ctx, msg, summaryEmptyText)
		return nil
	}

	summary, err := u.completer.Complete(ctx, nil, formatTranscript(entries))
	if err != nil {
		u.logger.Error("summary generation failed",
			slog.String("chat_id", msg.ChatID),
			slog.Int("messages", len(entries)),
			slog.Any("error", err))
		u.reply(ctx, msg, summaryErrorText)
		return nil
	}

	u.reply(ctx, msg, summary)
	u.logger.Info("summary sent",
		slog.String("chat_id", msg.ChatID),
		slog.Int("messages", len(entries)))
	return nil
}

func (u *SummaryUnit) isTrigger(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range u.keywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// record stores a message, attributing forwarded messages to the
// original sender when the platform exposes one.
func (u *SummaryUnit) record(msg channel.InboundMessage, text string) {
	username := msg.Sender.Label()
	if msg.Forwarded {
		username = "Forwarded"
		if label := msg.ForwardedFrom.Label(); label != "" {
			username = label
		}
	}
	u.history.Append(msg.ChatID, HistoryEntry{
		Username:  username,
		Text:      text,
		Timestamp: msg.ReceivedAt,
		Forwarded: msg.Forwarded,
	})
}

func (u *SummaryUnit) reply(ctx context.Context, msg channel.InboundMessage, text string) {
	if err := u.replier.ReplyText(ctx, msg.ChatID, msg.MessageID, text); err != nil {
		u.logger.Error("send reply failed", slog.String("chat_id", msg.ChatID), slog.Any("error", err))
	}
}

func formatTranscript(entries []HistoryEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] @%s: %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.Username, e.Text)
	}
	b.WriteString("\nPlease summarize the above conversation.")
	return b.String()
}
