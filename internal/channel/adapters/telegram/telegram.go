// Package telegram adapts the Telegram Bot API to the channel interfaces
// using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/whitecathq/whitecat/internal/channel"
)

const maxMessageLength = 4096

// Options configures the adapter beyond the bot token.
type Options struct {
	// UpdateTimeout is the long-poll timeout in seconds.
	UpdateTimeout int
	// DropPendingAge drops queued updates older than this many seconds at
	// startup, so a restart does not replay stale chatter. Zero keeps
	// everything.
	DropPendingAge int
}

// Adapter implements channel.Receiver and channel.Replier for Telegram.
type Adapter struct {
	logger *slog.Logger
	bot    *tgbotapi.BotAPI
	opts   Options
}

// New creates an Adapter authenticated with the given bot token.
func New(log *slog.Logger, token string, opts Options) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("adapter", "telegram"))
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = 60
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: log})
	return &Adapter{logger: log, bot: bot, opts: opts}, nil
}

// BotUsername returns the authenticated bot's username without the @.
func (a *Adapter) BotUsername() string {
	return a.bot.Self.UserName
}

// Connect starts long-polling for updates and forwards each message to
// the handler on its own goroutine.
func (a *Adapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	a.logger.Info("start", slog.String("bot", a.bot.Self.UserName))

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = a.opts.UpdateTimeout
	updates := a.bot.GetUpdatesChan(updateConfig)
	connCtx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				if update.Message == nil {
					continue
				}
				if a.isStale(update.Message) {
					continue
				}
				msg, ok := a.buildInbound(update.Message)
				if !ok {
					continue
				}
				a.logger.Info("inbound received",
					slog.String("chat_id", msg.ChatID),
					slog.String("message_id", msg.MessageID),
					slog.String("username", msg.Sender.Username),
					slog.Bool("forwarded", msg.Forwarded))
				go handler(connCtx, msg)
			}
		}
	}()

	stop := func(_ context.Context) error {
		a.logger.Info("stop")
		a.bot.StopReceivingUpdates()
		cancel()
		// Drain remaining updates so the library's polling goroutine can
		// finish writing and exit. Without this, the in-flight long-poll
		// HTTP request keeps the old getUpdates session alive, causing
		// "Conflict: terminated by other getUpdates request" when a new
		// connection starts with the same bot token.
		for range updates {
		}
		return nil
	}
	return channel.NewConnection(stop), nil
}

func (a *Adapter) isStale(msg *tgbotapi.Message) bool {
	if a.opts.DropPendingAge <= 0 {
		return false
	}
	age := time.Since(time.Unix(int64(msg.Date), 0))
	return age > time.Duration(a.opts.DropPendingAge)*time.Second
}

func (a *Adapter) buildInbound(msg *tgbotapi.Message) (channel.InboundMessage, bool) {
	text := strings.TrimSpace(msg.Text)
	caption := strings.TrimSpace(msg.Caption)
	if text == "" && caption == "" {
		return channel.InboundMessage{}, false
	}
	chatID := ""
	chatTitle := ""
	if msg.Chat != nil {
		chatID = strconv.FormatInt(msg.Chat.ID, 10)
		chatTitle = strings.TrimSpace(msg.Chat.Title)
	}
	replyToBot := msg.ReplyToMessage != nil &&
		msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == a.bot.Self.ID
	return channel.InboundMessage{
		ChatID:        chatID,
		ChatTitle:     chatTitle,
		MessageID:     strconv.Itoa(msg.MessageID),
		Sender:        resolveSender(msg),
		Text:          text,
		Caption:       caption,
		Reply:         buildReplyRef(msg),
		Forwarded:     isForwarded(msg),
		ForwardedFrom: resolveForwardOrigin(msg),
		Mentioned:     isBotMentioned(msg, a.bot.Self.UserName),
		ReplyToBot:    replyToBot,
		ReceivedAt:    time.Unix(int64(msg.Date), 0).UTC(),
	}, true
}

// ReplyText sends text to the chat as a reply to the given message.
func (a *Adapter) ReplyText(ctx context.Context, chatID, replyToMessageID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	message := tgbotapi.NewMessage(id, truncateText(sanitizeText(text)))
	if replyTo := parseMessageID(replyToMessageID); replyTo > 0 {
		message.ReplyToMessageID = replyTo
	}
	if _, err := a.bot.Send(message); err != nil {
		a.logger.Error("send text failed", slog.String("chat_id", chatID), slog.Any("error", err))
		return err
	}
	return nil
}

// ReplyVideo uploads the video bytes to the chat with the caption.
func (a *Adapter) ReplyVideo(ctx context.Context, chatID, replyToMessageID string, video channel.VideoReply) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	file := tgbotapi.FileBytes{Name: "video.mp4", Bytes: video.Data}
	message := tgbotapi.NewVideo(id, file)
	message.Caption = truncateText(sanitizeText(video.Caption))
	if replyTo := parseMessageID(replyToMessageID); replyTo > 0 {
		message.ReplyToMessageID = replyTo
	}
	if _, err := a.bot.Send(message); err != nil {
		a.logger.Error("send video failed",
			slog.String("chat_id", chatID),
			slog.Int("bytes", len(video.Data)),
			slog.Any("error", err))
		return err
	}
	return nil
}

// NotifyTyping sends the "typing" chat action.
func (a *Adapter) NotifyTyping(ctx context.Context, chatID string) error {
	return a.sendChatAction(chatID, tgbotapi.ChatTyping)
}

// NotifyUploading sends the "upload_video" chat action.
func (a *Adapter) NotifyUploading(ctx context.Context, chatID string) error {
	return a.sendChatAction(chatID, tgbotapi.ChatUploadVideo)
}

func (a *Adapter) sendChatAction(chatID, action string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if _, err := a.bot.Request(tgbotapi.NewChatAction(id, action)); err != nil {
		a.logger.Warn("send chat action failed", slog.String("chat_id", chatID), slog.Any("error", err))
		return err
	}
	return nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat id must be numeric: %q", chatID)
	}
	return id, nil
}

func parseMessageID(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

func resolveSender(msg *tgbotapi.Message) channel.Identity {
	if msg == nil || msg.From == nil {
		return channel.Identity{}
	}
	displayName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	return channel.Identity{
		SubjectID:   strconv.FormatInt(msg.From.ID, 10),
		Username:    strings.TrimSpace(msg.From.UserName),
		DisplayName: displayName,
	}
}

func buildReplyRef(msg *tgbotapi.Message) *channel.ReplyRef {
	if msg == nil || msg.ReplyToMessage == nil {
		return nil
	}
	ref := &channel.ReplyRef{MessageID: strconv.Itoa(msg.ReplyToMessage.MessageID)}
	if msg.ReplyToMessage.From != nil {
		ref.SenderID = strconv.FormatInt(msg.ReplyToMessage.From.ID, 10)
	}
	return ref
}

func isForwarded(msg *tgbotapi.Message) bool {
	if msg == nil {
		return false
	}
	return msg.ForwardFrom != nil || msg.ForwardFromChat != nil || msg.ForwardSenderName != "" || msg.ForwardDate != 0
}

// resolveForwardOrigin extracts the original author of a forwarded
// message. Privacy-restricted forwards only expose a sender name.
func resolveForwardOrigin(msg *tgbotapi.Message) channel.Identity {
	if msg == nil {
		return channel.Identity{}
	}
	if msg.ForwardFrom != nil {
		displayName := strings.TrimSpace(msg.ForwardFrom.FirstName + " " + msg.ForwardFrom.LastName)
		return channel.Identity{
			SubjectID:   strconv.FormatInt(msg.ForwardFrom.ID, 10),
			Username:    strings.TrimSpace(msg.ForwardFrom.UserName),
			DisplayName: displayName,
		}
	}
	if msg.ForwardFromChat != nil {
		return channel.Identity{
			SubjectID:   strconv.FormatInt(msg.ForwardFromChat.ID, 10),
			Username:    strings.TrimSpace(msg.ForwardFromChat.UserName),
			DisplayName: strings.TrimSpace(msg.ForwardFromChat.Title),
		}
	}
	if name := strings.TrimSpace(msg.ForwardSenderName); name != "" {
		return channel.Identity{DisplayName: name}
	}
	return channel.Identity{}
}

func isBotMentioned(msg *tgbotapi.Message, botUsername string) bool {
	if msg == nil {
		return false
	}
	normalizedBot := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(botUsername), "@"))
	if normalizedBot != "" {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			text = strings.TrimSpace(msg.Caption)
		}
		if text != "" && strings.Contains(strings.ToLower(text), "@"+normalizedBot) {
			return true
		}
	}
	entities := make([]tgbotapi.MessageEntity, 0, len(msg.Entities)+len(msg.CaptionEntities))
	entities = append(entities, msg.Entities...)
	entities = append(entities, msg.CaptionEntities...)
	for _, entity := range entities {
		if entity.Type == "text_mention" && entity.User != nil && entity.User.IsBot {
			return true
		}
	}
	return false
}

// sanitizeText ensures text is valid UTF-8 for the Telegram API,
// stripping invalid byte sequences.
func sanitizeText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateText truncates text to maxMessageLength on a valid UTF-8 rune
// boundary, appending "..." when truncation occurs.
func truncateText(text string) string {
	if len(text) <= maxMessageLength {
		return text
	}
	const suffix = "..."
	limit := maxMessageLength - len(suffix)
	// Walk backwards to a rune boundary.
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}

// slogBotLogger bridges the bot library's logger to slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(fmt.Sprintln(v...))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
