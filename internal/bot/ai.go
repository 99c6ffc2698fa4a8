package bot

import (
	"context"
	"log/slog"

	"github.com/whitecathq/whitecat/internal/channel"
	"github.com/whitecathq/whitecat/internal/genai"
	"github.com/whitecathq/whitecat/internal/pipeline"
	"github.com/whitecathq/whitecat/internal/trigger"
	"github.com/whitecathq/whitecat/internal/window"
)

const aiHelpText = "Meow! I can't help you without a message, friend.\n" +
	"Please tell me something after the command, in a reply, or when mentioning me.\n" +
	"Example: /cat What is the weather today?"

const aiErrorText = "Sorry, I encountered an error processing your request. " +
	"Please try again later."

// Completer generates an assistant reply from a conversation.
type Completer interface {
	Complete(ctx context.Context, history []genai.Message, prompt string) (string, error)
}

// AIUnit answers messages that trip one of its trigger rules, keeping a
// bounded per-chat conversation so follow-ups have context.
type AIUnit struct {
	logger        *slog.Logger
	triggers      *trigger.Registry
	completer     Completer
	replier       channel.Replier
	conversations *window.Store[genai.Message]
}

// NewAIUnit creates the AI chat unit with the given trigger registry and
// conversation capacity.
func NewAIUnit(log *slog.Logger, triggers *trigger.Registry, completer Completer, replier channel.Replier, conversationCapacity int) (*AIUnit, error) {
	if log == nil {
		log = slog.Default()
	}
	conversations, err := window.NewStore[genai.Message](conversationCapacity)
	if err != nil {
		return nil, err
	}
	return &AIUnit{
		logger:        log.With(slog.String("unit", "AI_CHAT")),
		triggers:      triggers,
		completer:     completer,
		replier:       replier,
		conversations: conversations,
	}, nil
}

// Name returns the unit name used for registration and overrides.
func (u *AIUnit) Name() string { return "AI_CHAT" }

// ConversationLen reports the stored turns for a chat.
func (u *AIUnit) ConversationLen(chatID string) int {
	return u.conversations.Len(chatID)
}

// Process engages when a trigger rule matches. An engaged unit always
// halts the pipeline; only the conversation of a successful exchange is
// recorded.
func (u *AIUnit) Process(ctx context.Context, pc *pipeline.Context) error {
	msg := pc.Event
	match, ok := u.triggers.FindMatch(msg)
	if !ok {
		return nil
	}
	pc.Halt()
	pc.Set("ai_trigger", match.Rule)

	prompt := match.Payload
	if prompt == "" {
		u.reply(ctx, msg, aiHelpText)
		return nil
	}

	if err := u.replier.NotifyTyping(ctx, msg.ChatID); err != nil {
		u.logger.Warn("notify typing failed", slog.String("chat_id", msg.ChatID), slog.Any("error", err))
	}

	history := u.conversations.Snapshot(msg.ChatID)
	response, err := u.completer.Complete(ctx, history, prompt)
	if err != nil {
		u.logger.Error("completion failed",
			slog.String("trigger", match.Rule),
			slog.String("chat_id", msg.ChatID),
			slog.Any("error", err))
		u.reply(ctx, msg, aiErrorText)
		return nil
	}

	u.conversations.Append(msg.ChatID, genai.Message{Role: genai.RoleUser, Content: prompt})
	u.conversations.Append(msg.ChatID, genai.Message{Role: genai.RoleAssistant, Content: response})

	u.reply(ctx, msg, response)
	u.logger.Info("reply sent",
		slog.String("trigger", match.Rule),
		slog.String("chat_id", msg.ChatID),
		slog.Int("history_len", len(history)))
	return nil
}

func (u *AIUnit) reply(ctx context.Context, msg channel.InboundMessage, text string) {
	if err := u.replier.ReplyText(ctx, msg.ChatID, msg.MessageID, text); err != nil {
		u.logger.Error("send reply failed", slog.String("chat_id", msg.ChatID), slog.Any("error", err))
	}
}
