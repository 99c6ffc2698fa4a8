// Package bot implements the pipeline units: video download, AI chat
// and chat summarization.
package bot

import (
	"strings"

	"github.com/whitecathq/whitecat/internal/channel"
)

// Default trigger priorities. The explicit command outranks a mention,
// which outranks a plain reply to the bot.
const (
	PriorityCommandRule = 80
	PriorityMentionRule = 70
	PriorityReplyRule   = 60
)

var defaultCommands = []string{"/cat", "/кіт"}

// CommandRule fires when the message starts with one of the bot
// commands, extracting everything after the command as the prompt.
type CommandRule struct {
	commands []string
}

// NewCommandRule creates a CommandRule; nil commands use the defaults.
func NewCommandRule(commands []string) *CommandRule {
	if len(commands) == 0 {
		commands = defaultCommands
	}
	return &CommandRule{commands: commands}
}

func (r *CommandRule) Name() string { return "AI_COMMAND" }

func (r *CommandRule) ShouldTrigger(msg channel.InboundMessage) bool {
	text := strings.TrimSpace(msg.Content())
	for _, cmd := range r.commands {
		if strings.HasPrefix(text, cmd) {
			return true
		}
	}
	return false
}

// Extract returns the text after the command. An empty result means the
// user sent the bare command and should get usage help.
func (r *CommandRule) Extract(msg channel.InboundMessage) string {
	text := strings.TrimSpace(msg.Content())
	for _, cmd := range r.commands {
		if strings.HasPrefix(text, cmd) {
			return strings.TrimSpace(text[len(cmd):])
		}
	}
	return ""
}

// MentionRule fires when the adapter marked the message as mentioning
// the bot; the prompt is the text with the mention removed.
type MentionRule struct {
	botUsername string
}

// NewMentionRule creates a MentionRule for the given bot username
// (without the @).
func NewMentionRule(botUsername string) *MentionRule {
	return &MentionRule{botUsername: strings.TrimPrefix(strings.TrimSpace(botUsername), "@")}
}

func (r *MentionRule) Name() string { return "AI_MENTION" }

func (r *MentionRule) ShouldTrigger(msg channel.InboundMessage) bool {
	return msg.Mentioned
}

func (r *MentionRule) Extract(msg channel.InboundMessage) string {
	text := strings.TrimSpace(msg.Content())
	if r.botUsername != "" {
		text = strings.ReplaceAll(text, "@"+r.botUsername, "")
	}
	return strings.TrimSpace(text)
}

// ReplyRule fires when the message replies to one of the bot's own
// messages; the whole text is the prompt.
type ReplyRule struct{}

// NewReplyRule creates a ReplyRule.
func NewReplyRule() *ReplyRule { return &ReplyRule{} }

func (r *ReplyRule) Name() string { return "AI_REPLY" }

func (r *ReplyRule) ShouldTrigger(msg channel.InboundMessage) bool {
	return msg.ReplyToBot
}

func (r *ReplyRule) Extract(msg channel.InboundMessage) string {
	return strings.TrimSpace(msg.Content())
}
