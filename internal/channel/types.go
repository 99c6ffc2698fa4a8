// Package channel defines the transport-neutral message types exchanged
// with chat platforms, and the interfaces a platform adapter implements.
package channel

import (
	"strings"
	"time"
)

// Identity represents a sender's identity on a channel.
type Identity struct {
	SubjectID   string
	Username    string
	DisplayName string
}

// Label returns the best human-readable name for the identity.
func (i Identity) Label() string {
	if name := strings.TrimSpace(i.Username); name != "" {
		return name
	}
	if name := strings.TrimSpace(i.DisplayName); name != "" {
		return name
	}
	return strings.TrimSpace(i.SubjectID)
}

// ReplyRef points to a message being replied to.
type ReplyRef struct {
	MessageID string
	SenderID  string
}

// InboundMessage is a message received from a chat platform. Adapters
// pre-compute Mentioned and ReplyToBot so downstream logic never touches
// platform-specific entities.
type InboundMessage struct {
	ChatID        string
	ChatTitle     string
	MessageID     string
	Sender        Identity
	Text          string
	Caption       string
	Reply         *ReplyRef
	Forwarded     bool
	ForwardedFrom Identity
	Mentioned     bool
	ReplyToBot    bool
	ReceivedAt    time.Time
}

// Content returns the message text, falling back to the attachment
// caption when the text is empty.
func (m InboundMessage) Content() string {
	if text := strings.TrimSpace(m.Text); text != "" {
		return text
	}
	return strings.TrimSpace(m.Caption)
}

// VideoReply is a binary video payload sent back to a chat with an
// associated caption.
type VideoReply struct {
	Data    []byte
	Caption string
}
