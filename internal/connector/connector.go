package connector

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownChannel is returned when a channel or thread no longer exists.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrUnknownMessage is returned when a message no longer exists.
	ErrUnknownMessage = errors.New("unknown message")
)

// Reaction symbols used on diagnosis replies.
const (
	EmojiResolved    = "✅"
	EmojiNotResolved = "❌"
)

// Embed colors.
const (
	ColorPending  = 0xFFA500
	ColorResolved = 0x57F287
	ColorClosed   = 0x5865F2
	ColorWarning  = 0xFEE75C
	ColorAlert    = 0xED4245
)

// Connector is the lifecycle interface of a chat platform gateway.
type Connector interface {
	// Name returns the connector type (e.g., "discord").
	Name() string
	// Start connects and dispatches events. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
}

// Platform is the set of chat platform calls the desk makes. Every method is
// a blocking network call; the platform client's own timeout policy applies.
type Platform interface {
	// BotUserID returns the user ID the desk posts as.
	BotUserID() string
	Send(ctx context.Context, channelID string, msg OutboundMessage) (*Message, error)
	EditEmbed(ctx context.Context, channelID, messageID string, embed Embed) error
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
	FetchThread(ctx context.Context, threadID string) (*Thread, error)
	// FetchThreadStarter returns the message the thread was started from, or
	// ErrUnknownMessage.
	FetchThreadStarter(ctx context.Context, thread *Thread) (*Message, error)
	StartThread(ctx context.Context, channelID, messageID, name string) (*Thread, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveAllReactions(ctx context.Context, channelID, messageID string) error
	RenameThread(ctx context.Context, threadID, name string) error
	ArchiveThread(ctx context.Context, threadID string, archived bool) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// OutboundMessage is a message the desk posts.
type OutboundMessage struct {
	Content string
	Embeds  []Embed
	// ReplyTo is the ID of the message being replied to, if any.
	ReplyTo string
}

// Embed is a platform-neutral rich message card.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time
}

// EmbedField is one named section of an Embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Attachment is a file attached to a message.
type Attachment struct {
	Name        string
	URL         string
	ContentType string
	Size        int
}

// Message is a message received from or fetched on the platform.
type Message struct {
	ID          string
	ChannelID   string
	AuthorID    string
	AuthorBot   bool
	Content     string
	Embeds      []Embed
	Attachments []Attachment
	// ReferenceID is the ID of the message this one replies to.
	ReferenceID string
}

// Thread is a platform thread.
type Thread struct {
	ID       string
	ParentID string
	Name     string
	Archived bool
}

// Reaction is an emoji reaction added to a message.
type Reaction struct {
	ChannelID string
	MessageID string
	UserID    string
	UserBot   bool
	Emoji     string
}

// ResolveCommand is an explicit request to resolve the thread it was issued in.
type ResolveCommand struct {
	ChannelID string
	UserID    string
	// Privileged is set when the actor may manage any support thread.
	Privileged bool
}

// TicketSubmission is a completed ticket-opening form.
type TicketSubmission struct {
	UserID      string
	Title       string
	Version     string
	Description string
	OS          string
}

// Response is the reply to a command or form interaction.
type Response struct {
	Content   string
	Embed     *Embed
	Ephemeral bool
}

// EventHandler processes events received from the platform.
type EventHandler interface {
	HandleMessage(ctx context.Context, msg Message)
	HandleReaction(ctx context.Context, r Reaction)
	HandleResolve(ctx context.Context, cmd ResolveCommand) Response
	HandleTicketSubmission(ctx context.Context, sub TicketSubmission) Response
}
