package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by adapters when a channel, guild, role or member
// referenced by a call does not exist (or is not visible to the bot).
var ErrNotFound = errors.New("transport: not found")

type UpdateKind string

const (
	UpdateMessage     UpdateKind = "message"
	UpdateInteraction UpdateKind = "interaction"
	// UpdateReady is sent each time the gateway session becomes ready.
	UpdateReady UpdateKind = "ready"
)

type Update struct {
	Kind        UpdateKind
	Message     *Message
	Interaction *Interaction
	Ready       *Ready
}

type Ready struct {
	AppID     string
	BotUserID string
	Guilds    int
}

// Message is an inbound channel message.
//
// CommandName is set when the message is the response to a slash command
// invocation (e.g. a bump bot answering "/bump").
type Message struct {
	ID          string
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorName  string
	AuthorBot   bool
	CommandName string
	Locale      string
}

type InteractionKind string

const (
	InteractionCommand   InteractionKind = "command"
	InteractionComponent InteractionKind = "component"
)

// Interaction is an inbound slash command or component (button) activation.
// ID and Token identify the interaction when replying.
type Interaction struct {
	Kind      InteractionKind
	ID        string
	Token     string
	AppID     string
	GuildID   string
	ChannelID string
	UserID    string
	Locale    string

	// Command interactions.
	Command string
	Options map[string]string

	// Component interactions.
	CustomID string
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Timestamp   time.Time
}

type Button struct {
	CustomID string
	Label    string
}

// OutgoingMessage is a channel message with at most one embed and one button.
// MentionRoleIDs lists the roles that are allowed to be pinged by Content.
type OutgoingMessage struct {
	Content        string
	Embed          *Embed
	Button         *Button
	MentionRoleIDs []string
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

// CommandChoice is a fixed value for a string command option.
type CommandChoice struct {
	Name  string
	Value string
}

type CommandOption struct {
	Name        string
	Description string
	Required    bool
	Choices     []CommandChoice
}

// Command is a slash command definition with string options only.
type Command struct {
	Name        string
	Description string
	Options     []CommandOption
}

// TextSender delivers plain text to a channel. Used by the log sink.
type TextSender interface {
	SendText(ctx context.Context, channelID, text string) error
}

// MessageSender posts rich messages.
type MessageSender interface {
	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (MessageRef, error)
}

// Replier answers interactions.
type Replier interface {
	Reply(ctx context.Context, in *Interaction, text string, ephemeral bool) error
}

// RoleManager toggles guild role membership.
type RoleManager interface {
	RoleExists(ctx context.Context, guildID, roleID string) (bool, error)
	MemberHasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

type Adapter interface {
	TextSender
	MessageSender
	Replier
	RoleManager

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// RegisterCommands replaces the bot's slash commands. guildID "" means global.
	RegisterCommands(ctx context.Context, guildID string, cmds []Command) error
}
