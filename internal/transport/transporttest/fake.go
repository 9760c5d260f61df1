// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"bumpbot/internal/transport"
)

type Sent struct {
	ChannelID string
	Msg       transport.OutgoingMessage
}

type Reply struct {
	InteractionID string
	Text          string
	Ephemeral     bool
}

// Fake records outbound calls and keeps a tiny guild model:
// known channels, roles and member→roles.
type Fake struct {
	mu sync.Mutex

	Channels map[string]bool
	Roles    map[string]bool
	Members  map[string]map[string]bool // userID -> roleID set

	Texts    []Sent
	Messages []Sent
	Replies  []Reply
	Commands []transport.Command

	// SendErr, RoleErr force failures.
	SendErr error
	RoleErr error

	out chan<- transport.Update
}

func New() *Fake {
	return &Fake{
		Channels: map[string]bool{},
		Roles:    map[string]bool{},
		Members:  map[string]map[string]bool{},
	}
}

func (f *Fake) SendText(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Texts = append(f.Texts, Sent{ChannelID: channelID, Msg: transport.OutgoingMessage{Content: text}})
	return nil
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg transport.OutgoingMessage) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return transport.MessageRef{}, f.SendErr
	}
	if !f.Channels[channelID] {
		return transport.MessageRef{}, fmt.Errorf("channel %s: %w", channelID, transport.ErrNotFound)
	}
	f.Messages = append(f.Messages, Sent{ChannelID: channelID, Msg: msg})
	return transport.MessageRef{ChannelID: channelID, MessageID: fmt.Sprint(len(f.Messages))}, nil
}

func (f *Fake) Reply(_ context.Context, in *transport.Interaction, text string, ephemeral bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Replies = append(f.Replies, Reply{InteractionID: in.ID, Text: text, Ephemeral: ephemeral})
	return nil
}

func (f *Fake) RoleExists(_ context.Context, _, roleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Roles[roleID], nil
}

func (f *Fake) MemberHasRole(_ context.Context, _, userID, roleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RoleErr != nil {
		return false, f.RoleErr
	}
	return f.Members[userID][roleID], nil
}

func (f *Fake) AddRole(_ context.Context, _, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RoleErr != nil {
		return f.RoleErr
	}
	if f.Members[userID] == nil {
		f.Members[userID] = map[string]bool{}
	}
	f.Members[userID][roleID] = true
	return nil
}

func (f *Fake) RemoveRole(_ context.Context, _, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RoleErr != nil {
		return f.RoleErr
	}
	delete(f.Members[userID], roleID)
	return nil
}

func (f *Fake) Start(_ context.Context, out chan<- transport.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *Fake) Stop(context.Context) error { return nil }

func (f *Fake) RegisterCommands(_ context.Context, _ string, cmds []transport.Command) error {
	f.mu.Lock()
	f.Commands = append([]transport.Command(nil), cmds...)
	f.mu.Unlock()
	return nil
}

// Deliver pushes an update as if it came from the gateway.
func (f *Fake) Deliver(ctx context.Context, u transport.Update) error {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	if out == nil {
		return fmt.Errorf("fake adapter not started")
	}
	select {
	case out <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) LastReply() (Reply, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Replies) == 0 {
		return Reply{}, false
	}
	return f.Replies[len(f.Replies)-1], true
}

func (f *Fake) SentMessages() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.Messages...)
}

var _ transport.Adapter = (*Fake)(nil)
