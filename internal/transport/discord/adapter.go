// Package discord implements transport.Adapter on top of discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bumpbot/internal/transport"
	logx "bumpbot/pkg/logx"

	"github.com/bwmarrin/discordgo"
)

type Config struct {
	Token string
	// AppID is used for command registration before the first Ready.
	AppID string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	s *discordgo.Session

	appID atomic.Value // string

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	removers  []func()

	// droppedUpdates counts updates lost because the consumer was slower
	// than the gateway. Logged periodically instead of per update.
	droppedUpdates atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	tok := strings.TrimSpace(cfg.Token)
	if tok == "" {
		return nil, errors.New("discord token is empty")
	}
	if !strings.HasPrefix(tok, "Bot ") {
		tok = "Bot " + tok
	}
	s, err := discordgo.New(tok)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages
	s.StateEnabled = true
	s.ShouldReconnectOnError = true

	a := &Adapter{cfg: cfg, log: log, s: s}
	a.appID.Store(strings.TrimSpace(cfg.AppID))
	return a, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}

	push := func(up transport.Update) {
		select {
		case out <- up:
		default:
			a.droppedUpdates.Add(1)
		}
	}

	a.removers = append(a.removers,
		a.s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			rd := &transport.Ready{Guilds: len(r.Guilds)}
			if r.User != nil {
				rd.BotUserID = r.User.ID
			}
			// Bot user ID equals the application ID for bot applications.
			if cur, _ := a.appID.Load().(string); cur == "" && rd.BotUserID != "" {
				a.appID.Store(rd.BotUserID)
			}
			rd.AppID = a.AppID()
			a.log.Info("gateway ready", logx.String("bot_user_id", rd.BotUserID), logx.Int("guilds", rd.Guilds))
			push(transport.Update{Kind: transport.UpdateReady, Ready: rd})
		}),
		a.s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			msg := fromMessageCreate(m)
			if msg == nil {
				return
			}
			if msg.GuildID != "" {
				if g, err := s.State.Guild(msg.GuildID); err == nil {
					msg.Locale = g.PreferredLocale
				}
			}
			push(transport.Update{Kind: transport.UpdateMessage, Message: msg})
		}),
		a.s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			in := fromInteraction(i)
			if in == nil {
				return
			}
			push(transport.Update{Kind: transport.UpdateInteraction, Interaction: in})
		}),
	)

	if err := a.s.Open(); err != nil {
		a.removeHandlersLocked()
		return fmt.Errorf("discord open: %w", err)
	}

	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.running = true

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		flush := func() {
			if n := a.droppedUpdates.Swap(0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-rctx.Done():
				flush()
				return
			case <-ticker.C:
				flush()
			}
		}
	}()

	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	cancel := a.runCancel
	a.runCancel = nil
	a.removeHandlersLocked()
	a.runMu.Unlock()

	if cancel != nil {
		cancel()
	}

	closed := make(chan error, 1)
	go func() { closed <- a.s.Close() }()

	var err error
	select {
	case err = <-closed:
	case <-ctx.Done():
		err = ctx.Err()
	}
	a.runWG.Wait()
	a.log.Info("gateway closed")
	return err
}

func (a *Adapter) removeHandlersLocked() {
	for _, rm := range a.removers {
		rm()
	}
	a.removers = nil
}

func (a *Adapter) AppID() string {
	if v, _ := a.appID.Load().(string); v != "" {
		return v
	}
	if st := a.s.State; st != nil && st.User != nil {
		return st.User.ID
	}
	return ""
}

func (a *Adapter) SendText(ctx context.Context, channelID, text string) error {
	_, err := a.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (a *Adapter) SendMessage(ctx context.Context, channelID string, msg transport.OutgoingMessage) (transport.MessageRef, error) {
	m, err := a.s.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return transport.MessageRef{}, mapErr(err)
	}
	return transport.MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}, nil
}

func (a *Adapter) Reply(ctx context.Context, in *transport.Interaction, text string, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{Content: text}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := a.s.InteractionRespond(
		&discordgo.Interaction{ID: in.ID, Token: in.Token, AppID: in.AppID},
		&discordgo.InteractionResponse{Type: discordgo.InteractionResponseChannelMessageWithSource, Data: data},
		discordgo.WithContext(ctx),
	)
	return mapErr(err)
}

func (a *Adapter) RoleExists(ctx context.Context, guildID, roleID string) (bool, error) {
	if r, err := a.s.State.Role(guildID, roleID); err == nil && r != nil {
		return true, nil
	}
	roles, err := a.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapErr(err)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) MemberHasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	m, err := a.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapErr(err)
	}
	for _, id := range m.Roles {
		if id == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapErr(a.s.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (a *Adapter) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapErr(a.s.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (a *Adapter) RegisterCommands(ctx context.Context, guildID string, cmds []transport.Command) error {
	appID := a.AppID()
	if appID == "" {
		return errors.New("register commands: application id unknown (set discord.client_id)")
	}
	_, err := a.s.ApplicationCommandBulkOverwrite(appID, guildID, toApplicationCommands(cmds), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("register commands: %w", mapErr(err))
	}
	scope := "global"
	if guildID != "" {
		scope = "guild"
	}
	a.log.Info("slash commands registered", logx.String("scope", scope), logx.String("guild_id", guildID), logx.Int("count", len(cmds)))
	return nil
}

var _ transport.Adapter = (*Adapter)(nil)
