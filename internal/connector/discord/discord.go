// Package discord connects the desk to a Discord guild through discordgo.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/toolkit-community/helpdesk/internal/connector"
)

// handlerTimeout bounds the work done for one gateway event.
const handlerTimeout = 60 * time.Second

// Config holds Discord connector configuration.
type Config struct {
	Token   string // bot token, without the "Bot " prefix
	GuildID string // register commands in this guild only; empty = global
}

// Connector implements connector.Connector and connector.Platform for Discord.
type Connector struct {
	session *discordgo.Session
	config  Config
	logger  *slog.Logger

	mu      sync.RWMutex
	handler connector.EventHandler
	botID   string
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a Discord connector. No network calls are made until Start.
func New(cfg Config, logger *slog.Logger) (*Connector, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: init session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	return &Connector{
		session: s,
		config:  cfg,
		logger:  logger.With("component", "discord"),
		ctx:     context.Background(),
	}, nil
}

func (c *Connector) Name() string { return "discord" }

// SetHandler installs the event handler. It must be called before Start.
func (c *Connector) SetHandler(h connector.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Start opens the gateway connection and dispatches events. Blocks until
// context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.handler == nil {
		c.mu.Unlock()
		return fmt.Errorf("discord: no event handler set")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	ctx = c.ctx
	c.mu.Unlock()

	c.session.AddHandler(c.onReady)
	c.session.AddHandler(c.onMessageCreate)
	c.session.AddHandler(c.onReactionAdd)
	c.session.AddHandler(c.onInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	c.logger.Info("discord connector started")

	if err := c.registerCommands(); err != nil {
		c.session.Close()
		return err
	}

	<-ctx.Done()
	if err := c.session.Close(); err != nil {
		c.logger.Warn("close gateway", "error", err)
	}
	c.logger.Info("discord connector stopped")
	return ctx.Err()
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *Connector) BotUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botID
}

func (c *Connector) events() (context.Context, context.CancelFunc, connector.EventHandler) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx, cancel := context.WithTimeout(c.ctx, handlerTimeout)
	return ctx, cancel, c.handler
}

func (c *Connector) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.mu.Lock()
	c.botID = r.User.ID
	c.mu.Unlock()
	c.logger.Info("discord bot ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (c *Connector) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.BotUserID() {
		return
	}
	ctx, cancel, h := c.events()
	defer cancel()
	h.HandleMessage(ctx, toMessage(m.Message))
}

func (c *Connector) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil || r.UserID == c.BotUserID() {
		return
	}
	ctx, cancel, h := c.events()
	defer cancel()
	reaction := toReaction(r)
	reaction.UserBot = c.reactorIsBot(r.MessageReaction, r.Member)
	h.HandleReaction(ctx, reaction)
}

// reactorIsBot reports whether the reacting user is a bot. The gateway only
// attaches member data to guild reactions, so fall back to the state cache
// and then to a REST lookup.
func (c *Connector) reactorIsBot(r *discordgo.MessageReaction, member *discordgo.Member) bool {
	if member != nil && member.User != nil {
		return member.User.Bot
	}
	if c.session.State != nil && r.GuildID != "" {
		if m, err := c.session.State.Member(r.GuildID, r.UserID); err == nil && m.User != nil {
			return m.User.Bot
		}
	}
	u, err := c.session.User(r.UserID)
	if err != nil {
		c.logger.Debug("resolve reacting user failed", "user", r.UserID, "error", err)
		return false
	}
	return u.Bot
}
