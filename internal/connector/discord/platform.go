package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/toolkit-community/helpdesk/internal/connector"
)

// Thread auto-archive after one week without messages.
const threadAutoArchive = 10080

func (c *Connector) Send(ctx context.Context, channelID string, msg connector.OutboundMessage) (*connector.Message, error) {
	send := &discordgo.MessageSend{Content: msg.Content}
	for _, e := range msg.Embeds {
		send.Embeds = append(send.Embeds, fromEmbed(e))
	}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: channelID}
	}
	m, err := c.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("send message", err)
	}
	out := toMessage(m)
	return &out, nil
}

func (c *Connector) EditEmbed(ctx context.Context, channelID, messageID string, embed connector.Embed) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetEmbeds([]*discordgo.MessageEmbed{fromEmbed(embed)})
	if _, err := c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return wrap("edit message", err)
	}
	return nil
}

func (c *Connector) FetchMessage(ctx context.Context, channelID, messageID string) (*connector.Message, error) {
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("fetch message", err)
	}
	out := toMessage(m)
	return &out, nil
}

func (c *Connector) FetchThread(ctx context.Context, threadID string) (*connector.Thread, error) {
	ch, err := c.session.Channel(threadID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("fetch thread", err)
	}
	if !ch.IsThread() {
		return nil, fmt.Errorf("discord: channel %s is not a thread: %w", threadID, connector.ErrUnknownChannel)
	}
	return toThread(ch), nil
}

// FetchThreadStarter reads the parent-channel message a thread was started
// from; it shares the thread's ID.
func (c *Connector) FetchThreadStarter(ctx context.Context, thread *connector.Thread) (*connector.Message, error) {
	return c.FetchMessage(ctx, thread.ParentID, thread.ID)
}

func (c *Connector) StartThread(ctx context.Context, channelID, messageID, name string) (*connector.Thread, error) {
	ch, err := c.session.MessageThreadStartComplex(channelID, messageID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: threadAutoArchive,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("start thread", err)
	}
	return toThread(ch), nil
}

func (c *Connector) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return wrap("add reaction", c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)))
}

func (c *Connector) RemoveAllReactions(ctx context.Context, channelID, messageID string) error {
	return wrap("remove reactions", c.session.MessageReactionsRemoveAll(channelID, messageID, discordgo.WithContext(ctx)))
}

func (c *Connector) RenameThread(ctx context.Context, threadID, name string) error {
	_, err := c.session.ChannelEdit(threadID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	return wrap("rename thread", err)
}

func (c *Connector) ArchiveThread(ctx context.Context, threadID string, archived bool) error {
	_, err := c.session.ChannelEdit(threadID, &discordgo.ChannelEdit{Archived: &archived}, discordgo.WithContext(ctx))
	return wrap("archive thread", err)
}

func (c *Connector) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return wrap("delete message", c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

// wrap maps Discord's unknown-entity errors onto the connector sentinels.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("discord: %s: %w", op, connector.ErrUnknownChannel)
		case discordgo.ErrCodeUnknownMessage:
			return fmt.Errorf("discord: %s: %w", op, connector.ErrUnknownMessage)
		}
	}
	return fmt.Errorf("discord: %s: %w", op, err)
}

var (
	_ connector.Connector = (*Connector)(nil)
	_ connector.Platform  = (*Connector)(nil)
)
