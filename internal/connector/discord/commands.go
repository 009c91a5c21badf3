package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/toolkit-community/helpdesk/internal/connector"
)

const (
	commandSupport = "support"
	commandResolve = "resolve"
	modalTicket    = "support_ticket"

	fieldTitle       = "title"
	fieldVersion     = "version"
	fieldOS          = "os"
	fieldDescription = "description"
)

var commands = []*discordgo.ApplicationCommand{
	{Name: commandSupport, Description: "Open a support ticket"},
	{Name: commandResolve, Description: "Mark this support thread as resolved"},
}

func (c *Connector) registerCommands() error {
	appID := c.session.State.User.ID
	if _, err := c.session.ApplicationCommandBulkOverwrite(appID, c.config.GuildID, commands); err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	c.logger.Info("commands registered", "guild", c.config.GuildID, "count", len(commands))
	return nil
}

func (c *Connector) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case commandSupport:
			c.respond(s, i, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseModal,
				Data: ticketModal(),
			})
		case commandResolve:
			c.deferred(s, i, func() connector.Response {
				ctx, cancel, h := c.events()
				defer cancel()
				return h.HandleResolve(ctx, connector.ResolveCommand{
					ChannelID:  i.ChannelID,
					UserID:     interactionUserID(i),
					Privileged: canManageThreads(i),
				})
			})
		}

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		if data.CustomID != modalTicket {
			return
		}
		values := modalValues(data)
		c.deferred(s, i, func() connector.Response {
			ctx, cancel, h := c.events()
			defer cancel()
			return h.HandleTicketSubmission(ctx, connector.TicketSubmission{
				UserID:      interactionUserID(i),
				Title:       values[fieldTitle],
				Version:     values[fieldVersion],
				OS:          values[fieldOS],
				Description: values[fieldDescription],
			})
		})
	}
}

func (c *Connector) respond(s *discordgo.Session, i *discordgo.InteractionCreate, resp *discordgo.InteractionResponse) {
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		c.logger.Warn("interaction response failed", "interaction", i.ID, "error", err)
	}
}

// deferred acknowledges the interaction right away and edits in the
// handler's reply once it is ready.
func (c *Connector) deferred(s *discordgo.Session, i *discordgo.InteractionCreate, run func() connector.Response) {
	c.respond(s, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})

	resp := run()
	edit := &discordgo.WebhookEdit{Content: &resp.Content}
	if resp.Embed != nil {
		edit.Embeds = &[]*discordgo.MessageEmbed{fromEmbed(*resp.Embed)}
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		c.logger.Warn("interaction edit failed", "interaction", i.ID, "error", err)
	}
}

func ticketModal() *discordgo.InteractionResponseData {
	input := func(id, label, placeholder string, style discordgo.TextInputStyle, required bool, max int) discordgo.MessageComponent {
		return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    id,
				Label:       label,
				Style:       style,
				Placeholder: placeholder,
				Required:    required,
				MaxLength:   max,
			},
		}}
	}
	return &discordgo.InteractionResponseData{
		CustomID: modalTicket,
		Title:    "Open a support ticket",
		Components: []discordgo.MessageComponent{
			input(fieldTitle, "Title", "Short summary of the problem", discordgo.TextInputShort, true, 90),
			input(fieldVersion, "Version", "e.g. 1.4.2", discordgo.TextInputShort, false, 32),
			input(fieldOS, "Operating system", "e.g. Windows 11, macOS 15, Ubuntu 24.04", discordgo.TextInputShort, false, 64),
			input(fieldDescription, "Description", "What happened, and what did you expect?", discordgo.TextInputParagraph, true, 2000),
		},
	}
}

// modalValues flattens submitted text inputs into a map keyed by custom ID.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, comp := range data.Components {
		row, ok := comp.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if ti, ok := inner.(*discordgo.TextInput); ok {
				values[ti.CustomID] = ti.Value
			}
		}
	}
	return values
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func canManageThreads(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionManageThreads != 0
}
