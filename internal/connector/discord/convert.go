package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/toolkit-community/helpdesk/internal/connector"
)

func toMessage(m *discordgo.Message) connector.Message {
	out := connector.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorBot = m.Author.Bot
	}
	if m.MessageReference != nil {
		out.ReferenceID = m.MessageReference.MessageID
	}
	for _, e := range m.Embeds {
		out.Embeds = append(out.Embeds, toEmbed(e))
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, connector.Attachment{
			Name:        a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return out
}

// toReaction leaves UserBot unset; see Connector.reactorIsBot.
func toReaction(r *discordgo.MessageReactionAdd) connector.Reaction {
	return connector.Reaction{
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.Name,
	}
}

func toThread(ch *discordgo.Channel) *connector.Thread {
	t := &connector.Thread{ID: ch.ID, ParentID: ch.ParentID, Name: ch.Name}
	if ch.ThreadMetadata != nil {
		t.Archived = ch.ThreadMetadata.Archived
	}
	return t
}

func toEmbed(e *discordgo.MessageEmbed) connector.Embed {
	out := connector.Embed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, connector.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != nil {
		out.Footer = e.Footer.Text
	}
	if e.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
			out.Timestamp = ts
		}
	}
	return out
}

func fromEmbed(e connector.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return out
}
