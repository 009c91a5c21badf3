// Package connectortest provides an in-memory connector.Platform for tests.
package connectortest

import (
	"context"
	"fmt"
	"sync"

	"github.com/toolkit-community/helpdesk/internal/connector"
)

// BotID is the user ID the fake platform posts as.
const BotID = "bot"

// Sent records one Send call.
type Sent struct {
	ChannelID string
	Message   connector.OutboundMessage
	ID        string
}

// Platform is an in-memory connector.Platform. Channels, threads and
// messages are plain maps; every call is recorded. Set Fail[op] to make the
// named operation return an error.
type Platform struct {
	mu sync.Mutex

	Threads  map[string]*connector.Thread
	Messages map[string]*connector.Message // keyed by message ID
	Fail     map[string]error

	Sentlog   []Sent
	Edits     map[string][]connector.Embed // messageID -> edits
	Reactions map[string][]string          // messageID -> emojis
	Cleared   []string                     // messageIDs whose reactions were removed
	Renames   map[string][]string          // threadID -> names
	Archived  map[string]bool
	Deleted   []string

	nextID int
}

// New returns an empty fake platform.
func New() *Platform {
	return &Platform{
		Threads:   make(map[string]*connector.Thread),
		Messages:  make(map[string]*connector.Message),
		Fail:      make(map[string]error),
		Edits:     make(map[string][]connector.Embed),
		Reactions: make(map[string][]string),
		Renames:   make(map[string][]string),
		Archived:  make(map[string]bool),
	}
}

// AddThread registers a thread started from a starter message with the
// same ID in parent, mirroring how forum-less threads work on Discord.
func (p *Platform) AddThread(id, parentID, name string, starter *connector.Embed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Threads[id] = &connector.Thread{ID: id, ParentID: parentID, Name: name}
	if starter != nil {
		p.Messages[id] = &connector.Message{ID: id, ChannelID: parentID, AuthorID: BotID, AuthorBot: true,
			Embeds: []connector.Embed{*starter}}
	}
}

// AddMessage stores a message so FetchMessage can find it.
func (p *Platform) AddMessage(m connector.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages[m.ID] = &m
}

// SentTo returns messages sent to channelID in order.
func (p *Platform) SentTo(channelID string) []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Sent
	for _, s := range p.Sentlog {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out
}

// ThreadName returns the current name of a thread.
func (p *Platform) ThreadName(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if th, ok := p.Threads[id]; ok {
		return th.Name
	}
	return ""
}

// IsArchived reports whether ArchiveThread(id, true) was called.
func (p *Platform) IsArchived(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Archived[id]
}

func (p *Platform) fail(op string) error {
	if err, ok := p.Fail[op]; ok {
		return err
	}
	return nil
}

func (p *Platform) BotUserID() string { return BotID }

func (p *Platform) Send(_ context.Context, channelID string, msg connector.OutboundMessage) (*connector.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("send"); err != nil {
		return nil, err
	}
	p.nextID++
	id := fmt.Sprintf("m%d", p.nextID)
	m := &connector.Message{ID: id, ChannelID: channelID, AuthorID: BotID, AuthorBot: true,
		Content: msg.Content, Embeds: msg.Embeds, ReferenceID: msg.ReplyTo}
	p.Messages[id] = m
	p.Sentlog = append(p.Sentlog, Sent{ChannelID: channelID, Message: msg, ID: id})
	cp := *m
	return &cp, nil
}

func (p *Platform) EditEmbed(_ context.Context, _, messageID string, embed connector.Embed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("edit"); err != nil {
		return err
	}
	m, ok := p.Messages[messageID]
	if !ok {
		return connector.ErrUnknownMessage
	}
	m.Embeds = []connector.Embed{embed}
	p.Edits[messageID] = append(p.Edits[messageID], embed)
	return nil
}

func (p *Platform) FetchMessage(_ context.Context, _, messageID string) (*connector.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("fetch_message"); err != nil {
		return nil, err
	}
	m, ok := p.Messages[messageID]
	if !ok {
		return nil, connector.ErrUnknownMessage
	}
	cp := *m
	return &cp, nil
}

func (p *Platform) FetchThread(_ context.Context, threadID string) (*connector.Thread, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("fetch_thread"); err != nil {
		return nil, err
	}
	th, ok := p.Threads[threadID]
	if !ok {
		return nil, connector.ErrUnknownChannel
	}
	cp := *th
	return &cp, nil
}

func (p *Platform) FetchThreadStarter(_ context.Context, thread *connector.Thread) (*connector.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("fetch_starter"); err != nil {
		return nil, err
	}
	m, ok := p.Messages[thread.ID]
	if !ok {
		return nil, connector.ErrUnknownMessage
	}
	cp := *m
	return &cp, nil
}

func (p *Platform) StartThread(_ context.Context, channelID, messageID, name string) (*connector.Thread, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("start_thread"); err != nil {
		return nil, err
	}
	th := &connector.Thread{ID: messageID, ParentID: channelID, Name: name}
	p.Threads[messageID] = th
	cp := *th
	return &cp, nil
}

func (p *Platform) AddReaction(_ context.Context, _, messageID, emoji string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("react"); err != nil {
		return err
	}
	p.Reactions[messageID] = append(p.Reactions[messageID], emoji)
	return nil
}

func (p *Platform) RemoveAllReactions(_ context.Context, _, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("clear_reactions"); err != nil {
		return err
	}
	delete(p.Reactions, messageID)
	p.Cleared = append(p.Cleared, messageID)
	return nil
}

func (p *Platform) RenameThread(_ context.Context, threadID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("rename"); err != nil {
		return err
	}
	th, ok := p.Threads[threadID]
	if !ok {
		return connector.ErrUnknownChannel
	}
	th.Name = name
	p.Renames[threadID] = append(p.Renames[threadID], name)
	return nil
}

func (p *Platform) ArchiveThread(_ context.Context, threadID string, archived bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("archive"); err != nil {
		return err
	}
	th, ok := p.Threads[threadID]
	if !ok {
		return connector.ErrUnknownChannel
	}
	th.Archived = archived
	p.Archived[threadID] = archived
	return nil
}

func (p *Platform) DeleteMessage(_ context.Context, _, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("delete"); err != nil {
		return err
	}
	delete(p.Messages, messageID)
	p.Deleted = append(p.Deleted, messageID)
	return nil
}

var _ connector.Platform = (*Platform)(nil)
