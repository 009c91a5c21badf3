package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toolkit-community/helpdesk/internal/connector"
	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

// step is one side effect of a transition. Only critical steps can abort
// the pipeline.
type step struct {
	name     string
	run      func(ctx context.Context) error
	critical bool
}

// run executes steps in order. Non-critical failures are logged and counted.
func (m *Machine) run(ctx context.Context, threadID string, steps []step) error {
	for _, s := range steps {
		err := s.run(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, errSuperseded) {
			return err
		}
		if s.critical {
			return fmt.Errorf("lifecycle: %s: %w", s.name, err)
		}
		m.Metrics.SideEffectFailures.WithLabelValues(s.name).Inc()
		m.Logger.Warn("side effect failed", "step", s.name, "thread", threadID, "error", err)
	}
	return nil
}

// transition describes a move of one ticket to a terminal status.
type transition struct {
	ticket       *protocol.Ticket
	status       protocol.TicketStatus
	trigger      string
	thread       *connector.Thread // nil when it could not be loaded
	threadGone   bool              // the thread no longer exists
	marker       string
	starter      func(*connector.Embed)
	confirm      connector.Embed
	archiveDelay time.Duration
}

func (m *Machine) apply(ctx context.Context, tr transition) error {
	id := tr.ticket.ThreadID
	persist := step{name: "persist", critical: true, run: func(ctx context.Context) error {
		changed, err := m.store.Transition(ctx, id, tr.status)
		if err != nil {
			return err
		}
		if !changed {
			return errSuperseded
		}
		m.Metrics.Transitions.WithLabelValues(string(tr.status), tr.trigger).Inc()
		return nil
	}}

	if tr.threadGone {
		return m.run(ctx, id, []step{persist})
	}

	var steps []step
	if tr.thread != nil {
		steps = append(steps,
			step{name: "summary_embed", run: func(ctx context.Context) error {
				starter, err := m.platform.FetchThreadStarter(ctx, tr.thread)
				if errors.Is(err, connector.ErrUnknownMessage) {
					return nil
				}
				if err != nil {
					return err
				}
				if len(starter.Embeds) == 0 {
					return nil
				}
				embed := starter.Embeds[0]
				tr.starter(&embed)
				return m.platform.EditEmbed(ctx, starter.ChannelID, starter.ID, embed)
			}},
			step{name: "rename", run: func(ctx context.Context) error {
				name := markName(tr.thread.Name, tr.marker)
				if name == tr.thread.Name {
					return nil
				}
				return m.platform.RenameThread(ctx, id, name)
			}},
		)
	}
	steps = append(steps,
		persist,
		step{name: "confirm", run: func(ctx context.Context) error {
			_, err := m.platform.Send(ctx, id, connector.OutboundMessage{Embeds: []connector.Embed{tr.confirm}})
			return err
		}},
		step{name: "archive", run: func(context.Context) error {
			m.clock.AfterFunc(tr.archiveDelay, func() { m.archive(id) })
			return nil
		}},
	)
	return m.run(ctx, id, steps)
}

func (m *Machine) archive(threadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := m.platform.ArchiveThread(ctx, threadID, true); err != nil {
		m.Metrics.SideEffectFailures.WithLabelValues("archive").Inc()
		m.Logger.Warn("archive failed", "step", "archive", "thread", threadID, "error", err)
	}
}
