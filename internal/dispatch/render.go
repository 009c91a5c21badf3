package dispatch

import (
	"fmt"
	"strings"

	"github.com/toolkit-community/helpdesk/internal/connector"
	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

// MaxRenderedIssues caps how many remediations one reply shows.
const MaxRenderedIssues = 3

// IssueFieldPrefix starts the name of every issue field.
const IssueFieldPrefix = "⚠️ "

// diagnosisPrompt marks an embed as a diagnosis reply awaiting a reaction.
const diagnosisPrompt = "Did this resolve your issue? React with"

// Render builds the reply embed for a non-empty set of issues.
func Render(issues []protocol.Issue) connector.Embed {
	plural := ""
	if len(issues) > 1 {
		plural = "s"
	}

	embed := connector.Embed{
		Title:       "🤖 Detected Issue" + plural,
		Description: "I found the following issue" + plural + " in your log:",
		Color:       connector.ColorPending,
		Footer:      fmt.Sprintf("%s %s or %s", diagnosisPrompt, connector.EmojiResolved, connector.EmojiNotResolved),
	}

	shown := issues
	if len(shown) > MaxRenderedIssues {
		shown = shown[:MaxRenderedIssues]
	}
	for _, is := range shown {
		embed.Fields = append(embed.Fields, connector.EmbedField{
			Name:  IssueFieldPrefix + is.Name,
			Value: is.Remediation,
		})
	}
	if extra := len(issues) - len(shown); extra > 0 {
		embed.Fields = append(embed.Fields, connector.EmbedField{
			Name:  "​",
			Value: fmt.Sprintf("*...and %d more issue(s). Fix the above first.*", extra),
		})
	}
	return embed
}

// IsDiagnosis reports whether embed is a diagnosis reply still waiting for
// the user's confirmation.
func IsDiagnosis(embed connector.Embed) bool {
	return strings.Contains(embed.Footer, diagnosisPrompt)
}
