// Package render turns poll tallies and menus into chat messages (Mattermost markdown).
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
)

const noDecisionText = "No decision: nobody picked a time."

func writeRow(b *strings.Builder, row domain.TallyRow) {
	fmt.Fprintf(b, "%s (%d):", row.Option.Label, row.Total())
	if row.Total() > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(row.Attendees, ", "))
	}
}

// LiveView renders the provisional tally, one line per option.
func LiveView(question string, tally domain.Tally) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", question)
	for _, row := range tally.Rows {
		b.WriteString("\n")
		writeRow(&b, row)
	}
	return b.String()
}

// FinalView renders the announcement of a closed poll.
func FinalView(question string, tally domain.Tally, decision domain.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", question)

	switch decision.Kind {
	case domain.UniqueWinner:
		winner, _ := decision.Winner()
		fmt.Fprintf(&b, "Chosen: **%s**", winner.Option.Label)
		if winner.Total() > 0 {
			fmt.Fprintf(&b, " with %s", strings.Join(winner.Attendees, ", "))
		}
	case domain.TiedWinners:
		b.WriteString("Tied, equally ranked choices:")
		for _, row := range decision.Leading {
			b.WriteString("\n- ")
			writeRow(&b, row)
		}
	default:
		b.WriteString(noDecisionText)
	}

	if out := tally.Out(); out.Total() > 0 {
		b.WriteString("\n\n")
		writeRow(&b, out)
	}
	return b.String()
}

// ResultView is FinalView for an archived result.
func ResultView(result *domain.Result) string {
	return FinalView(result.Question, result.Tally, result.Decision)
}

// HistoryView lists archived decisions, newest first.
func HistoryView(results []*domain.Result) string {
	if len(results) == 0 {
		return "No finished polls yet."
	}

	var b strings.Builder
	b.WriteString("**Recent lunch decisions**")
	for _, result := range results {
		fmt.Fprintf(&b, "\n- %s: ", result.ClosedAt.Format(time.DateOnly))
		switch result.Decision.Kind {
		case domain.UniqueWinner, domain.TiedWinners:
			b.WriteString(strings.Join(result.Decision.Labels(), " / "))
		default:
			b.WriteString("no decision")
		}
	}
	return b.String()
}
