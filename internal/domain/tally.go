package domain

import "fmt"

// TallyRow - per-option aggregate, derived from a VoteTable on every query.
type TallyRow struct {
	Option Option
	// Attendees - users with the option marked, in order of first appearance.
	Attendees []string
}

func (r TallyRow) Total() int {
	return len(r.Attendees)
}

// Tally - one row per option in configured order, Out row last.
type Tally struct {
	Rows []TallyRow
}

// Times returns the rows of the real options.
func (t Tally) Times() []TallyRow {
	if len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[:len(t.Rows)-1]
}

// Out returns the row of the Out option.
func (t Tally) Out() TallyRow {
	if len(t.Rows) == 0 {
		return TallyRow{Option: Option{Label: OutLabel}}
	}
	return t.Rows[len(t.Rows)-1]
}

// ComputeTally aggregates the table into rows. It panics if the row count
// does not match the table's options, which means the table is corrupted.
func ComputeTally(table *VoteTable) Tally {
	rows := make([]TallyRow, len(table.options))
	for i, option := range table.options {
		rows[i] = TallyRow{Option: option, Attendees: []string{}}
	}
	for _, user := range table.users {
		ballot := table.ballots[user]
		if len(ballot) != len(rows) {
			panic(fmt.Sprintf("ballot of %q has %d marks, poll has %d options", user, len(ballot), len(rows)))
		}
		for i, marked := range ballot {
			if marked {
				rows[i].Attendees = append(rows[i].Attendees, user)
			}
		}
	}
	return Tally{Rows: rows}
}

// WinnerKind - outcome class of a tally.
type WinnerKind int

const (
	NoWinner WinnerKind = iota
	UniqueWinner
	TiedWinners
)

func (k WinnerKind) String() string {
	switch k {
	case UniqueWinner:
		return "unique"
	case TiedWinners:
		return "tied"
	default:
		return "none"
	}
}

// Decision - leading choices of a tally. Leading is empty for NoWinner.
type Decision struct {
	Kind    WinnerKind
	Leading []TallyRow
}

// Winner returns the single leading row of a unique decision.
func (d Decision) Winner() (TallyRow, bool) {
	if d.Kind != UniqueWinner {
		return TallyRow{}, false
	}
	return d.Leading[0], true
}

// Labels returns the labels of the leading rows.
func (d Decision) Labels() []string {
	labels := make([]string, len(d.Leading))
	for i, row := range d.Leading {
		labels[i] = row.Option.Label
	}
	return labels
}

// Decide finds the leading choices among the real options. Out never wins.
func Decide(tally Tally) Decision {
	maxTotal := 0
	for _, row := range tally.Times() {
		maxTotal = max(maxTotal, row.Total())
	}
	if maxTotal == 0 {
		return Decision{Kind: NoWinner}
	}

	var leading []TallyRow
	for _, row := range tally.Times() {
		if row.Total() == maxTotal {
			leading = append(leading, row)
		}
	}
	if len(leading) == 1 {
		return Decision{Kind: UniqueWinner, Leading: leading}
	}
	return Decision{Kind: TiedWinners, Leading: leading}
}
