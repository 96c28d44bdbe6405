package domain

import (
	"errors"
	"fmt"
)

// OutLabel - label of the synthetic "not attending" option.
const OutLabel = "Out"

var (
	ErrInvalidAction = errors.New("invalid action")
	ErrNoSuchOption  = fmt.Errorf("%w: there is no such option in poll", ErrInvalidAction)
)

// Option - one selectable column of a poll. The Out option is always last.
type Option struct {
	Index int
	Label string
}

// VoteTable - ballots of one poll: a fixed-size mark vector per user,
// indexed by option, with Out as the last column.
// VoteTable is not safe for concurrent use, its owner serializes access.
type VoteTable struct {
	options []Option
	users   []string
	ballots map[string][]bool
}

// NewVoteTable creates an empty table over the given time labels
// and appends the Out column.
func NewVoteTable(labels []string) *VoteTable {
	options := make([]Option, 0, len(labels)+1)
	for i, label := range labels {
		options = append(options, Option{Index: i, Label: label})
	}
	options = append(options, Option{Index: len(labels), Label: OutLabel})

	return &VoteTable{
		options: options,
		ballots: make(map[string][]bool),
	}
}

// Options returns all columns including Out.
func (t *VoteTable) Options() []Option {
	return append([]Option(nil), t.options...)
}

// TimeCount returns the number of real (non-Out) options.
func (t *VoteTable) TimeCount() int {
	return len(t.options) - 1
}

func (t *VoteTable) outIndex() int {
	return len(t.options) - 1
}

// Users returns user ids in order of first appearance.
func (t *VoteTable) Users() []string {
	return append([]string(nil), t.users...)
}

// Ballot returns a copy of the user's marks, nil if the user never voted.
func (t *VoteTable) Ballot(user string) []bool {
	row, ok := t.ballots[user]
	if !ok {
		return nil
	}
	return append([]bool(nil), row...)
}

// Marked reports whether the user has the option marked.
func (t *VoteTable) Marked(user string, option int) bool {
	row, ok := t.ballots[user]
	if !ok || option < 0 || option >= len(row) {
		return false
	}
	return row[option]
}

func (t *VoteTable) row(user string) []bool {
	row, ok := t.ballots[user]
	if !ok {
		row = make([]bool, len(t.options))
		t.ballots[user] = row
		t.users = append(t.users, user)
	}
	return row
}

// SetChoice marks a time for the user and clears Out. Other marked times are kept.
func (t *VoteTable) SetChoice(user string, option int) error {
	if option < 0 || option >= t.TimeCount() {
		return fmt.Errorf("%w: %d", ErrNoSuchOption, option)
	}
	row := t.row(user)
	row[option] = true
	row[t.outIndex()] = false
	return nil
}

// MarkOut clears every time of the user and marks Out.
func (t *VoteTable) MarkOut(user string) {
	row := t.row(user)
	for i := 0; i < t.TimeCount(); i++ {
		row[i] = false
	}
	row[t.outIndex()] = true
}

// MarkAll marks every time of the user and clears Out.
func (t *VoteTable) MarkAll(user string) {
	row := t.row(user)
	for i := 0; i < t.TimeCount(); i++ {
		row[i] = true
	}
	row[t.outIndex()] = false
}

// ClearUser removes all marks of the user. With timesOnly, Out is left untouched.
func (t *VoteTable) ClearUser(user string, timesOnly bool) {
	row := t.row(user)
	for i := 0; i < t.TimeCount(); i++ {
		row[i] = false
	}
	if !timesOnly {
		row[t.outIndex()] = false
	}
}

// Apply performs the action for the user as one unit.
func (t *VoteTable) Apply(user string, action Action) error {
	switch action.Kind {
	case ActionSelect:
		return t.SetChoice(user, action.Option)
	case ActionDecline:
		t.MarkOut(user)
	case ActionFlexible:
		t.MarkAll(user)
	case ActionClear:
		t.ClearUser(user, false)
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidAction, action.Kind)
	}
	return nil
}
