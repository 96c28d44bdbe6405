package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQuestion - question shown on the daily lunch poll.
const DefaultQuestion = "What time do you want to have lunch today?"

// Status - lifecycle state of a poll.
type Status int

const (
	StatusOpen Status = iota + 1
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "none"
	}
}

// Poll - one lunch poll instance living in a scope (channel).
type Poll struct {
	ID       string
	Scope    string
	Question string
	Status   Status
	OpenedAt time.Time
	ClosedAt time.Time
	// Table - ballots of the poll, owned exclusively by it.
	Table *VoteTable
}

func NewPoll(scope, question string, labels []string) *Poll {
	if question == "" {
		question = DefaultQuestion
	}
	return &Poll{
		ID:       uuid.NewString(),
		Scope:    scope,
		Question: question,
		Status:   StatusOpen,
		OpenedAt: time.Now(),
		Table:    NewVoteTable(labels),
	}
}

func (p *Poll) IsActive() bool {
	return p.Status == StatusOpen
}

// Result - finalized outcome of a closed poll.
type Result struct {
	PollID   string
	Scope    string
	Question string
	ClosedAt time.Time
	Tally    Tally
	Decision Decision
}

func NewResult(poll *Poll, tally Tally) *Result {
	return &Result{
		PollID:   poll.ID,
		Scope:    poll.Scope,
		Question: poll.Question,
		ClosedAt: poll.ClosedAt,
		Tally:    tally,
		Decision: Decide(tally),
	}
}
