package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrNoOptions       = errors.New("poll needs at least one option")
	ErrPollNotFound    = errors.New("poll not found")
	ErrPollIsNotActive = errors.New("poll is not active")
	ErrStalePoll       = errors.New("poll was replaced by a newer one")
	ErrNoSuchOption    = domain.ErrNoSuchOption
)

// ResultArchive keeps finalized results of closed polls.
type ResultArchive interface {
	Save(ctx context.Context, result *domain.Result) error
	Recent(ctx context.Context, scope string, limit int) ([]*domain.Result, error)
}

// Vote - one voter action delivered by the transport.
type Vote struct {
	// PollID - poll the action was issued for, empty means the scope's current poll.
	PollID string
	UserID string
	Action domain.Action
}

// Snapshot - consistent copy of a poll's state and live tally.
type Snapshot struct {
	PollID   string
	Scope    string
	Question string
	Status   domain.Status
	Options  []domain.Option
	Tally    domain.Tally
}

type scopedPoll struct {
	mu     sync.Mutex
	poll   *domain.Poll
	result *domain.Result
}

func (s *scopedPoll) snapshot() Snapshot {
	return Snapshot{
		PollID:   s.poll.ID,
		Scope:    s.poll.Scope,
		Question: s.poll.Question,
		Status:   s.poll.Status,
		Options:  s.poll.Table.Options(),
		Tally:    domain.ComputeTally(s.poll.Table),
	}
}

// Lifecycle owns the current poll of every scope and serializes
// all mutations of a scope's ballots through the poll's lock.
type Lifecycle struct {
	mu      sync.Mutex
	polls   map[string]*scopedPoll
	archive ResultArchive
	now     func() time.Time
}

func NewLifecycle(archive ResultArchive) *Lifecycle {
	if archive == nil {
		archive = noopArchive{}
	}
	return &Lifecycle{
		polls:   make(map[string]*scopedPoll),
		archive: archive,
		now:     time.Now,
	}
}

// Open starts a poll in the scope. If the scope already has an open poll
// it is kept and returned with opened == false.
func (l *Lifecycle) Open(_ context.Context, scope, question string, labels []string) (Snapshot, bool, error) {
	if len(labels) == 0 {
		return Snapshot{}, false, ErrNoOptions
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.polls[scope]; ok {
		current.mu.Lock()
		if current.poll.IsActive() {
			snap := current.snapshot()
			current.mu.Unlock()
			return snap, false, nil
		}
		current.mu.Unlock()
	}

	poll := domain.NewPoll(scope, question, labels)
	poll.OpenedAt = l.now()
	entry := &scopedPoll{poll: poll}
	l.polls[scope] = entry

	return entry.snapshot(), true, nil
}

// RecordVote applies the vote to the scope's open poll and returns the updated snapshot.
func (l *Lifecycle) RecordVote(_ context.Context, scope string, vote Vote) (Snapshot, error) {
	if vote.UserID == "" {
		return Snapshot{}, ErrInvalidUserID
	}

	entry, err := l.entry(scope)
	if err != nil {
		return Snapshot{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if vote.PollID != "" && vote.PollID != entry.poll.ID {
		return Snapshot{}, ErrStalePoll
	}
	if !entry.poll.IsActive() {
		return Snapshot{}, ErrPollIsNotActive
	}
	if err = entry.poll.Table.Apply(vote.UserID, vote.Action); err != nil {
		return Snapshot{}, fmt.Errorf("could not apply %v: %w", vote.Action, err)
	}
	return entry.snapshot(), nil
}

// Close finalizes the scope's open poll. Closing an already closed poll
// returns its stored result with closed == false; a scope without poll
// returns ErrPollNotFound.
func (l *Lifecycle) Close(ctx context.Context, scope string) (*domain.Result, bool, error) {
	entry, err := l.entry(scope)
	if err != nil {
		return nil, false, err
	}

	entry.mu.Lock()
	if !entry.poll.IsActive() {
		result := entry.result
		entry.mu.Unlock()
		return result, false, nil
	}
	entry.poll.Status = domain.StatusClosed
	entry.poll.ClosedAt = l.now()
	entry.result = domain.NewResult(entry.poll, domain.ComputeTally(entry.poll.Table))
	result := entry.result
	entry.mu.Unlock()

	if err = l.archive.Save(ctx, result); err != nil {
		log.Error().Err(err).Str("poll", result.PollID).Msg("Could not archive poll result")
	}
	return result, true, nil
}

// Current returns a snapshot of the scope's poll, open or closed.
func (l *Lifecycle) Current(_ context.Context, scope string) (Snapshot, error) {
	entry, err := l.entry(scope)
	if err != nil {
		return Snapshot{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.snapshot(), nil
}

// History returns the newest archived results of the scope.
func (l *Lifecycle) History(ctx context.Context, scope string, limit int) ([]*domain.Result, error) {
	results, err := l.archive.Recent(ctx, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve poll history: %w", err)
	}
	return results, nil
}

func (l *Lifecycle) entry(scope string) (*scopedPoll, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.polls[scope]
	if !ok {
		return nil, ErrPollNotFound
	}
	return entry, nil
}

type noopArchive struct{}

func (noopArchive) Save(context.Context, *domain.Result) error { return nil }

func (noopArchive) Recent(context.Context, string, int) ([]*domain.Result, error) {
	return nil, nil
}
