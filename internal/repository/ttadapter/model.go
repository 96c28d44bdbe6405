package ttadapter

import (
	"fmt"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ResultModel - tuple of the poll_results space:
// [id, scope, closed_at, poll_id, question, options, kind, winners].
type ResultModel struct {
	ID       string
	Scope    string
	ClosedAt int64
	PollID   string
	Question string
	Options  []OptionModel
	Kind     int
	// Winners - indexes of the leading options.
	Winners []int
}

// OptionModel - one tally row: [label, attendees].
type OptionModel struct {
	_msgpack  struct{} `msgpack:",as_array"`
	Label     string
	Attendees []string
}

const resultModelFields = 8

func NewResultModel(result *domain.Result) *ResultModel {
	options := make([]OptionModel, len(result.Tally.Rows))
	for i, row := range result.Tally.Rows {
		options[i] = OptionModel{
			Label:     row.Option.Label,
			Attendees: row.Attendees,
		}
	}
	winners := make([]int, len(result.Decision.Leading))
	for i, row := range result.Decision.Leading {
		winners[i] = row.Option.Index
	}

	return &ResultModel{
		ID:       uuid.NewString(),
		Scope:    result.Scope,
		ClosedAt: result.ClosedAt.Unix(),
		PollID:   result.PollID,
		Question: result.Question,
		Options:  options,
		Kind:     int(result.Decision.Kind),
		Winners:  winners,
	}
}

func (r *ResultModel) ToResult() (*domain.Result, error) {
	rows := make([]domain.TallyRow, len(r.Options))
	for i, option := range r.Options {
		attendees := option.Attendees
		if attendees == nil {
			attendees = []string{}
		}
		rows[i] = domain.TallyRow{
			Option:    domain.Option{Index: i, Label: option.Label},
			Attendees: attendees,
		}
	}

	decision := domain.Decision{Kind: domain.WinnerKind(r.Kind)}
	for _, index := range r.Winners {
		if index < 0 || index >= len(rows) {
			return nil, fmt.Errorf("winner index %d out of %d options", index, len(rows))
		}
		decision.Leading = append(decision.Leading, rows[index])
	}

	return &domain.Result{
		PollID:   r.PollID,
		Scope:    r.Scope,
		Question: r.Question,
		ClosedAt: time.Unix(r.ClosedAt, 0),
		Tally:    domain.Tally{Rows: rows},
		Decision: decision,
	}, nil
}

func (r *ResultModel) EncodeMsgpack(e *msgpack.Encoder) error {
	if err := e.EncodeArrayLen(resultModelFields); err != nil {
		return err
	}
	if err := e.EncodeString(r.ID); err != nil {
		return err
	}
	if err := e.EncodeString(r.Scope); err != nil {
		return err
	}
	if err := e.EncodeInt(r.ClosedAt); err != nil {
		return err
	}
	if err := e.EncodeString(r.PollID); err != nil {
		return err
	}
	if err := e.EncodeString(r.Question); err != nil {
		return err
	}
	if err := e.Encode(r.Options); err != nil {
		return err
	}
	if err := e.EncodeInt(int64(r.Kind)); err != nil {
		return err
	}
	if err := e.Encode(r.Winners); err != nil {
		return err
	}
	return nil
}

func (r *ResultModel) DecodeMsgpack(d *msgpack.Decoder) error {
	var err error
	var l int
	if l, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	if l != resultModelFields {
		return fmt.Errorf("array len doesn't match: %d", l)
	}
	if r.ID, err = d.DecodeString(); err != nil {
		return err
	}
	if r.Scope, err = d.DecodeString(); err != nil {
		return err
	}
	if r.ClosedAt, err = d.DecodeInt64(); err != nil {
		return err
	}
	if r.PollID, err = d.DecodeString(); err != nil {
		return err
	}
	if r.Question, err = d.DecodeString(); err != nil {
		return err
	}
	if l, err = d.DecodeArrayLen(); err != nil {
		return err
	}
	r.Options = make([]OptionModel, max(l, 0))
	for i := range r.Options {
		if err = d.Decode(&r.Options[i]); err != nil {
			return err
		}
	}
	if r.Kind, err = d.DecodeInt(); err != nil {
		return err
	}
	if err = d.Decode(&r.Winners); err != nil {
		return err
	}
	return nil
}
