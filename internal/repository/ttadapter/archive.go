package ttadapter

import (
	"context"
	"fmt"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/tarantool/go-tarantool/v2"
)

const (
	resultSpace = "poll_results"
	// scopeIndex - non-unique TREE index on (scope, closed_at).
	scopeIndex = "scope"
)

type ResultArchive struct {
	conn *tarantool.Connection
}

func NewResultArchive(conn *tarantool.Connection) *ResultArchive {
	return &ResultArchive{
		conn: conn,
	}
}

func (r *ResultArchive) Save(ctx context.Context, result *domain.Result) error {
	if _, err := r.conn.Do(
		tarantool.NewInsertRequest(resultSpace).
			Context(ctx).
			Tuple(NewResultModel(result)),
	).Get(); err != nil {
		return fmt.Errorf("could not insert poll result in tarantool: %w", err)
	}
	return nil
}

// Recent returns up to limit results of the scope, newest first.
func (r *ResultArchive) Recent(ctx context.Context, scope string, limit int) ([]*domain.Result, error) {
	var res []ResultModel
	if err := r.conn.Do(
		tarantool.NewSelectRequest(resultSpace).
			Context(ctx).
			Index(scopeIndex).
			Iterator(tarantool.IterReq).
			Limit(uint32(max(limit, 0))).
			Key(tarantool.StringKey{S: scope}),
	).GetTyped(&res); err != nil {
		return nil, fmt.Errorf("could not select typed poll results in tarantool: %w", err)
	}

	results := make([]*domain.Result, 0, len(res))
	for i := range res {
		result, err := res[i].ToResult()
		if err != nil {
			return nil, fmt.Errorf("could not decode poll result %s: %w", res[i].ID, err)
		}
		results = append(results, result)
	}
	return results, nil
}
