package reminder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"memo/internal/models/task"
)

type DueTaskSource interface {
	ListDueBetween(ctx context.Context, from, to time.Time, limit int) ([]*task.Task, error)
}

// Query выбирает незавершённые задачи со сроком в [now, now+lookahead].
// Хранилище отдаёт ближайшие limit задач, Due возвращает их поздними первыми.
type Query struct {
	source    DueTaskSource
	lookahead time.Duration
	limit     int
}

func NewQuery(source DueTaskSource, lookahead time.Duration, limit int) *Query {
	return &Query{source: source, lookahead: lookahead, limit: limit}
}

func (q *Query) Lookahead() time.Duration {
	return q.lookahead
}

func (q *Query) Due(ctx context.Context, now time.Time) ([]*task.Task, error) {
	to := now.Add(q.lookahead)

	tasks, err := q.source.ListDueBetween(ctx, now, to, q.limit)
	if err != nil {
		return nil, fmt.Errorf("выборка задач для напоминаний: %w", err)
	}

	// хранилище уже фильтрует, но граница окна не должна зависеть от него
	res := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.IsDueWithin(now, to) {
			res = append(res, t)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].DueAt.After(*res[j].DueAt)
	})
	return res, nil
}
