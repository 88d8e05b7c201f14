package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"EMSpark/internal/domain/models"
	domrepo "EMSpark/internal/domain/repository"
)

func day(y int, m time.Month, d int) models.Date { return models.NewDate(y, m, d) }

// fakeRows replays column maps through the pgx.Rows interface.
type fakeRows struct {
	cols []string
	data [][]any
	i    int
}

func newFakeRows(cols []string, data ...[]any) *fakeRows {
	return &fakeRows{cols: cols, data: data, i: -1}
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) Next() bool {
	r.i++
	return r.i < len(r.data)
}
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}
func (r *fakeRows) Scan(dest ...any) error {
	for i := range dest {
		if p, ok := dest[i].(*any); ok {
			*p = r.data[r.i][i]
		}
	}
	return nil
}
func (r *fakeRows) Values() ([]any, error) { return r.data[r.i], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type recordedQuery struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	queries []recordedQuery
	respond func(sql string, args []any) (pgx.Rows, error)
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.queries = append(q.queries, recordedQuery{sql: sql, args: args})
	return q.respond(sql, args)
}

func (q *fakeQuerier) Ping(context.Context) error { return nil }

// countingStore is an in-memory PriceStore that counts fetches.
type countingStore struct {
	rows  []models.PriceRow
	calls int
	err   error
}

func (s *countingStore) Name() string { return "fake" }
func (s *countingStore) Fetch(context.Context, domrepo.FetchRequest) ([]models.PriceRow, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}
func (s *countingStore) Health(context.Context) error { return nil }
func (s *countingStore) Close() error                 { return nil }
