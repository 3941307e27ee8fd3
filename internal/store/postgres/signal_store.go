package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalSelectCols = `id::text, symbol, kind, source_kind, inferred,
	entry_price::text, tp1::text, tp2::text, tp3::text, stop_loss::text, observed_price::text,
	source_timestamp, timeframe, extractor, received_at`

func scanSignalRows(rows pgx.Rows) ([]domain.SignalEvent, error) {
	var out []domain.SignalEvent
	for rows.Next() {
		var (
			ev                             domain.SignalEvent
			kind, source                   string
			entry, tp1, tp2, tp3, sl, seen *string
		)
		if err := rows.Scan(
			&ev.ID, &ev.Symbol, &kind, &source, &ev.Inferred,
			&entry, &tp1, &tp2, &tp3, &sl, &seen,
			&ev.Timestamp, &ev.Timeframe, &ev.Extractor, &ev.ReceivedAt,
		); err != nil {
			return nil, err
		}
		ev.Kind = domain.SignalKind(kind)
		ev.SourceKind = domain.SignalKind(source)
		var err error
		if ev.EntryPrice, err = numericScan(entry); err != nil {
			return nil, err
		}
		if ev.TP1, err = numericScan(tp1); err != nil {
			return nil, err
		}
		if ev.TP2, err = numericScan(tp2); err != nil {
			return nil, err
		}
		if ev.TP3, err = numericScan(tp3); err != nil {
			return nil, err
		}
		if ev.StopLoss, err = numericScan(sl); err != nil {
			return nil, err
		}
		if ev.ObservedPrice, err = numericScan(seen); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Insert stores ev. Re-inserting an id already present is a no-op, so the
// recorder can replay the stream after a restart.
func (s *SignalStore) Insert(ctx context.Context, ev domain.SignalEvent) error {
	const query = `
		INSERT INTO signals (
			id, symbol, kind, source_kind, inferred,
			entry_price, tp1, tp2, tp3, stop_loss, observed_price,
			source_timestamp, timeframe, extractor, received_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.Symbol, string(ev.Kind), string(ev.SourceKind), ev.Inferred,
		numericArg(ev.EntryPrice), numericArg(ev.TP1), numericArg(ev.TP2), numericArg(ev.TP3),
		numericArg(ev.StopLoss), numericArg(ev.ObservedPrice),
		ev.Timestamp, ev.Timeframe, ev.Extractor, ev.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", ev.ID, err)
	}
	return nil
}

// ListRecent returns signals newest first, filtered by opts.
func (s *SignalStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.SignalEvent, error) {
	q := newListQuery("SELECT " + signalSelectCols + " FROM signals")
	if opts.Symbol != "" {
		q.and("symbol = %s", opts.Symbol)
	}
	q.filter(opts, "received_at")
	q.page("received_at DESC", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer rows.Close()

	events, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan signals: %w", err)
	}
	return events, nil
}

// ListBefore returns every signal received before the cutoff, oldest first.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SignalEvent, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+signalSelectCols+" FROM signals WHERE received_at < $1 ORDER BY received_at ASC",
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before %v: %w", before, err)
	}
	defer rows.Close()

	events, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan signals: %w", err)
	}
	return events, nil
}

// DeleteBefore removes signals received before the cutoff and returns the
// number of rows deleted.
func (s *SignalStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM signals WHERE received_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before %v: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.SignalStore = (*SignalStore)(nil)
