package postgres

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

// listQuery appends filters and paging to a SELECT with positional args.
type listQuery struct {
	sb    strings.Builder
	args  []any
	where bool
}

func newListQuery(base string) *listQuery {
	q := &listQuery{}
	q.sb.WriteString(base)
	return q
}

// arg registers v and returns its placeholder.
func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// and adds a condition; format receives the placeholder for v.
func (q *listQuery) and(format string, v any) {
	if q.where {
		q.sb.WriteString(" AND ")
	} else {
		q.sb.WriteString(" WHERE ")
		q.where = true
	}
	q.sb.WriteString(fmt.Sprintf(format, q.arg(v)))
}

// filter applies the time range of opts against column.
func (q *listQuery) filter(opts domain.ListOpts, column string) {
	if opts.Since != nil {
		q.and(column+" >= %s", *opts.Since)
	}
	if opts.Until != nil {
		q.and(column+" <= %s", *opts.Until)
	}
}

// page adds ORDER BY and LIMIT/OFFSET.
func (q *listQuery) page(orderBy string, opts domain.ListOpts) {
	q.sb.WriteString(" ORDER BY " + orderBy)
	if opts.Limit > 0 {
		q.sb.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sb.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
}

func (q *listQuery) String() string { return q.sb.String() }

// numericArg encodes an optional price for a NUMERIC column.
func numericArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// numericScan decodes a NUMERIC selected as ::text.
func numericScan(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("postgres: parse numeric %q: %w", *s, err)
	}
	return decimal.NewNullDecimal(d), nil
}
