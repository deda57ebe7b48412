package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLQuerier opens a short-lived database/sql pool per query.
//
// Tasks fire minutes or hours apart, so connections are not kept between runs.
type SQLQuerier struct {
	// Timeout bounds connect + query. 0 means only ctx applies.
	Timeout time.Duration
}

func (q SQLQuerier) Query(ctx context.Context, target Target, query string) (ResultSet, error) {
	driver, dsn, err := driverDSN(target)
	if err != nil {
		return ResultSet{}, err
	}
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return ResultSet{}, fmt.Errorf("open %s: %w", target.Type, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return ResultSet{}, fmt.Errorf("connect %s (%s): %w", target.Type, RedactURL(target.URL), err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return ResultSet{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) (ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return ResultSet{}, fmt.Errorf("columns: %w", err)
	}
	rs := ResultSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ResultSet{}, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, fmt.Errorf("rows: %w", err)
	}
	return rs, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, time.Time:
		return x
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
