package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresClient talks to the backend's Postgres database directly.
// Column lists come from the payload, so every identifier is sanitized.
type PostgresClient struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresClient(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresClient, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to backend database: %w", err)
	}
	return &PostgresClient{db: pool, logger: logger}, nil
}

// NewPostgresClientFromPool wraps an existing pool.
func NewPostgresClientFromPool(pool *pgxpool.Pool, logger *zap.Logger) *PostgresClient {
	return &PostgresClient{db: pool, logger: logger}
}

func (c *PostgresClient) Close() {
	c.db.Close()
}

func (c *PostgresClient) Insert(ctx context.Context, table domain.Table, row domain.Payload) error {
	cols, args, err := rowColumns(row, false)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		ident(string(table)), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	_, err = c.db.Exec(ctx, sql, args...)
	return c.mapError("insert", table, err)
}

func (c *PostgresClient) Update(ctx context.Context, table domain.Table, id string, patch domain.Payload) error {
	cols, args, err := rowColumns(patch, true)
	if err != nil {
		return err
	}

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	args = append(args, id)

	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`,
		ident(string(table)), strings.Join(sets, ", "), len(args))
	_, err = c.db.Exec(ctx, sql, args...)
	return c.mapError("update", table, err)
}

func (c *PostgresClient) Delete(ctx context.Context, table domain.Table, id string) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, ident(string(table)))
	_, err := c.db.Exec(ctx, sql, id)
	return c.mapError("delete", table, err)
}

func (c *PostgresClient) Select(ctx context.Context, table domain.Table, filter domain.Filter) ([]domain.Payload, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conditions []string
	var args []any
	for _, k := range keys {
		args = append(args, filter[k])
		conditions = append(conditions, fmt.Sprintf("%s = $%d", ident(k), len(args)))
	}

	sql := fmt.Sprintf(`SELECT * FROM %s`, ident(string(table)))
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, c.mapError("select", table, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, c.mapError("select", table, err)
	}
	for _, r := range records {
		for k, v := range r {
			// uuid columns scan as raw bytes
			if b, ok := v.([16]byte); ok {
				r[k] = uuid.UUID(b).String()
			}
		}
	}
	return FromRows(table, records)
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	var n int
	err := c.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM (SELECT 1 FROM %s LIMIT 1) h`, ident(string(domain.TableHeartbeat))),
	).Scan(&n)
	return c.mapError("ping", domain.TableHeartbeat, err)
}

func (c *PostgresClient) mapError(op string, table domain.Table, err error) error {
	if err == nil {
		return nil
	}

	var mapped error
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		mapped = domain.ErrTimeout
	case errors.As(err, &pgErr):
		mapped = pgCodeError(pgErr.Code)
		c.logger.Warn("backend rejected call",
			zap.String("op", op),
			zap.String("table", string(table)),
			zap.String("pg_code", pgErr.Code),
			zap.String("message", pgErr.Message))
	case pgconn.Timeout(err):
		mapped = domain.ErrTimeout
	default:
		mapped = domain.ErrUnreachable
	}
	return fmt.Errorf("%s %s: %w: %v", op, table, mapped, err)
}

// pgCodeError maps a SQLSTATE to the domain taxonomy.
func pgCodeError(code string) error {
	switch {
	case code == "42P01", code == "42501", code == "28P01", code == "28000":
		// undefined table, insufficient privilege, auth failures
		return domain.ErrRejected
	case code == "57014":
		return domain.ErrTimeout
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57"):
		return domain.ErrServer
	default:
		// class 23 (integrity) and data exceptions
		return domain.ErrConflict
	}
}

func rowColumns(p domain.Payload, skipID bool) ([]string, []any, error) {
	row, err := ToRow(p)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if skipID {
		delete(row, "id")
	}

	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	args := make([]any, len(names))
	for i, k := range names {
		cols[i] = ident(k)
		args[i] = row[k]
	}
	return cols, args, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
