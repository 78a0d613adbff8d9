package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"github.com/lib/pq"
	"golang.org/x/exp/slog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound   = errors.New("database: record not found")
	ErrEmailTaken = errors.New("database: email already registered")
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// dialect holds what differs between the supported drivers. Queries are
// written with '?' placeholders and rebound for drivers that number them.
type dialect struct {
	driver          string
	schema          string
	numberedParams  bool
	uniqueViolation func(err error) bool
}

var (
	postgresDialect = dialect{
		driver:         "postgres",
		schema:         postgresSchema,
		numberedParams: true,
		uniqueViolation: func(err error) bool {
			var pqErr *pq.Error
			return errors.As(err, &pqErr) && pqErr.Code == "23505"
		},
	}
	sqliteDialect = dialect{
		driver: "sqlite",
		schema: sqliteSchema,
		uniqueViolation: func(err error) bool {
			var sqlErr *sqlite.Error
			if !errors.As(err, &sqlErr) {
				return false
			}

			// Without extended result codes the primary code is all we get.
			return sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
				(sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqlErr.Error(), "UNIQUE"))
		},
	}
)

func (d dialect) rebind(query string) string {
	if !d.numberedParams {
		return query
	}

	var (
		b strings.Builder
		n int
	)

	b.Grow(len(query) + 8)

	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}

		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}

	return b.String()
}

type SQLDatabase struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLDatabase opens the database selected by cfg, pings it and applies the
// embedded schema.
func NewSQLDatabase(ctx context.Context, cfg DatabaseConfig) (*SQLDatabase, error) {
	var d dialect

	switch cfg.Driver {
	case DriverPostgres:
		d = postgresDialect
	case DriverSQLite:
		d = sqliteDialect
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(d.driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	if d.driver == sqliteDialect.driver {
		// One writer at a time keeps SQLite from returning SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	s := &SQLDatabase{db: db, dialect: d}
	if err := s.db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	slog.Debug("Database pinged", "driver", d.driver)

	if _, err := s.db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: create schema: %w", err)
	}

	slog.Info("Successfully created the database schema", "driver", d.driver)

	return s, nil
}

func (s *SQLDatabase) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLDatabase) Close() error {
	return s.db.Close()
}

func (s *SQLDatabase) CreateUser(ctx context.Context, name, email, passwordHash string) (User, error) {
	const createUser = `
	INSERT INTO users (name, email, password_hash)
	VALUES (?, ?, ?)
	RETURNING id, name, email, password_hash, created_at
	`

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(createUser), name, email, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		if s.dialect.uniqueViolation(err) {
			return User{}, ErrEmailTaken
		}

		return User{}, fmt.Errorf("database: create user: %w", err)
	}

	return u, nil
}

func (s *SQLDatabase) GetUserByID(ctx context.Context, id int64) (User, error) {
	const getUserByID = `
	SELECT
		id,
		name,
		email,
		password_hash,
		created_at
	FROM users
	WHERE id = ?
	`

	u, err := scanUser(s.db.QueryRowContext(ctx, s.dialect.rebind(getUserByID), id))

	return u, notFound(err, "get user")
}

func (s *SQLDatabase) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const getUserByEmail = `
	SELECT
		id,
		name,
		email,
		password_hash,
		created_at
	FROM users
	WHERE email = ?
	`

	u, err := scanUser(s.db.QueryRowContext(ctx, s.dialect.rebind(getUserByEmail), email))

	return u, notFound(err, "get user by email")
}

const subscriptionColumns = `id, user_id, service_name, amount, start_date, end_date, manual_renewal, auto_renewal, created_at`

func (s *SQLDatabase) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	const createSubscription = `
	INSERT INTO subscriptions (user_id, service_name, amount, start_date, end_date, manual_renewal, auto_renewal)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING ` + subscriptionColumns

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(createSubscription),
		sub.UserID,
		sub.ServiceName,
		sub.Amount,
		dateParam(sub.StartDate),
		dateParam(sub.EndDate),
		sub.ManualRenewal,
		sub.AutoRenewal,
	)

	created, err := scanSubscription(row)
	if err != nil {
		return Subscription{}, fmt.Errorf("database: create subscription: %w", err)
	}

	return created, nil
}

func (s *SQLDatabase) ListSubscriptions(ctx context.Context, userID int64) ([]Subscription, error) {
	const listSubscriptions = `
	SELECT ` + subscriptionColumns + `
	FROM subscriptions
	WHERE user_id = ?
	ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(listSubscriptions), userID)
	if err != nil {
		return nil, fmt.Errorf("database: list subscriptions: %w", err)
	}
	defer rows.Close()

	items := []Subscription{}

	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("database: list subscriptions: %w", err)
		}

		items = append(items, sub)
	}

	if err := rows.Close(); err != nil {
		return nil, err
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *SQLDatabase) GetSubscription(ctx context.Context, userID, id int64) (Subscription, error) {
	const getSubscription = `
	SELECT ` + subscriptionColumns + `
	FROM subscriptions
	WHERE id = ? AND user_id = ?
	`

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, s.dialect.rebind(getSubscription), id, userID))

	return sub, notFound(err, "get subscription")
}

// UpdateSubscription applies the set fields of p to one of the user's
// subscriptions and returns the row as stored.
func (s *SQLDatabase) UpdateSubscription(ctx context.Context, userID, id int64, p SubscriptionPatch) (Subscription, error) {
	columns, values := p.Assignments()
	if len(columns) == 0 {
		return Subscription{}, ErrEmptyPatch
	}

	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = ?"
	}

	query := "UPDATE subscriptions SET " + strings.Join(sets, ", ") +
		" WHERE id = ? AND user_id = ? RETURNING " + subscriptionColumns

	args := append(values, id, userID)

	slog.Debug("Updating subscription", "id", id, "columns", columns)

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...))

	return sub, notFound(err, "update subscription")
}

func (s *SQLDatabase) DeleteSubscription(ctx context.Context, userID, id int64) error {
	const deleteSubscription = `
	DELETE FROM subscriptions
	WHERE id = ? AND user_id = ?
	`

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(deleteSubscription), id, userID)
	if err != nil {
		return fmt.Errorf("database: delete subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("database: delete subscription: %w", err)
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var (
		u         User
		createdAt nullTime
	)

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&createdAt,
	)
	u.CreatedAt = createdAt.Time

	return u, err
}

func scanSubscription(row scanner) (Subscription, error) {
	var (
		sub                   Subscription
		start, end, createdAt nullTime
	)

	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.ServiceName,
		&sub.Amount,
		&start,
		&end,
		&sub.ManualRenewal,
		&sub.AutoRenewal,
		&createdAt,
	)
	if err != nil {
		return Subscription{}, err
	}

	sub.StartDate = formatDate(start)
	sub.EndDate = formatDate(end)
	sub.CreatedAt = createdAt.Time

	return sub, nil
}

func notFound(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	default:
		return fmt.Errorf("database: %s: %w", op, err)
	}
}

func dateParam(d *string) any {
	if d == nil {
		return nil
	}

	return *d
}

func formatDate(t nullTime) *string {
	if !t.Valid {
		return nil
	}

	s := t.Time.Format(time.DateOnly)

	return &s
}

// nullTime accepts timestamps as time.Time or as text. SQLite only converts
// columns with a declared date type, which RETURNING results do not carry.
type nullTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateTime,
	time.DateOnly,
}

func (n *nullTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		*n = nullTime{}
		return nil
	case time.Time:
		*n = nullTime{Time: x, Valid: true}
		return nil
	case []byte:
		return n.parse(string(x))
	case string:
		return n.parse(x)
	default:
		return fmt.Errorf("database: cannot scan %T into a time", v)
	}
}

func (n *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*n = nullTime{Time: t, Valid: true}
			return nil
		}
	}

	return fmt.Errorf("database: unrecognised time %q", s)
}
