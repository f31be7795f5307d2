package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Dialect isolates the few SQL fragments that differ between Postgres and the
// embedded SQLite store. Everything else is shared, portable SQL.
type Dialect interface {
	Name() string
	BindType() int
	// Time converts a timestamp into the driver argument for a timestamp column.
	Time(t time.Time) any
	// JSONText extracts a top-level string field of a JSON column.
	JSONText(column, field string) string
	// JSONArrayExists reports whether any element of a JSON array field satisfies
	// predicate, which receives the SQL expression of the element.
	JSONArrayExists(column, field string, predicate func(elem string) string) string
	// InStrings matches column against a list of strings.
	InStrings(column string, values []string) Expr
	ILike() string
	Greatest(a, b string) string
}

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

type postgresDialect struct{}

func (postgresDialect) Name() string { return DriverPostgres }

func (postgresDialect) BindType() int { return sqlx.DOLLAR }

func (postgresDialect) Time(t time.Time) any { return t.UTC() }

func (postgresDialect) JSONText(column, field string) string {
	return fmt.Sprintf("%s->>'%s'", column, field)
}

func (postgresDialect) JSONArrayExists(column, field string, predicate func(elem string) string) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(%s->'%s', '[]'::jsonb)) AS tag(value) WHERE %s)",
		column, field, predicate("tag.value"))
}

func (postgresDialect) InStrings(column string, values []string) Expr {
	return Expr{SQL: column + " = ANY(?)", Args: []any{pq.Array(values)}}
}

func (postgresDialect) ILike() string { return "ILIKE" }

func (postgresDialect) Greatest(a, b string) string {
	return fmt.Sprintf("GREATEST(%s, %s)", a, b)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return DriverSQLite }

func (sqliteDialect) BindType() int { return sqlx.QUESTION }

func (sqliteDialect) Time(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) }

func (sqliteDialect) JSONText(column, field string) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", column, field)
}

func (sqliteDialect) JSONArrayExists(column, field string, predicate func(elem string) string) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM json_each(%s, '$.%s') AS tag WHERE %s)",
		column, field, predicate("tag.value"))
}

func (sqliteDialect) InStrings(column string, values []string) Expr {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return Expr{SQL: column + " IN (" + placeholders + ")", Args: args}
}

// ILike is LIKE: SQLite already compares ASCII case-insensitively.
func (sqliteDialect) ILike() string { return "LIKE" }

func (sqliteDialect) Greatest(a, b string) string {
	return fmt.Sprintf("MAX(%s, %s)", a, b)
}

func nullTime(d Dialect, t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.Time(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
