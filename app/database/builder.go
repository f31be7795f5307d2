package database

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// Expr is a SQL fragment written with ? placeholders and its ordered arguments.
type Expr struct {
	SQL  string
	Args []any
}

// Or joins expressions into one parenthesized disjunction.
func Or(exprs ...Expr) Expr {
	parts := make([]string, 0, len(exprs))
	var args []any
	for _, e := range exprs {
		parts = append(parts, e.SQL)
		args = append(args, e.Args...)
	}
	return Expr{SQL: "(" + strings.Join(parts, " OR ") + ")", Args: args}
}

// SelectBuilder assembles a SELECT statement. It never touches the database:
// Build returns the text and the arguments in placeholder order.
type SelectBuilder struct {
	columns []string
	from    string
	where   []Expr
	orderBy []string
	limit   int
}

func Select(columns ...string) *SelectBuilder {
	return &SelectBuilder{columns: columns}
}

func (b *SelectBuilder) From(table string) *SelectBuilder {
	b.from = table
	return b
}

func (b *SelectBuilder) Where(cond string, args ...any) *SelectBuilder {
	return b.WhereExpr(Expr{SQL: cond, Args: args})
}

func (b *SelectBuilder) WhereExpr(e Expr) *SelectBuilder {
	b.where = append(b.where, e)
	return b
}

func (b *SelectBuilder) OrderBy(terms ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, terms...)
	return b
}

// Limit sets the row limit; n <= 0 means no limit.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

// Build renders the statement for the given sqlx bind type.
func (b *SelectBuilder) Build(bindType int) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)

	for i, e := range b.where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(e.SQL)
		args = append(args, e.Args...)
	}

	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}

	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}

	return sqlx.Rebind(bindType, sb.String()), args
}

// Assignment is one "column = expression" pair of an ON CONFLICT DO UPDATE clause.
type Assignment struct {
	Column string
	Expr   string
}

// Excluded overwrites column with the value proposed for insertion.
func Excluded(column string) Assignment {
	return Assignment{Column: column, Expr: "excluded." + column}
}

// InsertBuilder assembles a multi-row INSERT with an optional conflict clause.
type InsertBuilder struct {
	table    string
	columns  []string
	rows     [][]any
	conflict string
	target   []string
	updates  []Assignment
}

func Insert(table string, columns ...string) *InsertBuilder {
	return &InsertBuilder{table: table, columns: columns}
}

// Values appends one row; len(values) must match the column count.
func (b *InsertBuilder) Values(values ...any) *InsertBuilder {
	b.rows = append(b.rows, values)
	return b
}

func (b *InsertBuilder) OnConflictDoNothing(target ...string) *InsertBuilder {
	b.conflict = "NOTHING"
	b.target = target
	return b
}

func (b *InsertBuilder) OnConflictDoUpdate(target []string, set ...Assignment) *InsertBuilder {
	b.conflict = "UPDATE"
	b.target = target
	b.updates = set
	return b
}

func (b *InsertBuilder) Build(bindType int) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(b.rows)*len(b.columns))

	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(b.columns, ", "))
	sb.WriteString(") VALUES ")

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", ") + ")"
	for i, row := range b.rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(tuple)
		args = append(args, row...)
	}

	switch b.conflict {
	case "NOTHING":
		sb.WriteString(" ON CONFLICT")
		if len(b.target) > 0 {
			sb.WriteString(" (" + strings.Join(b.target, ", ") + ")")
		}
		sb.WriteString(" DO NOTHING")
	case "UPDATE":
		sb.WriteString(" ON CONFLICT (" + strings.Join(b.target, ", ") + ") DO UPDATE SET ")
		for i, a := range b.updates {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.Column + " = " + a.Expr)
		}
	}

	return sqlx.Rebind(bindType, sb.String()), args
}
