package dbx

import (
	"regexp"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour a repository talks to. Queries are written
// once with PostgreSQL-style $N placeholders and rebound for SQLite.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// GooseDialect is the dialect name understood by goose.SetDialect.
func (d Dialect) GooseDialect() string {
	switch d {
	case SQLite:
		return "sqlite3"
	default:
		return "pgx"
	}
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites $N placeholders into SQLite's explicit ?N form. PostgreSQL
// queries are returned unchanged.
func (d Dialect) Rebind(query string) string {
	if d != SQLite {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?$1")
}

// InList renders "($from, $from+1, ...)" for n arguments, used for IN filters
// whose size is only known at runtime.
func InList(from, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(from + i))
	}
	b.WriteByte(')')
	return b.String()
}
