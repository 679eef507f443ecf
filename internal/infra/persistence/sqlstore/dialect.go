// Package sqlstore implements domain.PersistentStore over database/sql. The
// sqlite and postgres packages supply the driver specific Dialect.
package sqlstore

import (
	"io/fs"
	"strconv"
	"strings"
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	// Name is the goose dialect identifier.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Numbered placeholders ($1, $2) instead of "?".
	Numbered bool
	// Migrations holds the goose migrations under the "migrations" directory.
	Migrations fs.FS
	// IsUniqueViolation classifies driver errors raised by unique keys.
	IsUniqueViolation func(error) bool
	// IsTransient classifies connectivity errors. Nil falls back to
	// IsTransient of this package.
	IsTransient func(error) bool
}

// Rebind rewrites "?" placeholders for dialects with numbered parameters.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) uniqueViolation(err error) bool {
	return err != nil && d.IsUniqueViolation != nil && d.IsUniqueViolation(err)
}

func (d Dialect) transient(err error) bool {
	if d.IsTransient != nil && d.IsTransient(err) {
		return true
	}
	return IsTransient(err)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
