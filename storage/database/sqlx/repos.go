// Package sqlxrepos implements the domain repositories on PostgreSQL.
package sqlxrepos

import (
	"strings"

	"github.com/lib/pq"

	"github.com/trezcool/darasa/core"
)

func orderingClause(ordering []core.DBOrdering, def string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + def
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// isUniqueViolation reports whether err is a violation of the given unique
// constraint, or of any unique constraint when no name is given.
func isUniqueViolation(err error, constraint ...string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return false
	}
	if len(constraint) == 0 {
		return true
	}
	return pqErr.Constraint == constraint[0]
}
