package repos

import (
	"fmt"
	"strconv"
	"strings"
)

func itoa(n int) string { return strconv.Itoa(n) }

// whereBuilder accumulates filter clauses so the data query and its COUNT
// twin are built from the same conditions and the same argument list.
type whereBuilder struct {
	clauses []string
	args    []any
}

// add appends one condition. The format string uses $N placeholders counted
// from the arguments already collected, written as %d verbs:
//
//	wb.add("d.tenant_id = $%d", tenantID)
//	wb.add("a.created_at BETWEEN $%d AND $%d", from, to)
func (w *whereBuilder) add(format string, args ...any) {
	idx := make([]any, len(args))
	for i := range args {
		idx[i] = len(w.args) + i + 1
	}
	w.clauses = append(w.clauses, fmt.Sprintf(format, idx...))
	w.args = append(w.args, args...)
}

// where renders the WHERE clause, or an empty string when no condition was
// added.
func (w *whereBuilder) where() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.clauses, " AND ")
}

// next is the placeholder number the following bind argument will take, for
// LIMIT/OFFSET tails appended outside the builder.
func (w *whereBuilder) next() int {
	return len(w.args) + 1
}
