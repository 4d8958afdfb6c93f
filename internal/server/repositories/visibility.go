// Package repositories holds SQL shared by the record store repositories.
// Concrete repositories live in the sub-packages.
package repositories

import (
	"strconv"

	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
)

// VisibilityClause renders the row filter for v as an SQL boolean expression
// whose placeholders start at $from, together with the matching arguments.
// Rows are visible when they belong to one of the caller's teams or are owned
// by the caller.
func VisibilityClause(v models.Visibility, from int) (string, []any) {
	if v.All {
		return "TRUE", nil
	}
	if len(v.Teams) == 0 {
		return "owner_id = $" + strconv.Itoa(from), []any{v.OwnerID}
	}

	args := make([]any, 0, len(v.Teams)+1)
	args = append(args, v.OwnerID)
	for _, t := range v.Teams {
		args = append(args, t)
	}
	return "(owner_id = $" + strconv.Itoa(from) + " OR team_id IN " + dbx.InList(from+1, len(v.Teams)) + ")", args
}
