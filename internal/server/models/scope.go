package models

import (
	"fmt"
	"slices"
)

// Role is the caller's authority level.
type Role string

const (
	RoleSysAdmin  Role = "sysadmin"
	RoleTeamAdmin Role = "team_admin"
	RoleMember    Role = "member"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSysAdmin, RoleTeamAdmin, RoleMember:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Scope describes what the caller may see and change: the teams they belong
// to and their role within them.
type Scope struct {
	UserID string
	Role   Role
	Teams  []string
}

func (s Scope) IsSysAdmin() bool {
	return s.Role == RoleSysAdmin
}

func (s Scope) InTeam(teamID string) bool {
	return teamID != "" && slices.Contains(s.Teams, teamID)
}

// CanRead reports whether a record owned by ownerID in teamID is visible.
func (s Scope) CanRead(teamID, ownerID string) bool {
	return s.IsSysAdmin() || s.InTeam(teamID) || (ownerID != "" && ownerID == s.UserID)
}

// CanWrite reports whether the caller may update or delete a record. Team
// admins manage everything in their teams, members only their own records.
func (s Scope) CanWrite(teamID, ownerID string) bool {
	if s.IsSysAdmin() {
		return true
	}
	if ownerID != "" && ownerID == s.UserID {
		return true
	}
	return s.Role == RoleTeamAdmin && s.InTeam(teamID)
}

// CanCreate reports whether the caller may create a record of entity type e
// in teamID. New teams are created by admins only.
func (s Scope) CanCreate(e EntityType, teamID string) bool {
	if s.IsSysAdmin() {
		return true
	}
	if e == EntityTeam {
		return s.Role == RoleTeamAdmin
	}
	return s.InTeam(teamID)
}

// Visibility is the row filter derived from a Scope for delta queries.
type Visibility struct {
	All     bool
	Teams   []string
	OwnerID string
}

func (s Scope) Visibility() Visibility {
	if s.IsSysAdmin() {
		return Visibility{All: true}
	}
	return Visibility{Teams: s.Teams, OwnerID: s.UserID}
}
