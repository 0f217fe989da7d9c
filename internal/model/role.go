// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"strings"

	"github.com/toeirei/gatekeeper/internal/apperr"
)

// Role is the single source of truth for a principal's authorization class.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTeamLead   Role = "team_lead"
	RoleSupervisor Role = "supervisor"
	RoleOperator   Role = "operator"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleTeamLead, RoleSupervisor, RoleOperator}

// ParseRole normalizes s into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, err := TierOf(r); err != nil {
		return "", err
	}
	return r, nil
}

// Tier is the permission tier derived from a role. The zero value is the
// restricted tier.
type Tier int

const (
	TierRestricted Tier = iota
	TierUnrestricted
)

func (t Tier) String() string {
	if t == TierUnrestricted {
		return "unrestricted"
	}
	return "restricted"
}

// TierOf maps a role to its tier. Admin, supervisor and team lead bypass
// device and command allow-lists; operators do not.
func TierOf(r Role) (Tier, error) {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleTeamLead:
		return TierUnrestricted, nil
	case RoleOperator:
		return TierRestricted, nil
	default:
		return TierRestricted, fmt.Errorf("%w: %q", apperr.ErrInvalidRole, string(r))
	}
}
