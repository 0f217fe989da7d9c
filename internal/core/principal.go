// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"github.com/toeirei/gatekeeper/internal/model"
)

// Principal is an authenticated user together with its permission tier.
type Principal struct {
	User model.User
	Tier model.Tier
}

// NewPrincipal classifies u. It fails only for an unknown role.
func NewPrincipal(u model.User) (Principal, error) {
	tier, err := model.TierOf(u.Role)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: u, Tier: tier}, nil
}

// ID returns the user id.
func (p Principal) ID() int64 { return p.User.ID }

// Unrestricted reports whether p bypasses device and command allow-lists.
func (p Principal) Unrestricted() bool { return p.Tier == model.TierUnrestricted }

// CanActOn reports whether p may act on something owned by ownerID.
func (p Principal) CanActOn(ownerID int64) bool {
	return p.Unrestricted() || p.User.ID == ownerID
}

func (p Principal) String() string {
	return p.User.Username + " (" + string(p.User.Role) + ")"
}
