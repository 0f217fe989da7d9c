// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/model"
)

// CommandSet is the set of command texts a principal may run. An
// unrestricted set permits any text; Commands still lists every
// registered command.
type CommandSet struct {
	all      bool
	commands map[string]model.Command
}

func newCommandSet(all bool, cmds []model.Command) CommandSet {
	cs := CommandSet{all: all, commands: make(map[string]model.Command, len(cmds))}
	for _, c := range cmds {
		key := strings.TrimSpace(c.Text)
		if key == "" {
			continue
		}
		if _, dup := cs.commands[key]; !dup {
			cs.commands[key] = c
		}
	}
	return cs
}

// All reports whether the set is universal.
func (cs CommandSet) All() bool { return cs.all }

// Len returns the number of registered commands in the set.
func (cs CommandSet) Len() int { return len(cs.commands) }

// Contains matches raw against the set after trimming surrounding
// whitespace. Matching is exact and case-sensitive.
func (cs CommandSet) Contains(raw string) bool {
	if cs.all {
		return true
	}
	_, ok := cs.commands[strings.TrimSpace(raw)]
	return ok
}

// Lookup returns the registered command matching raw, if any.
func (cs CommandSet) Lookup(raw string) (model.Command, bool) {
	c, ok := cs.commands[strings.TrimSpace(raw)]
	return c, ok
}

// Texts returns the registered command texts in sorted order.
func (cs CommandSet) Texts() []string {
	out := make([]string, 0, len(cs.commands))
	for k := range cs.commands {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolver answers access questions from profile and assignment data.
// Every call reads the store; nothing is cached, so a revoked assignment
// stops granting access as soon as the revocation commits.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver over store.
func NewResolver(store Store) *Resolver { return &Resolver{store: store} }

// DevicePermitted reports whether p may open a session on dev.
func (r *Resolver) DevicePermitted(ctx context.Context, p Principal, dev model.Device) (bool, error) {
	if p.Unrestricted() {
		return true, nil
	}
	if dev.GroupID == 0 {
		return false, nil
	}
	profiles, err := r.store.ActiveProfilesForUser(ctx, p.User.ID)
	if err != nil {
		return false, apperr.Wrap(apperr.ErrInternal, err, "load profiles for user %d", p.User.ID)
	}
	for _, prof := range profiles {
		if prof.GroupID == dev.GroupID {
			return true, nil
		}
	}
	return false, nil
}

// AllowedCommands returns the command set p may run. For restricted
// principals it is the union over every active profile, regardless of
// which device a session targets.
func (r *Resolver) AllowedCommands(ctx context.Context, p Principal) (CommandSet, error) {
	if p.Unrestricted() {
		cmds, err := r.store.AllCommands(ctx)
		if err != nil {
			return CommandSet{}, apperr.Wrap(apperr.ErrInternal, err, "load commands")
		}
		return newCommandSet(true, cmds), nil
	}

	profiles, err := r.store.ActiveProfilesForUser(ctx, p.User.ID)
	if err != nil {
		return CommandSet{}, apperr.Wrap(apperr.ErrInternal, err, "load profiles for user %d", p.User.ID)
	}
	seen := make(map[int64]bool, len(profiles))
	var listIDs []int64
	for _, prof := range profiles {
		if !seen[prof.ListID] {
			seen[prof.ListID] = true
			listIDs = append(listIDs, prof.ListID)
		}
	}
	if len(listIDs) == 0 {
		return newCommandSet(false, nil), nil
	}
	cmds, err := r.store.CommandsInLists(ctx, listIDs)
	if err != nil {
		return CommandSet{}, apperr.Wrap(apperr.ErrInternal, err, "load command lists")
	}
	return newCommandSet(false, cmds), nil
}

// CommandPermitted reports whether p may run raw.
func (r *Resolver) CommandPermitted(ctx context.Context, p Principal, raw string) (bool, error) {
	if p.Unrestricted() {
		return true, nil
	}
	set, err := r.AllowedCommands(ctx, p)
	if err != nil {
		return false, err
	}
	return set.Contains(raw), nil
}

// AccessAt lists the assignment grants that covered deviceID at time t.
// Unrestricted users are not listed; their access does not come from
// assignments.
func (r *Resolver) AccessAt(ctx context.Context, deviceID int64, t time.Time) ([]model.AccessGrant, error) {
	dev, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, err, "load device %d", deviceID)
	}
	if dev == nil {
		return nil, apperr.New(apperr.ErrNotFound, "device %d", deviceID)
	}
	if dev.GroupID == 0 {
		return nil, nil
	}
	assignments, err := r.store.AssignmentsForGroup(ctx, dev.GroupID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, err, "load assignments for group %d", dev.GroupID)
	}
	var grants []model.AccessGrant
	for _, a := range assignments {
		if !a.ActiveAt(t) {
			continue
		}
		grants = append(grants, model.AccessGrant{
			UserID:       a.UserID,
			ProfileID:    a.ProfileID,
			AssignmentID: a.ID,
			AssignedAt:   a.AssignedAt,
			RevokedAt:    a.RevokedAt,
		})
	}
	return grants, nil
}
