package rbac

import (
	"context"
	"fmt"
	"sort"
)

// Evaluator answers "can user U perform action A on resource R?" against the
// cached permission graph.
type Evaluator struct {
	graph *Graph
}

// NewEvaluator constructs an Evaluator over the graph.
func NewEvaluator(graph *Graph) *Evaluator {
	return &Evaluator{graph: graph}
}

// Evaluate resolves a single (user, resource, action) check.
//
// The super-admin bypass lives here and only here: holders of the
// distinguished role are allowed before any explicit grant is consulted.
// Otherwise the union of permissions across the user's active roles decides;
// (resource, "*") matches any action on that resource. A missing grant is
// Deny with a nil error. Only an unreachable graph returns an error, and the
// decision is still Deny.
func (e *Evaluator) Evaluate(ctx context.Context, userID int64, resource, action string) (Decision, error) {
	snap, err := e.graph.load(ctx)
	if err != nil {
		return Deny, fmt.Errorf("rbac: load graph: %w", err)
	}
	if snap.userHoldsSuperAdmin(userID) {
		return Allow, nil
	}
	if snap.userHolds(userID, resource, action) {
		return Allow, nil
	}
	return Deny, nil
}

// EffectivePermissions returns the sorted union of permission names granted
// to a user through active roles. Super-admin holders get the full grant
// list of their roles like everyone else; the bypass is a property of
// Evaluate, not of the stored grants.
func (e *Evaluator) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	snap, err := e.graph.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: load graph: %w", err)
	}
	union := make(map[string]struct{})
	for _, roleID := range snap.userRoles[userID] {
		for name := range snap.rolePerms[roleID] {
			union[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// RoleNames returns the sorted names of the user's active roles.
func (e *Evaluator) RoleNames(ctx context.Context, userID int64) ([]string, error) {
	snap, err := e.graph.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: load graph: %w", err)
	}
	names := make([]string, 0, len(snap.userRoles[userID]))
	for _, roleID := range snap.userRoles[userID] {
		if name, ok := snap.roleNames[roleID]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// IsSuperAdmin reports whether the user holds the distinguished role.
func (e *Evaluator) IsSuperAdmin(ctx context.Context, userID int64) (bool, error) {
	snap, err := e.graph.load(ctx)
	if err != nil {
		return false, fmt.Errorf("rbac: load graph: %w", err)
	}
	return snap.userHoldsSuperAdmin(userID), nil
}
