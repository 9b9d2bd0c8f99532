package rbac

import (
	"context"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// snapshot is one immutable view of the role/permission graph. Evaluators
// read a snapshot pointer once and never observe a partially built graph.
type snapshot struct {
	userRoles   map[int64][]int64
	rolePerms   map[int64]map[string]struct{}
	roleNames   map[int64]string
	superAdmins map[int64]struct{}
}

func (s *snapshot) userHoldsSuperAdmin(userID int64) bool {
	for _, roleID := range s.userRoles[userID] {
		if _, ok := s.superAdmins[roleID]; ok {
			return true
		}
	}
	return false
}

func (s *snapshot) userHolds(userID int64, resource, action string) bool {
	name := PermissionName(resource, action)
	wildcard := PermissionName(resource, WildcardAction)
	for _, roleID := range s.userRoles[userID] {
		perms, ok := s.rolePerms[roleID]
		if !ok {
			continue
		}
		if _, ok := perms[name]; ok {
			return true
		}
		if _, ok := perms[wildcard]; ok {
			return true
		}
	}
	return false
}

// Graph caches the role/permission graph as an atomically swapped snapshot.
// Invalidate drops the snapshot after any role/permission/assignment
// mutation commits, so no evaluation started after the commit can see the
// old grant set. Concurrent rebuilds after an invalidation are deduped with
// singleflight.
type Graph struct {
	repo           RepositoryPort
	superAdminRole string
	gen            atomic.Uint64
	current        atomic.Pointer[snapshot]
	rebuild        singleflight.Group
}

// NewGraph constructs an empty graph over the repository. The first
// evaluation triggers a load.
func NewGraph(repo RepositoryPort, superAdminRole string) *Graph {
	return &Graph{repo: repo, superAdminRole: superAdminRole}
}

// Invalidate discards the cached snapshot. The generation bump precedes the
// store so a rebuild racing with the invalidation cannot republish data it
// read before the mutation committed.
func (g *Graph) Invalidate() {
	g.gen.Add(1)
	g.current.Store(nil)
}

// load returns the current snapshot, rebuilding it from storage when absent.
// Rebuilds are keyed by the generation observed on entry: an Invalidate
// during the load starts a new generation, so callers arriving after it
// never join the in-flight rebuild, and its result is withdrawn rather than
// published over the newer invalidation. A storage failure propagates to the
// caller, which must fail closed.
func (g *Graph) load(ctx context.Context) (*snapshot, error) {
	gen := g.gen.Load()
	if snap := g.current.Load(); snap != nil {
		return snap, nil
	}
	result, err, _ := g.rebuild.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		if snap := g.current.Load(); snap != nil {
			return snap, nil
		}
		data, err := g.repo.LoadGraphData(ctx, g.superAdminRole)
		if err != nil {
			return nil, err
		}
		snap := buildSnapshot(data)
		if g.gen.Load() == gen {
			g.current.Store(snap)
			// An Invalidate that slipped in between the check and the store
			// bumped the generation first, so this recheck always sees it.
			if g.gen.Load() != gen {
				g.current.Store(nil)
			}
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*snapshot), nil
}

func buildSnapshot(data *GraphData) *snapshot {
	snap := &snapshot{
		userRoles:   make(map[int64][]int64),
		rolePerms:   make(map[int64]map[string]struct{}, len(data.RolePermissions)),
		roleNames:   data.RoleNames,
		superAdmins: make(map[int64]struct{}, len(data.SuperAdminRoles)),
	}
	for _, edge := range data.UserRoles {
		snap.userRoles[edge.UserID] = append(snap.userRoles[edge.UserID], edge.RoleID)
	}
	for roleID, names := range data.RolePermissions {
		set := make(map[string]struct{}, len(names))
		for _, name := range names {
			set[name] = struct{}{}
		}
		snap.rolePerms[roleID] = set
	}
	for _, roleID := range data.SuperAdminRoles {
		snap.superAdmins[roleID] = struct{}{}
	}
	return snap
}
