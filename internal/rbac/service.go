package rbac

import (
	"context"
	"errors"
	"strings"
)

// Service orchestrates role and permission administration. Every mutation
// invalidates the graph before returning, so a revoked grant is unusable by
// any evaluation started after the call completes.
type Service struct {
	repo  RepositoryPort
	graph *Graph
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, graph *Graph) *Service {
	return &Service{repo: repo, graph: graph}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.graph.Invalidate()
	return role, nil
}

// UpdateRole updates an existing role. Deactivating a role removes all of
// its grants from evaluation immediately.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string, active bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description), active)
	if err != nil {
		return Role{}, err
	}
	s.graph.Invalidate()
	return role, nil
}

// DeleteRole removes a non-system role by ID.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.graph.Invalidate()
	return nil
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission inserts a new (resource, action) capability. The pair is
// unique; duplicates surface as shared.ErrDuplicate.
func (s *Service) CreatePermission(ctx context.Context, resource, action, description string) (Permission, error) {
	resource = strings.ToLower(strings.TrimSpace(resource))
	action = strings.ToLower(strings.TrimSpace(action))
	if resource == "" || action == "" {
		return Permission{}, errors.New("rbac: resource and action required")
	}
	perm, err := s.repo.CreatePermission(ctx, resource, action, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	s.graph.Invalidate()
	return perm, nil
}

// UpdatePermission updates description and active flag.
func (s *Service) UpdatePermission(ctx context.Context, id int64, description string, active bool) (Permission, error) {
	perm, err := s.repo.UpdatePermission(ctx, id, strings.TrimSpace(description), active)
	if err != nil {
		return Permission{}, err
	}
	s.graph.Invalidate()
	return perm, nil
}

// DeletePermission removes a permission everywhere it is granted.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return err
	}
	s.graph.Invalidate()
	return nil
}

// RolePermissions lists the permissions directly linked to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.repo.ListRolePermissions(ctx, roleID)
}

// SetRolePermissions replaces the permission set of a role by diffing the
// existing links against the requested IDs and attaching/detaching the
// difference.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	existingPerms, err := s.repo.ListRolePermissions(ctx, roleID)
	if err != nil {
		return err
	}
	existing := make(map[int64]struct{}, len(existingPerms))
	for _, p := range existingPerms {
		existing[p.ID] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if err := s.repo.AttachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if err := s.repo.DetachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	s.graph.Invalidate()
	return nil
}

// UserRoles lists the roles held by a user.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.ListUserRoles(ctx, userID)
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.graph.Invalidate()
	return nil
}

// AssignRoleByName assigns a named role, used for the default role at
// registration.
func (s *Service) AssignRoleByName(ctx context.Context, userID int64, roleName string) error {
	role, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	return s.AssignRole(ctx, userID, role.ID)
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.graph.Invalidate()
	return nil
}
