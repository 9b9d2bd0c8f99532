package e2e

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/rbac"
	"github.com/gatewarden/gatewarden/internal/shared"
	"github.com/gatewarden/gatewarden/internal/users"
)

// state is the shared in-memory backing store for the pipeline tests. The
// auth, users and rbac repositories are thin views over it, so a role
// assigned through one surface is immediately visible to the others, the
// same way the shared database behaves.
type state struct {
	mu  sync.Mutex
	seq int64

	accounts  map[int64]*account
	roles     map[int64]*rbac.Role
	perms     map[int64]*rbac.Permission
	rolePerms map[int64]map[int64]bool
	userRoles map[int64]map[int64]bool
	tokens    map[string]*auth.TokenRecord
}

type account struct {
	id          int64
	username    string
	email       string
	hash        string
	active      bool
	createdAt   time.Time
	updatedAt   time.Time
	lastLoginAt *time.Time
}

func newState() *state {
	return &state{
		accounts:  make(map[int64]*account),
		roles:     make(map[int64]*rbac.Role),
		perms:     make(map[int64]*rbac.Permission),
		rolePerms: make(map[int64]map[int64]bool),
		userRoles: make(map[int64]map[int64]bool),
		tokens:    make(map[string]*auth.TokenRecord),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// addRole seeds a role directly, bypassing the HTTP surface.
func (s *state) addRole(name string, grants ...[2]string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID()
	s.roles[id] = &rbac.Role{ID: id, Name: name, IsSystem: true, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.rolePerms[id] = make(map[int64]bool)
	for _, grant := range grants {
		permID := s.permIDLocked(grant[0], grant[1])
		s.rolePerms[id][permID] = true
	}
	return id
}

func (s *state) permIDLocked(resource, action string) int64 {
	for id, p := range s.perms {
		if p.Resource == resource && p.Action == action {
			return id
		}
	}
	id := s.nextID()
	s.perms[id] = &rbac.Permission{ID: id, Resource: resource, Action: action, IsActive: true, CreatedAt: time.Now()}
	return id
}

// addAccount seeds an account with the given roles.
func (s *state) addAccount(username, hash string, roleIDs ...int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID()
	s.accounts[id] = &account{
		id:        id,
		username:  username,
		email:     username + "@example.com",
		hash:      hash,
		active:    true,
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	s.userRoles[id] = make(map[int64]bool)
	for _, roleID := range roleIDs {
		s.userRoles[id][roleID] = true
	}
	return id
}

// authStore implements auth.RepositoryPort.
type authStore struct{ s *state }

func (a authStore) InsertToken(_ context.Context, rec auth.TokenRecord) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	cp := rec
	a.s.tokens[rec.JTI] = &cp
	return nil
}

func (a authStore) RevokeToken(_ context.Context, jti string, at time.Time) ([]auth.TokenRecord, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.revokeChainLocked(jti, at), nil
}

func (a authStore) revokeChainLocked(jti string, at time.Time) []auth.TokenRecord {
	var revoked []auth.TokenRecord
	rec, ok := a.s.tokens[jti]
	if ok && rec.RevokedAt == nil {
		rec.RevokedAt = &at
		revoked = append(revoked, *rec)
	}
	for _, child := range a.s.tokens {
		if child.ParentJTI == jti {
			revoked = append(revoked, a.revokeChainLocked(child.JTI, at)...)
		}
	}
	return revoked
}

func (a authStore) RevokeUserTokens(_ context.Context, userID int64, at time.Time) ([]auth.TokenRecord, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var revoked []auth.TokenRecord
	for _, rec := range a.s.tokens {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &at
			revoked = append(revoked, *rec)
		}
	}
	return revoked, nil
}

func (a authStore) PurgeExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	var n int64
	for jti, rec := range a.s.tokens {
		if rec.ExpiresAt.Before(before) {
			delete(a.s.tokens, jti)
			n++
		}
	}
	return n, nil
}

func (a authStore) FindByIdentifier(_ context.Context, identifier string) (*auth.User, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, acc := range a.s.accounts {
		if acc.username == identifier || strings.ToLower(acc.email) == identifier {
			return authUserLocked(acc), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (a authStore) TouchLastLogin(_ context.Context, userID int64, at time.Time) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if acc, ok := a.s.accounts[userID]; ok {
		acc.lastLoginAt = &at
	}
	return nil
}

func (a authStore) GetUser(_ context.Context, userID int64) (*auth.User, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acc, ok := a.s.accounts[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return authUserLocked(acc), nil
}

func authUserLocked(acc *account) *auth.User {
	return &auth.User{
		ID:           acc.id,
		Username:     acc.username,
		Email:        acc.email,
		PasswordHash: acc.hash,
		IsActive:     acc.active,
		CreatedAt:    acc.createdAt,
		LastLoginAt:  acc.lastLoginAt,
	}
}

// userStore implements users.RepositoryPort.
type userStore struct{ s *state }

func (u userStore) CreateUserWithRole(_ context.Context, username, email, passwordHash, roleName string) (users.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, acc := range u.s.accounts {
		if acc.username == username || acc.email == email {
			return users.User{}, shared.ErrDuplicate
		}
	}
	var roleID int64
	for id, role := range u.s.roles {
		if role.Name == roleName && role.IsActive {
			roleID = id
			break
		}
	}
	if roleID == 0 {
		return users.User{}, fmt.Errorf("default role %q: %w", roleName, shared.ErrNotFound)
	}
	id := u.s.nextID()
	now := time.Now()
	u.s.accounts[id] = &account{id: id, username: username, email: email, hash: passwordHash, active: true, createdAt: now, updatedAt: now}
	u.s.userRoles[id] = map[int64]bool{roleID: true}
	return userViewLocked(u.s.accounts[id]), nil
}

func (u userStore) GetUser(_ context.Context, id int64) (users.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	acc, ok := u.s.accounts[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return userViewLocked(acc), nil
}

func (u userStore) GetUserByUsername(_ context.Context, username string) (users.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, acc := range u.s.accounts {
		if acc.username == username {
			return userViewLocked(acc), nil
		}
	}
	return users.User{}, shared.ErrNotFound
}

func (u userStore) ListUsers(_ context.Context, page shared.Pagination) ([]users.User, int, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	var out []users.User
	for _, acc := range u.s.accounts {
		out = append(out, userViewLocked(acc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (u userStore) UpdateEmail(_ context.Context, id int64, email string) (users.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	acc, ok := u.s.accounts[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	acc.email = email
	acc.updatedAt = time.Now()
	return userViewLocked(acc), nil
}

func (u userStore) SetActive(_ context.Context, id int64, active bool) (users.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	acc, ok := u.s.accounts[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	acc.active = active
	acc.updatedAt = time.Now()
	return userViewLocked(acc), nil
}

func (u userStore) DeleteUser(_ context.Context, id int64) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.accounts[id]; !ok {
		return shared.ErrNotFound
	}
	delete(u.s.accounts, id)
	delete(u.s.userRoles, id)
	return nil
}

func (u userStore) GetPasswordHash(_ context.Context, id int64) (string, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	acc, ok := u.s.accounts[id]
	if !ok {
		return "", shared.ErrNotFound
	}
	return acc.hash, nil
}

func (u userStore) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	acc, ok := u.s.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	acc.hash = passwordHash
	acc.updatedAt = time.Now()
	return nil
}

func userViewLocked(acc *account) users.User {
	return users.User{
		ID:          acc.id,
		Username:    acc.username,
		Email:       acc.email,
		IsActive:    acc.active,
		CreatedAt:   acc.createdAt,
		UpdatedAt:   acc.updatedAt,
		LastLoginAt: acc.lastLoginAt,
	}
}

// rbacStore implements rbac.RepositoryPort.
type rbacStore struct{ s *state }

func (r rbacStore) LoadGraphData(_ context.Context, superAdminRole string) (*rbac.GraphData, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	data := &rbac.GraphData{
		RolePermissions: make(map[int64][]string),
		RoleNames:       make(map[int64]string),
	}
	for roleID, role := range r.s.roles {
		if !role.IsActive {
			continue
		}
		data.RoleNames[roleID] = role.Name
		if role.Name == superAdminRole {
			data.SuperAdminRoles = append(data.SuperAdminRoles, roleID)
		}
		for permID := range r.s.rolePerms[roleID] {
			if p, ok := r.s.perms[permID]; ok && p.IsActive {
				data.RolePermissions[roleID] = append(data.RolePermissions[roleID], p.Name())
			}
		}
	}
	for userID, roleIDs := range r.s.userRoles {
		for roleID := range roleIDs {
			if role, ok := r.s.roles[roleID]; ok && role.IsActive {
				data.UserRoles = append(data.UserRoles, rbac.UserRole{UserID: userID, RoleID: roleID})
			}
		}
	}
	return data, nil
}

func (r rbacStore) ListRoles(_ context.Context) ([]rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []rbac.Role
	for _, role := range r.s.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r rbacStore) GetRole(_ context.Context, id int64) (rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return *role, nil
}

func (r rbacStore) GetRoleByName(_ context.Context, name string) (rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			return *role, nil
		}
	}
	return rbac.Role{}, shared.ErrNotFound
}

func (r rbacStore) CreateRole(_ context.Context, name, description string) (rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			return rbac.Role{}, shared.ErrDuplicate
		}
	}
	id := r.s.nextID()
	role := &rbac.Role{ID: id, Name: name, Description: description, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.s.roles[id] = role
	r.s.rolePerms[id] = make(map[int64]bool)
	return *role, nil
}

func (r rbacStore) UpdateRole(_ context.Context, id int64, name, description string, active bool) (rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	role.Name = name
	role.Description = description
	role.IsActive = active
	role.UpdatedAt = time.Now()
	return *role, nil
}

func (r rbacStore) DeleteRole(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok || role.IsSystem {
		return shared.ErrNotFound
	}
	delete(r.s.roles, id)
	delete(r.s.rolePerms, id)
	for _, roleIDs := range r.s.userRoles {
		delete(roleIDs, id)
	}
	return nil
}

func (r rbacStore) ListPermissions(_ context.Context) ([]rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []rbac.Permission
	for _, p := range r.s.perms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (r rbacStore) GetPermission(_ context.Context, id int64) (rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.perms[id]
	if !ok {
		return rbac.Permission{}, shared.ErrNotFound
	}
	return *p, nil
}

func (r rbacStore) CreatePermission(_ context.Context, resource, action, description string) (rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.perms {
		if p.Resource == resource && p.Action == action {
			return rbac.Permission{}, shared.ErrDuplicate
		}
	}
	id := r.s.nextID()
	p := &rbac.Permission{ID: id, Resource: resource, Action: action, Description: description, IsActive: true, CreatedAt: time.Now()}
	r.s.perms[id] = p
	return *p, nil
}

func (r rbacStore) UpdatePermission(_ context.Context, id int64, description string, active bool) (rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.perms[id]
	if !ok {
		return rbac.Permission{}, shared.ErrNotFound
	}
	p.Description = description
	p.IsActive = active
	return *p, nil
}

func (r rbacStore) DeletePermission(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.perms[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.s.perms, id)
	for _, permIDs := range r.s.rolePerms {
		delete(permIDs, id)
	}
	return nil
}

func (r rbacStore) ListRolePermissions(_ context.Context, roleID int64) ([]rbac.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []rbac.Permission
	for permID := range r.s.rolePerms[roleID] {
		if p, ok := r.s.perms[permID]; ok {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (r rbacStore) AttachPermission(_ context.Context, roleID, permissionID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.rolePerms[roleID] == nil {
		r.s.rolePerms[roleID] = make(map[int64]bool)
	}
	r.s.rolePerms[roleID][permissionID] = true
	return nil
}

func (r rbacStore) DetachPermission(_ context.Context, roleID, permissionID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.rolePerms[roleID], permissionID)
	return nil
}

func (r rbacStore) ListUserRoles(_ context.Context, userID int64) ([]rbac.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []rbac.Role
	for roleID := range r.s.userRoles[userID] {
		if role, ok := r.s.roles[roleID]; ok {
			out = append(out, *role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r rbacStore) AssignRole(_ context.Context, userID, roleID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userRoles[userID] == nil {
		r.s.userRoles[userID] = make(map[int64]bool)
	}
	r.s.userRoles[userID][roleID] = true
	return nil
}

func (r rbacStore) RemoveRole(_ context.Context, userID, roleID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.userRoles[userID], roleID)
	return nil
}
