package permission

import (
	"errors"
	"strings"
	"sync"
)

// RoleManager composes one Mask per role.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask
	frozen bool
}

// NewRoleManager returns a RoleManager over registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask),
	}
}

// RegisterRole grants the named permissions to roleName. The permission "*"
// grants the root bit when the registry reserves one. "resource:*" grants its
// own bit when registered, otherwise every registered action on resource.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if roleName == "" {
		return errors.New("role name empty")
	}
	if _, exists := rm.roles[roleName]; exists {
		return errors.New("role already registered")
	}

	mask := rm.registry.NewMask()
	for _, perm := range permissionNames {
		if perm == Wildcard {
			root, ok := rm.registry.RootBit()
			if !ok {
				return errors.New("root permission requires a reserved root bit")
			}
			mask.Set(root)
			continue
		}
		if bit, ok := rm.registry.Bit(perm); ok {
			mask.Set(bit)
			continue
		}
		resource, action, _ := strings.Cut(perm, ":")
		if action != Wildcard {
			return errors.New("permission not registered: " + perm)
		}
		bits := rm.registry.ResourceBits(resource)
		if len(bits) == 0 {
			return errors.New("no permissions registered for resource: " + resource)
		}
		for _, bit := range bits {
			mask.Set(bit)
		}
	}

	rm.roles[roleName] = mask
	return nil
}

// Mask returns a copy of the role's mask.
func (rm *RoleManager) Mask(roleName string) (Mask, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[roleName]
	if !ok {
		return nil, false
	}
	return append(Mask(nil), mask...), true
}

// Allowed reports whether roleName may perform action on resource.
func (rm *RoleManager) Allowed(roleName, resource, action string) bool {
	rm.mu.RLock()
	mask, ok := rm.roles[roleName]
	rm.mu.RUnlock()
	if !ok {
		return false
	}
	if root, ok := rm.registry.RootBit(); ok && mask.Has(root) {
		return true
	}
	resource = strings.TrimSpace(resource)
	for _, name := range []string{Name(resource, action), Name(resource, Wildcard)} {
		if bit, ok := rm.registry.Bit(name); ok && mask.Has(bit) {
			return true
		}
	}
	return false
}

// Permissions lists the permission names granted to roleName. A role holding
// the root bit is reported as "*".
func (rm *RoleManager) Permissions(roleName string) []string {
	rm.mu.RLock()
	mask, ok := rm.roles[roleName]
	rm.mu.RUnlock()
	if !ok {
		return nil
	}
	if root, ok := rm.registry.RootBit(); ok && mask.Has(root) {
		return []string{Wildcard}
	}
	return rm.registry.Names(mask)
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of registered roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
