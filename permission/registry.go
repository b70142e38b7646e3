package permission

import (
	"errors"
	"strings"
	"sync"
)

// Wildcard is the action that matches every action of a resource.
const Wildcard = "*"

// Name joins resource and action into a permission name.
func Name(resource, action string) string {
	return resource + ":" + action
}

// Registry maps permission names to bit positions within a Mask.
type Registry struct {
	maxBits      int
	rootReserved bool
	rootBit      int

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates a Registry. maxBits selects the mask width
// (64/128/256/512); rootReserved reserves the highest bit for a root
// permission that allows everything.
func NewRegistry(maxBits int, rootReserved bool) (*Registry, error) {
	if maxBits != 64 && maxBits != 128 && maxBits != 256 && maxBits != 512 {
		return nil, errors.New("invalid maxBits")
	}

	r := &Registry{
		maxBits:      maxBits,
		rootReserved: rootReserved,
		nameToBit:    make(map[string]int),
		bitToName:    make(map[int]string),
	}
	if rootReserved {
		r.rootBit = maxBits - 1
	}
	return r, nil
}

// Register assigns the next available bit to the named permission. Names must
// have the form "resource:action".
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}
	resource, action, ok := strings.Cut(name, ":")
	if !ok || resource == "" || action == "" {
		return -1, errors.New("permission name must be resource:action")
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("permission already registered")
	}

	nextBit := len(r.nameToBit)
	if r.rootReserved && nextBit >= r.rootBit {
		return -1, errors.New("permission limit exceeded (root bit reserved)")
	}
	if !r.rootReserved && nextBit >= r.maxBits {
		return -1, errors.New("permission limit exceeded")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name
	return nextBit, nil
}

// Bit returns the bit index of the named permission.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name of bit.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// ResourceBits returns the bits of every registered action on resource, in
// bit order.
func (r *Registry) ResourceBits(resource string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefix := resource + ":"
	var bits []int
	for bit := 0; bit < r.maxBits; bit++ {
		if name, ok := r.bitToName[bit]; ok && strings.HasPrefix(name, prefix) {
			bits = append(bits, bit)
		}
	}
	return bits
}

// RootBit returns the reserved root bit, or false when none is reserved.
func (r *Registry) RootBit() (int, bool) {
	if !r.rootReserved {
		return -1, false
	}
	return r.rootBit, true
}

// NewMask returns an empty mask sized for the registry.
func (r *Registry) NewMask() Mask {
	return make(Mask, r.maxBits/64)
}

// Names lists the permissions set in m in bit order.
func (r *Registry) Names(m Mask) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for bit := 0; bit < len(m)*64; bit++ {
		if !m.Has(bit) {
			continue
		}
		if name, ok := r.bitToName[bit]; ok {
			out = append(out, name)
		}
	}
	return out
}
