package datamodel

import (
	"fmt"
	"sync"

	"github.com/backkem/cosem/pkg/obis"
)

// Registry is the in-memory set of objects of a logical device, indexed
// by logical name. Registration and lookup are thread-safe; operations on
// the objects themselves are not.
type Registry struct {
	mu       sync.RWMutex
	objects  map[obis.Code]Object
	order    []obis.Code // Preserve registration order
	listener ChangeListener
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objects: make(map[obis.Code]Object),
	}
}

// Add registers an object.
// Returns ErrObjectExists if an object with the same logical name exists.
func (r *Registry) Add(obj Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := obj.LogicalName()
	if _, exists := r.objects[name]; exists {
		return fmt.Errorf("%w: %s", ErrObjectExists, name)
	}

	r.objects[name] = obj
	r.order = append(r.order, name)
	return nil
}

// Remove removes an object.
// Returns ErrObjectUndefined if no object has that logical name.
func (r *Registry) Remove(name obis.Code) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[name]; !exists {
		return fmt.Errorf("%w: %s", ErrObjectUndefined, name)
	}

	delete(r.objects, name)

	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return nil
}

// Get returns the object with the given logical name, or nil if not found.
func (r *Registry) Get(name obis.Code) Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.objects[name]
}

// Lookup implements Resolver. The class must match the registered object.
func (r *Registry) Lookup(class ClassID, name obis.Code) (Object, error) {
	obj := r.Get(name)
	if obj == nil || obj.ClassID() != class {
		return nil, fmt.Errorf("%w: %s %s", ErrObjectUndefined, class, name)
	}
	return obj, nil
}

// Objects returns all objects in registration order.
func (r *Registry) Objects() []Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Object, 0, len(r.order))
	for _, n := range r.order {
		if obj, ok := r.objects[n]; ok {
			result = append(result, obj)
		}
	}
	return result
}

// Len returns the number of registered objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// SetChangeListener sets the listener for attribute changes.
func (r *Registry) SetChangeListener(listener ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = listener
}

// NotifyChanged notifies the listener that an attribute changed.
func (r *Registry) NotifyChanged(ref AttributeRef) {
	r.mu.RLock()
	listener := r.listener
	r.mu.RUnlock()

	if listener != nil {
		listener.OnAttributeChanged(ref)
	}
}

// Verify Registry implements Resolver.
var _ Resolver = (*Registry)(nil)
