package di

import (
	"fmt"
	"reflect"
	"sync"

	errs "github.com/552020/futura-alpha-icp-sub009/pkg/errors"
)

// Factory is a function that creates an instance of a service.
type Factory func(*Container) (interface{}, error)

// Container manages dependency injection for cmd wiring. Services are
// created lazily by their factory and cached for the process lifetime.
type Container struct {
	mu        sync.RWMutex
	services  map[reflect.Type]interface{}
	factories map[reflect.Type]Factory
}

// New creates a new DI container.
func New() *Container {
	return &Container{
		services:  make(map[reflect.Type]interface{}),
		factories: make(map[reflect.Type]Factory),
	}
}

// Register registers a service factory.
func (c *Container) Register(iface interface{}, factory Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := reflect.TypeOf(iface)
	if t.Kind() != reflect.Ptr {
		return errs.ErrInterfaceMustBePointer
	}
	elem := t.Elem()
	var key reflect.Type
	if elem.Kind() == reflect.Interface {
		key = elem
	} else {
		// pointer to concrete type
		key = t
	}
	c.factories[key] = factory
	return nil
}

// Resolve resolves a service instance.
func (c *Container) Resolve(target interface{}) error {
	targetType := reflect.TypeOf(target)
	if targetType == nil || targetType.Kind() != reflect.Ptr {
		return errs.ErrTargetMustBePointer
	}

	elemType := targetType.Elem()

	c.mu.RLock()
	if service, ok := c.services[elemType]; ok {
		reflect.ValueOf(target).Elem().Set(reflect.ValueOf(service))
		c.mu.RUnlock()
		return nil
	}

	factory, ok := c.factories[elemType]
	if !ok {
		c.mu.RUnlock()
		return fmt.Errorf("%w for type %v", errs.ErrNoFactoryRegistered, elemType)
	}
	c.mu.RUnlock()

	// Create instance outside of lock
	instance, err := factory(c)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrFactoryFailed, err)
	}

	c.mu.Lock()
	c.services[elemType] = instance
	c.mu.Unlock()

	reflect.ValueOf(target).Elem().Set(reflect.ValueOf(instance))
	return nil
}

// Reset clears all registered services.
func (c *Container) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = make(map[reflect.Type]interface{})
}
