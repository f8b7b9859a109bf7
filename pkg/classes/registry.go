// Package classes implements the type-lookup facility used by the :> and <:
// operators and the .class pseudo-property. A Registry maps fully qualified
// type names to class handles and knows the runtime class of every value
// kind.
package classes

import (
	"fmt"

	"github.com/lemonberrylabs/condeval/pkg/types"
)

// Builtin class names.
const (
	Object       = "java.lang.Object"
	Class        = "java.lang.Class"
	Comparable   = "java.lang.Comparable"
	CharSequence = "java.lang.CharSequence"
	Serializable = "java.io.Serializable"
	Number       = "java.lang.Number"
	Double       = "java.lang.Double"
	Float        = "java.lang.Float"
	Long         = "java.lang.Long"
	Integer      = "java.lang.Integer"
	Short        = "java.lang.Short"
	Byte         = "java.lang.Byte"
	String       = "java.lang.String"
	Boolean      = "java.lang.Boolean"
	Iterable     = "java.lang.Iterable"
	Collection   = "java.util.Collection"
	List         = "java.util.List"
	Set          = "java.util.Set"
	ArrayList    = "java.util.ArrayList"
	ObjectArray  = "java.lang.Object[]"
)

// Resolver resolves type names and the runtime class of values.
type Resolver interface {
	// Lookup returns the class registered under a fully qualified name.
	Lookup(name string) (*types.Class, bool)

	// ClassOf returns the runtime class of a value, or nil for null.
	ClassOf(v types.Value) *types.Class
}

// Registry is a Resolver backed by a name table. It is not safe for
// concurrent Register calls; lookups are safe once registration is done.
type Registry struct {
	classes map[string]*types.Class
}

// NewRegistry creates a registry seeded with the builtin hierarchy.
func NewRegistry() *Registry {
	r := &Registry{classes: make(map[string]*types.Class)}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.mustRegister(Object, "")
	r.mustRegister(Serializable, "")
	r.mustRegister(Comparable, "")
	r.mustRegister(CharSequence, "")
	r.mustRegister(Iterable, "")
	r.mustRegister(Class, Object, Serializable)

	r.mustRegister(Number, Object, Serializable)
	for _, name := range []string{Double, Float, Long, Integer, Short, Byte} {
		r.mustRegister(name, Number, Comparable)
	}
	r.mustRegister(String, Object, Serializable, Comparable, CharSequence)
	r.mustRegister(Boolean, Object, Serializable, Comparable)

	r.mustRegister(Collection, "", Iterable)
	r.mustRegister(List, "", Collection)
	r.mustRegister(Set, "", Collection)
	r.mustRegister(ArrayList, Object, List, Serializable)
	r.mustRegister(ObjectArray, Object, Serializable)
}

func (r *Registry) mustRegister(name, super string, interfaces ...string) {
	if _, err := r.Register(name, super, interfaces...); err != nil {
		panic(err)
	}
}

// Register adds a class named name extending super and implementing the
// given interfaces. An empty super extends java.lang.Object, so every
// registered type, interfaces included, is assignable to Object. Parents
// must already be registered, and names cannot be registered twice.
func (r *Registry) Register(name, super string, interfaces ...string) (*types.Class, error) {
	if name == "" {
		return nil, fmt.Errorf("class name is required")
	}
	if _, exists := r.classes[name]; exists {
		return nil, fmt.Errorf("class %q already registered", name)
	}

	c := &types.Class{Name: name}
	if super == "" && name != Object {
		super = Object
	}
	if super != "" {
		parent, ok := r.classes[super]
		if !ok {
			return nil, fmt.Errorf("superclass %q of %q is not registered", super, name)
		}
		c.Super = parent
	}
	for _, iface := range interfaces {
		parent, ok := r.classes[iface]
		if !ok {
			return nil, fmt.Errorf("interface %q of %q is not registered", iface, name)
		}
		c.Interfaces = append(c.Interfaces, parent)
	}

	r.classes[name] = c
	return c, nil
}

// Lookup implements Resolver.
func (r *Registry) Lookup(name string) (*types.Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// MustLookup returns a registered class or panics. Intended for wiring code
// and tests that refer to builtin names.
func (r *Registry) MustLookup(name string) *types.Class {
	c, ok := r.classes[name]
	if !ok {
		panic(fmt.Sprintf("class %q is not registered", name))
	}
	return c
}

// ClassOf implements Resolver.
func (r *Registry) ClassOf(v types.Value) *types.Class {
	switch v.Type() {
	case types.TypeBool:
		return r.classes[Boolean]
	case types.TypeDouble:
		return r.classes[Double]
	case types.TypeString:
		return r.classes[String]
	case types.TypeCollection:
		return r.classes[ArrayList]
	case types.TypeArray:
		return r.classes[ObjectArray]
	case types.TypeClass:
		return r.classes[Class]
	default:
		return nil
	}
}
