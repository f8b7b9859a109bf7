package types

// Class is a handle to a host type. Classes form a hierarchy through a single
// superclass and any number of interfaces. Instances are created by a class
// registry and are never mutated after registration.
type Class struct {
	Name       string
	Super      *Class
	Interfaces []*Class
}

// AssignableTo reports whether a value of class c can be assigned to a
// variable of class target, i.e. c is target or inherits from it.
func (c *Class) AssignableTo(target *Class) bool {
	if c == nil || target == nil {
		return false
	}
	if c == target || c.Name == target.Name {
		return true
	}
	if c.Super != nil && c.Super.AssignableTo(target) {
		return true
	}
	for _, iface := range c.Interfaces {
		if iface.AssignableTo(target) {
			return true
		}
	}
	return false
}

// String returns the class name.
func (c *Class) String() string {
	if c == nil {
		return "<nil class>"
	}
	return c.Name
}
