package schema

import (
	"fmt"

	"github.com/platinummonkey/kennel/pkg/acl"
)

// Builder assembles a schema. Every method returns a new Builder and leaves
// the receiver untouched, so partial builders can be shared. Modifiers such
// as Required apply to the last property added to the open object. The
// result is validated once, by Build.
type Builder struct {
	name   string
	idPath string
	acl    acl.RolePermissions
	extra  map[string]interface{}
	// stack[0] holds the root properties, every other frame an open object
	stack []Property
	err   error
}

// New starts a schema for typeName
func New(typeName string) Builder {
	return Builder{name: typeName, stack: []Property{{Name: typeName, Type: TypeObject}}}
}

func (b Builder) clone() Builder {
	stack := make([]Property, len(b.stack))
	copy(stack, b.stack)
	for i := range stack {
		stack[i].Properties = append([]Property(nil), stack[i].Properties...)
	}
	b.stack = stack
	if b.acl != nil {
		b.acl = b.acl.Clone()
	}
	if b.extra != nil {
		extra := make(map[string]interface{}, len(b.extra))
		for k, v := range b.extra {
			extra[k] = v
		}
		b.extra = extra
	}
	return b
}

func (b Builder) fail(format string, args ...interface{}) Builder {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
	return b
}

// ID makes the root property name supply object ids
func (b Builder) ID(name string) Builder {
	b = b.clone()
	b.idPath = name
	return b
}

// ACL grants perms on the type to role
func (b Builder) ACL(role string, perms ...acl.Permission) Builder {
	b = b.clone()
	if b.acl == nil {
		b.acl = make(acl.RolePermissions)
	}
	b.acl.Grant(role, perms...)
	return b
}

// Extra attaches free form metadata
func (b Builder) Extra(key string, value interface{}) Builder {
	b = b.clone()
	if b.extra == nil {
		b.extra = make(map[string]interface{})
	}
	b.extra[key] = value
	return b
}

// Property adds a property of any type to the open object
func (b Builder) Property(name string, typ Type) Builder {
	b = b.clone()
	top := &b.stack[len(b.stack)-1]
	top.Properties = append(top.Properties, Property{Name: name, Type: typ})
	return b
}

func (b Builder) String(name string) Builder    { return b.Property(name, TypeString) }
func (b Builder) Text(name string) Builder      { return b.Property(name, TypeText) }
func (b Builder) Boolean(name string) Builder   { return b.Property(name, TypeBoolean) }
func (b Builder) Integer(name string) Builder   { return b.Property(name, TypeInteger) }
func (b Builder) Long(name string) Builder      { return b.Property(name, TypeLong) }
func (b Builder) Float(name string) Builder     { return b.Property(name, TypeFloat) }
func (b Builder) Double(name string) Builder    { return b.Property(name, TypeDouble) }
func (b Builder) Date(name string) Builder      { return b.Property(name, TypeDate) }
func (b Builder) Time(name string) Builder      { return b.Property(name, TypeTime) }
func (b Builder) Timestamp(name string) Builder { return b.Property(name, TypeTimestamp) }
func (b Builder) GeoPoint(name string) Builder  { return b.Property(name, TypeGeoPoint) }
func (b Builder) Enum(name string) Builder      { return b.Property(name, TypeEnum) }
func (b Builder) Stash(name string) Builder     { return b.Property(name, TypeStash) }

// Object opens a nested object; following properties go into it until Close
func (b Builder) Object(name string) Builder {
	b = b.clone()
	b.stack = append(b.stack, Property{Name: name, Type: TypeObject})
	return b
}

// Close ends the innermost open object
func (b Builder) Close() Builder {
	if len(b.stack) == 1 {
		return b.fail("no open object to close")
	}
	b = b.clone()
	obj := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	top := &b.stack[len(b.stack)-1]
	top.Properties = append(top.Properties, obj)
	return b
}

func (b Builder) modify(modifier string, fn func(p *Property)) Builder {
	top := b.stack[len(b.stack)-1]
	if len(top.Properties) == 0 {
		return b.fail("%s must follow a property", modifier)
	}
	b = b.clone()
	props := b.stack[len(b.stack)-1].Properties
	fn(&props[len(props)-1])
	return b
}

// Required marks the last property as required
func (b Builder) Required() Builder {
	return b.modify("Required", func(p *Property) { p.Required = true })
}

// Array marks the last property as holding a list of values
func (b Builder) Array() Builder {
	return b.modify("Array", func(p *Property) { p.Array = true })
}

// Language sets the analyzer language of the last text property
func (b Builder) Language(language string) Builder {
	return b.modify("Language", func(p *Property) { p.Language = language })
}

// Build validates the assembled definition
func (b Builder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, invalid("schema [%s]: %v", b.name, b.err)
	}
	if len(b.stack) > 1 {
		return nil, invalid("schema [%s]: object [%s] is not closed", b.name, b.stack[len(b.stack)-1].Name)
	}
	s := &Schema{
		Name:       b.name,
		IDPath:     b.idPath,
		ACL:        b.acl,
		Extra:      b.extra,
		Properties: b.stack[0].Properties,
	}
	return Validate(b.name, s.Definition())
}

// MustBuild is Build for statically known schemas; it panics on error
func (b Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
