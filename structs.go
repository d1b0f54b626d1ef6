package shade

import (
	"fmt"
	"slices"
	"strings"
)

// Struct is a GLSL struct shape whose uniform instances are expanded into
// individually addressable leaf uniforms.
type Struct struct {
	Name    string
	Members []Variable
	// MaxInstances is the fixed array size for light kinds; 0 means the
	// struct may be declared as a plain uniform.
	MaxInstances int
}

// Definition renders the GLSL struct definition.
func (s *Struct) Definition() string {
	var sb strings.Builder
	sb.WriteString("struct ")
	sb.WriteString(s.Name)
	sb.WriteString(" {\n")
	for _, m := range s.Members {
		sb.WriteString("    ")
		sb.WriteString(m.String())
		sb.WriteString(";\n")
	}
	sb.WriteString("};")
	return sb.String()
}

// StructRegistry maps struct type names to their shapes. It is filled at
// startup and read-only while programs compile.
type StructRegistry struct {
	structs map[string]*Struct
	order   []string
}

// NewStructRegistry returns an empty registry.
func NewStructRegistry() *StructRegistry {
	return &StructRegistry{structs: map[string]*Struct{}}
}

// DefaultStructs returns a registry with the engine's light and material
// shapes.
func DefaultStructs() *StructRegistry {
	r := NewStructRegistry()
	for _, s := range []Struct{
		{Name: "BaseLight", Members: []Variable{
			{Type: "vec3", Name: "color"},
			{Type: "float", Name: "intensity"},
		}},
		{Name: "Attenuation", Members: []Variable{
			{Type: "float", Name: "constant"},
			{Type: "float", Name: "linear"},
			{Type: "float", Name: "exponent"},
		}},
		{Name: "DirectionalLight", Members: []Variable{
			{Type: "BaseLight", Name: "base"},
			{Type: "vec3", Name: "direction"},
		}},
		{Name: "PointLight", MaxInstances: 4, Members: []Variable{
			{Type: "BaseLight", Name: "base"},
			{Type: "Attenuation", Name: "attenuation"},
			{Type: "vec3", Name: "position"},
			{Type: "float", Name: "range"},
		}},
		{Name: "SpotLight", MaxInstances: 4, Members: []Variable{
			{Type: "PointLight", Name: "pointLight"},
			{Type: "vec3", Name: "direction"},
			{Type: "float", Name: "cutoff"},
		}},
		{Name: "Material", Members: []Variable{
			{Type: "vec3", Name: "ambient"},
			{Type: "vec3", Name: "diffuse"},
			{Type: "vec3", Name: "specular"},
			{Type: "float", Name: "shininess"},
		}},
	} {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a struct shape. Member types must be primitive or
// already registered.
func (r *StructRegistry) Register(s Struct) error {
	if s.Name == "" || IsPrimitive(s.Name) {
		return fmt.Errorf("invalid struct name %q", s.Name)
	}
	for _, m := range s.Members {
		if !IsPrimitive(m.Type) && r.structs[m.Type] == nil {
			return newError(KindUnknownStruct, "member %q of %s has unknown type %q", m.Name, s.Name, m.Type)
		}
	}
	if _, ok := r.structs[s.Name]; !ok {
		r.order = append(r.order, s.Name)
	}
	s.Members = slices.Clone(s.Members)
	r.structs[s.Name] = &s
	return nil
}

// Lookup returns the shape registered for name.
func (r *StructRegistry) Lookup(name string) (*Struct, bool) {
	s, ok := r.structs[name]
	return s, ok
}

// Names returns the registered names in registration order.
func (r *StructRegistry) Names() []string {
	return slices.Clone(r.order)
}

// SetLimit overrides the fixed array size of a light kind.
func (r *StructRegistry) SetLimit(name string, max int) error {
	s, ok := r.structs[name]
	if !ok {
		return newError(KindUnknownStruct, "no struct %q to limit", name)
	}
	if max < 1 {
		return fmt.Errorf("limit for %s must be positive, got %d", name, max)
	}
	s.MaxInstances = max
	return nil
}

// Clone returns an independent copy of the registry.
func (r *StructRegistry) Clone() *StructRegistry {
	c := NewStructRegistry()
	for _, name := range r.order {
		s := *r.structs[name]
		s.Members = slices.Clone(s.Members)
		c.structs[name] = &s
		c.order = append(c.order, name)
	}
	return c
}

// Dependencies returns the struct named name and every struct it nests,
// members before their owners.
func (r *StructRegistry) Dependencies(name string) []*Struct {
	var out []*Struct
	seen := map[string]bool{}
	var visit func(string)
	visit = func(n string) {
		s, ok := r.structs[n]
		if !ok || seen[n] {
			return
		}
		seen[n] = true
		for _, m := range s.Members {
			if !IsPrimitive(m.Type) {
				visit(m.Type)
			}
		}
		out = append(out, s)
	}
	visit(name)
	return out
}

// Expand flattens u into leaf uniforms, depth-first in member order and
// element-major for arrays. Primitive non-array uniforms are returned
// as-is.
func (r *StructRegistry) Expand(u *Uniform) []*Uniform {
	if u.ArrayLen == 0 && IsPrimitive(u.Type) {
		return []*Uniform{u}
	}
	var out []*Uniform
	if u.ArrayLen > 0 {
		for i := range u.ArrayLen {
			out = r.expandValue(out, fmt.Sprintf("%s[%d]", u.Name, i), u.Type)
		}
		return out
	}
	return r.expandValue(out, u.Name, u.Type)
}

func (r *StructRegistry) expandValue(out []*Uniform, name, typ string) []*Uniform {
	s, ok := r.structs[typ]
	if !ok {
		return append(out, NewUniform(typ, name))
	}
	for _, m := range s.Members {
		member, n := splitArrayName(m.Name)
		if n == 0 {
			out = r.expandValue(out, name+"."+member, m.Type)
			continue
		}
		for i := range n {
			out = r.expandValue(out, fmt.Sprintf("%s.%s[%d]", name, member, i), m.Type)
		}
	}
	return out
}
