package shade

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// StageKind identifies a pipeline stage. The numeric order is the
// pipeline order used for cross-stage resolution.
type StageKind int

const (
	StageVertex StageKind = iota
	StageGeometry
	StageFragment
)

// PipelineOrder lists every stage in the order data flows through them.
var PipelineOrder = []StageKind{StageVertex, StageGeometry, StageFragment}

func (k StageKind) String() string {
	switch k {
	case StageVertex:
		return "VERTEX"
	case StageGeometry:
		return "GEOMETRY"
	case StageFragment:
		return "FRAGMENT"
	default:
		return fmt.Sprintf("StageKind(%d)", int(k))
	}
}

// ParseStageKind parses a stage name, ignoring case.
func ParseStageKind(s string) (StageKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VERTEX":
		return StageVertex, true
	case "GEOMETRY":
		return StageGeometry, true
	case "FRAGMENT":
		return StageFragment, true
	}
	return 0, false
}

// Variable is a named declaration.
type Variable struct {
	Type string
	Name string
}

func (v Variable) String() string {
	return v.Type + " " + v.Name
}

// Attribute is a vertex input.
type Attribute struct {
	Variable
	// Location is the explicit layout location, or -1 when none was given.
	Location int
}

// Varying is a value handed from one stage to a later one.
type Varying struct {
	Variable
	// Line is the 1-based line in the stage body.
	Line int
}

// ValueKind is the host-side shape of a uniform value.
type ValueKind uint8

const (
	ValueOther ValueKind = iota
	ValueFloat
	ValueInt
	ValueUint
	ValueBool
	ValueVec2
	ValueVec3
	ValueVec4
	ValueIVec2
	ValueIVec3
	ValueIVec4
	ValueMat2
	ValueMat3
	ValueMat4
	ValueSampler
	ValueStruct
)

var valueKindNames = map[ValueKind]string{
	ValueOther:   "other",
	ValueFloat:   "float",
	ValueInt:     "int",
	ValueUint:    "uint",
	ValueBool:    "bool",
	ValueVec2:    "vec2",
	ValueVec3:    "vec3",
	ValueVec4:    "vec4",
	ValueIVec2:   "ivec2",
	ValueIVec3:   "ivec3",
	ValueIVec4:   "ivec4",
	ValueMat2:    "mat2",
	ValueMat3:    "mat3",
	ValueMat4:    "mat4",
	ValueSampler: "sampler",
	ValueStruct:  "struct",
}

func (k ValueKind) String() string {
	return valueKindNames[k]
}

// MarshalText lets value kinds appear by name in JSON output.
func (k ValueKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var rePrimitive = regexp.MustCompile(`^(?:void|float|double|int|uint|bool|[biud]?vec[234]|d?mat[234](?:x[234])?|[iu]?sampler\w+|[iu]?image\w+|atomic_uint)$`)

// IsPrimitive reports whether typ is a built-in GLSL type rather than a
// struct name.
func IsPrimitive(typ string) bool {
	return rePrimitive.MatchString(typ)
}

// KindOf maps a GLSL type name to its value kind.
func KindOf(typ string) ValueKind {
	switch typ {
	case "float":
		return ValueFloat
	case "int":
		return ValueInt
	case "uint":
		return ValueUint
	case "bool":
		return ValueBool
	case "vec2":
		return ValueVec2
	case "vec3":
		return ValueVec3
	case "vec4":
		return ValueVec4
	case "ivec2":
		return ValueIVec2
	case "ivec3":
		return ValueIVec3
	case "ivec4":
		return ValueIVec4
	case "mat2":
		return ValueMat2
	case "mat3":
		return ValueMat3
	case "mat4":
		return ValueMat4
	}
	if strings.Contains(typ, "sampler") {
		return ValueSampler
	}
	if !IsPrimitive(typ) {
		return ValueStruct
	}
	return ValueOther
}

// Uniform is a value supplied once per draw call. The compiler fixes its
// identity and type; Value and ShouldSet belong to the per-frame binding
// code.
type Uniform struct {
	Variable
	// ArrayLen is the declared element count, 0 for a non-array uniform.
	ArrayLen int
	// Location is the GPU location, -1 until the loader resolves it.
	Location  int
	Value     any
	ValueType ValueKind
	ShouldSet bool
}

// NewUniform creates an unbound uniform of the given type.
func NewUniform(typ, name string) *Uniform {
	return &Uniform{
		Variable:  Variable{Type: typ, Name: name},
		Location:  -1,
		ValueType: KindOf(typ),
		ShouldSet: true,
	}
}

// Set stores a new value and marks the uniform for upload.
func (u *Uniform) Set(v any) {
	u.Value = v
	u.ShouldSet = true
}

// Declaration renders the GLSL uniform declaration.
func (u *Uniform) Declaration() string {
	if u.ArrayLen > 0 {
		return fmt.Sprintf("uniform %s %s[%d];", u.Type, u.Name, u.ArrayLen)
	}
	return fmt.Sprintf("uniform %s %s;", u.Type, u.Name)
}

func (u *Uniform) sameShape(o *Uniform) bool {
	return u.Type == o.Type && u.ArrayLen == o.ArrayLen
}

var reArrayName = regexp.MustCompile(`^(\w+)\s*\[\s*(\d+)\s*\]$`)

// splitArrayName splits "weights[3]" into ("weights", 3).
func splitArrayName(name string) (string, int) {
	m := reArrayName.FindStringSubmatch(name)
	if m == nil {
		return name, 0
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return name, 0
	}
	return m[1], n
}
