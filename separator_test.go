package shade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeparate(t *testing.T) {
	src := `
// phong program
@import fog.slib;
  @import tint from colors.slib;

#begin VERTEX
void main() {
    gl_Position = vec4(0.0);
}
#end

#begin fragment
#ifdef HIGH
float q = 1.0;
#endif
void main() {}
#end
`
	b, err := Separate(src)
	require.NoError(t, err)
	assert.Equal(t, []string{"@import fog.slib;", "@import tint from colors.slib;"}, b.Globals)
	assert.Equal(t, []StageKind{StageVertex, StageFragment}, b.Order)
	assert.Equal(t, "void main() {\n    gl_Position = vec4(0.0);\n}", b.Stages[StageVertex])
	assert.Equal(t, "#ifdef HIGH\nfloat q = 1.0;\n#endif\nvoid main() {}", b.Stages[StageFragment])
}

func TestSeparateRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		globals []string
		stages  map[StageKind]string
	}{
		{"single", nil, map[StageKind]string{StageVertex: "void main() {}"}},
		{"all stages", []string{"@import fog.slib;"}, map[StageKind]string{
			StageVertex:   "in vec3 p;\nvoid main() {\n    gl_Position = vec4(p, 1.0);\n}",
			StageGeometry: "layout(points) in;\nvoid main() {}",
			StageFragment: "void main() {\n    @write color;\n}",
		}},
		{"empty body", nil, map[StageKind]string{StageFragment: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Separate(Assemble(tt.globals, tt.stages))
			require.NoError(t, err)
			assert.Equal(t, tt.stages, b.Stages)
			assert.Equal(t, len(tt.globals), len(b.Globals))
			for i := range tt.globals {
				assert.Equal(t, tt.globals[i], b.Globals[i])
			}
		})
	}
}

func TestSeparateGlobalsOnly(t *testing.T) {
	b, err := Separate("@import fog.slib;\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"@import fog.slib;"}, b.Globals)
	assert.Empty(t, b.Stages)
}

func TestSeparateTrailingWhitespaceIgnored(t *testing.T) {
	b, err := Separate("#begin VERTEX\nvoid main() {}\n#end\n\n   \n")
	require.NoError(t, err)
	assert.Len(t, b.Stages, 1)
}

func TestSeparateMalformed(t *testing.T) {
	tests := map[string]string{
		"missing end":     "#begin VERTEX\nvoid main() {}\n",
		"unknown stage":   "#begin COMPUTE\nvoid main() {}\n#end\n",
		"missing type":    "#begin\nvoid main() {}\n#end\n",
		"junk between":    "#begin VERTEX\n#end\nfloat x;\n#begin FRAGMENT\n#end\n",
		"nested":          "#begin VERTEX\n#begin FRAGMENT\n#end\n",
		"duplicate stage": "#begin VERTEX\n#end\n#begin VERTEX\n#end\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Separate(src)
			require.ErrorIs(t, err, ErrMalformedBlock)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.NotEmpty(t, e.Directive)
		})
	}
}
