package bench_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dangdungcntt/go-shade"
	"github.com/stretchr/testify/require"
)

const fogLib = `#begin FRAGMENT
@require vec3 fogColor;
@require float fogDensity;
vec4 fog(vec4 color) {
    float f = clamp(exp(-fogDensity * gl_FragCoord.z / gl_FragCoord.w), 0.0, 1.0);
    return vec4(mix(fogColor, color.rgb, f), color.a);
}
#end
`

// makeLargeProgram builds a program with enough varyings, lights and
// helper code that parse and link costs show up in the benchmark.
func makeLargeProgram() string {
	var vert, frag strings.Builder
	vert.WriteString("layout(location = 0) in vec3 inPosition;\n@require mat4 mvp;\n@require PointLight pointLights;\n")
	frag.WriteString("@require Material material;\n@require SpotLight spotLights;\n")
	for i := range 24 {
		fmt.Fprintf(&vert, "vec3 helper%d(vec3 p) { return p * %d.0; }\n", i, i+1)
	}
	vert.WriteString("void main() {\n")
	frag.WriteString("void main() {\n    vec4 color = vec4(0.0);\n")
	for i := range 24 {
		fmt.Fprintf(&vert, "    @provide vec3 v%d = helper%d(inPosition);\n", i, i)
		fmt.Fprintf(&frag, "    color.rgb += v%d;\n", i)
	}
	vert.WriteString("    gl_Position = mvp * vec4(inPosition, 1.0);\n}")
	frag.WriteString("    @yield;\n    @write color;\n}")

	var reqs strings.Builder
	for i := range 24 {
		fmt.Fprintf(&reqs, "@request vec3 v%d;\n", i)
	}
	return shade.Assemble([]string{"@import fog.slib;"}, map[shade.StageKind]string{
		shade.StageVertex:   vert.String(),
		shade.StageFragment: reqs.String() + frag.String(),
	})
}

var (
	programSource = makeLargeProgram()
	loader        = shade.MapLoader{"fog.slib": fogLib}
)

// 1) Parse and link on every iteration (uncached compile)
func Benchmark_Program_CompileEachTime(b *testing.B) {
	_, err := shade.Compile("big", programSource, loader, shade.DefaultOptions())
	require.NoError(b, err, "compile program failed")

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := shade.Compile("big", programSource, loader, shade.DefaultOptions()); err != nil {
				b.Fatalf("compile failed: %v", err)
			}
		}
	})
}

// 2) Re-link already processed scripts
func Benchmark_Program_Relink(b *testing.B) {
	p := shade.NewProgram("big", programSource, loader, shade.DefaultOptions())
	require.NoError(b, p.Parse(), "parse program failed")

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		if err := p.Link(); err != nil {
			b.Fatalf("link failed: %v", err)
		}
	}
}

// 3) Read cached sources and uniforms from a linked program (concurrent-safe)
func Benchmark_Program_CachedLookup(b *testing.B) {
	p, err := shade.Compile("big", programSource, loader, shade.DefaultOptions())
	require.NoError(b, err, "compile program failed")

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, ok := p.Source(shade.StageFragment); !ok {
				b.Fatal("missing fragment source")
			}
			if _, ok := p.ExpandedUniform("spotLights[3].cutoff"); !ok {
				b.Fatal("missing expanded uniform")
			}
		}
	})
}
