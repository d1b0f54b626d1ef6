package shade

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(src string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(src), ModTime: time.Now()}
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"shaders/shade.toml":   file(`glsl_version = "300 es"`),
		"shaders/fog.slib":     file(fogLibrary),
		"shaders/base.shader":  file(baseShader),
		"shaders/phong.yaml":   file("source: phong.shader\n"),
		"shaders/phong.shader": file("#extends base;\n"),
		"shaders/split.yaml": file(`name: split
stages:
  vertex: split.vert
  fragment: split.frag
imports: [fog.slib]
`),
		"shaders/split.vert": file(`@import fog.slib;
layout(location = 0) in vec3 inPosition;
void main() {
    @provide vec3 worldPos = inPosition;
    gl_Position = vec4(inPosition, 1.0);
}
`),
		"shaders/split.frag": file(`@request vec3 worldPos;
void main() {
    vec4 color = vec4(worldPos, 1.0);
    @yield;
    @write color;
}
`),
		"shaders/broken.yaml":   file("source: broken.shader\n"),
		"shaders/broken.shader": file("#begin FRAGMENT\n@request vec3 missing;\nvoid main() {}\n#end\n"),
		"shaders/notes.txt":     file("not a shader"),
	}
}

func TestEngineLoad(t *testing.T) {
	var logs bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	e := NewEngineFS(testFS(), "shaders")
	err := e.Load()
	require.ErrorIs(t, err, ErrUnresolvedRequest)
	assert.Contains(t, err.Error(), "broken")

	assert.Equal(t, []string{"phong", "split"}, e.Programs())
	_, ok := e.Program("broken")
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "program failed to compile")
	assert.Contains(t, logs.String(), "program=broken")

	split, ok := e.Program("split")
	require.True(t, ok)
	frag, ok := split.Source(StageFragment)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(frag, "#version 300 es\n"))
	assert.Contains(t, frag, "in vec3 worldPos;")
	assert.Contains(t, frag, "    color = fog(color);")

	var buf bytes.Buffer
	require.NoError(t, e.WriteSource(&buf, "phong.yaml", StageVertex))
	assert.Contains(t, buf.String(), "out vec3 normal;")
	require.Error(t, e.WriteSource(&buf, "phong", StageGeometry))
	require.Error(t, e.WriteSource(&buf, "nope", StageVertex))

	debug := e.GetDebugSources()
	assert.Len(t, debug, 4)
	assert.Contains(t, debug, "split/FRAGMENT")
}

func TestEngineRecompilesOnlyOnChange(t *testing.T) {
	fsys := testFS()
	delete(fsys, "shaders/broken.yaml")
	e := NewEngineFS(fsys, "shaders")
	require.NoError(t, e.Load())

	first, ok := e.Program("phong")
	require.True(t, ok)

	require.NoError(t, e.Load())
	again, _ := e.Program("phong")
	assert.Same(t, first, again)

	fsys["shaders/fog.slib"] = &fstest.MapFile{Data: []byte(fogLibrary), ModTime: time.Now().Add(time.Hour)}
	require.NoError(t, e.Load())
	changed, _ := e.Program("phong")
	assert.NotSame(t, first, changed)
}

func TestEngineWithOptionsIgnoresConfig(t *testing.T) {
	fsys := testFS()
	delete(fsys, "shaders/broken.yaml")
	e := NewEngineFS(fsys, "shaders").WithOptions(Options{GLSLVersion: "450"})
	require.NoError(t, e.Load())

	p, ok := e.Program("phong")
	require.True(t, ok)
	vert, _ := p.Source(StageVertex)
	assert.True(t, strings.HasPrefix(vert, "#version 450\n"))
}

func TestEngineDuplicateName(t *testing.T) {
	fsys := testFS()
	delete(fsys, "shaders/broken.yaml")
	fsys["shaders/copy.yml"] = file("name: phong\nsource: phong.shader\n")
	e := NewEngineFS(fsys, "shaders")
	err := e.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate program name "phong", already declared by shaders/copy.yml`)
	assert.Equal(t, []string{"phong", "split"}, e.Programs())
}

func TestEngineInvalidManifest(t *testing.T) {
	e := NewEngineFS(fstest.MapFS{"bad.yaml": file("name: bad\n")})
	require.Error(t, e.Load())
	assert.Empty(t, e.Programs())
}

func TestEngineSkipsBrokenManifest(t *testing.T) {
	var logs bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { SetLogger(nil) })

	fsys := testFS()
	delete(fsys, "shaders/broken.yaml")
	fsys["shaders/bad.yaml"] = file("stages: [\n")
	e := NewEngineFS(fsys, "shaders")

	err := e.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shaders/bad.yaml")
	assert.Equal(t, []string{"phong", "split"}, e.Programs())
	assert.Contains(t, logs.String(), "manifest skipped")

	fsys["shaders/bad.yaml"] = &fstest.MapFile{Data: []byte("source: phong.shader\n"), ModTime: time.Now().Add(time.Hour)}
	require.NoError(t, e.Load())
	assert.Equal(t, []string{"bad", "phong", "split"}, e.Programs())
}
