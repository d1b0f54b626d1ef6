package shade

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inspector(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fsys := testFS()
	delete(fsys, "shaders/broken.yaml")
	e := NewEngineFS(fsys, "shaders")
	require.NoError(t, e.Load())

	r := gin.New()
	RegisterRoutes(r, e)
	return r
}

type uniformJSON struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ValueType string `json:"valueType"`
}

func get(r http.Handler, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	return w
}

func TestInspectorPrograms(t *testing.T) {
	w := get(inspector(t), "/programs")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Programs []string `json:"programs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"phong", "split"}, body.Programs)
}

func TestInspectorUniforms(t *testing.T) {
	r := inspector(t)
	w := get(r, "/programs/split/uniforms")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Uniforms []uniformJSON `json:"uniforms"`
		Expanded []uniformJSON `json:"expanded"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Uniforms, 2)
	assert.Equal(t, "fogColor", body.Uniforms[0].Name)
	assert.Equal(t, "vec3", body.Uniforms[0].Type)
	require.Len(t, body.Expanded, 2)
	assert.Equal(t, "fogDensity", body.Expanded[1].Name)
	assert.Equal(t, ValueFloat.String(), body.Expanded[1].ValueType)

	assert.Equal(t, http.StatusNotFound, get(r, "/programs/nope/uniforms").Code)
}

func TestInspectorStageSource(t *testing.T) {
	r := inspector(t)
	w := get(r, "/programs/split/stages/fragment")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "#version 300 es"))
	assert.Contains(t, w.Body.String(), "fragOut0 = color;")

	assert.Equal(t, http.StatusBadRequest, get(r, "/programs/split/stages/compute").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/programs/split/stages/geometry").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/programs/nope/stages/vertex").Code)
}
