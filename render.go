package shade

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

var _ render.Render = (*SourceRender)(nil)

// SourceRender is a gin render.Render that writes one emitted stage source.
type SourceRender struct {
	e       *Engine
	program string
	stage   StageKind
}

// NewSourceRender creates a render for a program stage.
func NewSourceRender(e *Engine, program string, stage StageKind) *SourceRender {
	return &SourceRender{e: e, program: program, stage: stage}
}

// Render writes the stage source to w.
func (r *SourceRender) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)
	return r.e.WriteSource(w, r.program, r.stage)
}

// WriteContentType writes a plain text content type to the response header if not set
func (r *SourceRender) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = []string{"text/plain; charset=utf-8"}
	}
}

// UniformView is the JSON shape of a uniform table entry.
type UniformView struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	ArrayLen  int       `json:"arrayLen,omitempty"`
	ValueType ValueKind `json:"valueType"`
}

func uniformViews(us []*Uniform) []UniformView {
	out := make([]UniformView, len(us))
	for i, u := range us {
		out[i] = UniformView{Name: u.Name, Type: u.Type, ArrayLen: u.ArrayLen, ValueType: u.ValueType}
	}
	return out
}

// RegisterRoutes mounts a read-only inspector for the engine's programs:
//
//	GET /programs
//	GET /programs/:name/uniforms
//	GET /programs/:name/stages/:stage
func RegisterRoutes(r gin.IRoutes, e *Engine) {
	r.GET("/programs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"programs": e.Programs()})
	})

	r.GET("/programs/:name/uniforms", func(c *gin.Context) {
		p, ok := e.Program(c.Param("name"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "program not loaded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"uniforms": uniformViews(p.Uniforms()),
			"expanded": uniformViews(p.ExpandedUniforms()),
		})
	})

	r.GET("/programs/:name/stages/:stage", func(c *gin.Context) {
		name := c.Param("name")
		p, ok := e.Program(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "program not loaded"})
			return
		}
		kind, ok := ParseStageKind(c.Param("stage"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage"})
			return
		}
		if _, ok := p.Source(kind); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "stage not in program"})
			return
		}
		c.Render(http.StatusOK, NewSourceRender(e, name, kind))
	})
}
