package shade

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Program is the unit of compilation: a raw combined source and the
// stage scripts parsed from it. After Link it is immutable apart from the
// per-frame values stored on its uniforms.
type Program struct {
	Name      string
	RawSource string
	Imports   []Import
	// Scripts holds one script per stage, in pipeline order.
	Scripts []*StageScript

	loader Loader
	opts   Options

	mu     sync.RWMutex
	linked *linkResult
}

// linkResult is everything Link builds. It is swapped in whole so readers
// never see a half-built table.
type linkResult struct {
	sources      map[StageKind]string
	uniforms     map[string]*Uniform
	uniformList  []*Uniform
	expanded     map[string]*Uniform
	expandedList []*Uniform
}

// NewProgram creates an unparsed program. A nil loader can only serve
// sources without @import or #extends.
func NewProgram(name, src string, loader Loader, opts Options) *Program {
	if loader == nil {
		loader = MapLoader{}
	}
	opts.withDefaults()
	return &Program{Name: name, RawSource: src, loader: loader, opts: opts}
}

// Compile parses and links a program in one step.
func Compile(name, src string, loader Loader, opts Options) (*Program, error) {
	p := NewProgram(name, src, loader, opts)
	if err := p.Parse(); err != nil {
		return nil, err
	}
	if err := p.Link(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse separates the raw source, resolves #extends and @import, and
// processes every stage. The previous scripts are replaced wholesale and
// the uniform caches invalidated.
func (p *Program) Parse() error {
	imports, scripts, err := p.parse()
	if err != nil {
		return withProgram(err, p.Name)
	}
	p.mu.Lock()
	p.Imports = imports
	p.Scripts = scripts
	p.linked = nil
	p.mu.Unlock()
	return nil
}

func (p *Program) parse() ([]Import, []*StageScript, error) {
	blocks, err := ResolveExtends(p.Name, p.RawSource, p.loader)
	if err != nil {
		return nil, nil, err
	}
	if len(blocks.Stages) == 0 {
		return nil, nil, newError(KindMalformedBlock, "no stage blocks")
	}

	ctx := newCompileContext(p.loader, &p.opts)
	var imports []Import
	for _, line := range blocks.Globals {
		d, ok, err := MatchDirective(line)
		if err != nil {
			return nil, nil, err
		}
		imp, isImport := d.(ImportDirective)
		if !ok || !isImport {
			e := newError(KindDirectiveScope, "only @import and #extends are legal outside a stage block")
			e.Directive = line
			return nil, nil, e
		}
		if slices.ContainsFunc(imports, func(i Import) bool { return i.ImportDirective == imp }) {
			continue
		}
		lib, err := ctx.library(imp.Library)
		if err != nil {
			return nil, nil, err
		}
		imports = append(imports, Import{ImportDirective: imp, Lib: lib})
	}

	var scripts []*StageScript
	for _, kind := range PipelineOrder {
		body, ok := blocks.Stages[kind]
		if !ok {
			continue
		}
		s := NewStageScript(p.Name+"."+strings.ToLower(kind.String()), kind, body)
		if err := Process(s, imports, &p.opts); err != nil {
			return nil, nil, err
		}
		scripts = append(scripts, s)
	}
	return imports, scripts, nil
}

// Link resolves provide/request pairs, prunes unconsumed provides,
// expands struct uniforms, emits the stage sources and rebuilds the
// uniform tables. Linking unchanged scripts again gives identical output.
func (p *Program) Link() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.Scripts) == 0 {
		return withProgram(newError(KindMalformedBlock, "program has no parsed stages"), p.Name)
	}
	for _, s := range p.Scripts {
		if !s.Processed {
			return withProgram(newError(KindMalformedBlock, "stage %s is not processed", s.Kind), p.Name)
		}
	}

	live, err := resolveVaryings(p.Scripts)
	if err != nil {
		return withProgram(err, p.Name)
	}

	res := &linkResult{
		sources:  map[StageKind]string{},
		uniforms: map[string]*Uniform{},
		expanded: map[string]*Uniform{},
	}
	expanded := make([][]*Uniform, len(p.Scripts))
	for i, s := range p.Scripts {
		leaves, err := res.merge(s)
		if err != nil {
			return withProgram(err, p.Name)
		}
		expanded[i] = leaves
		res.sources[s.Kind] = p.emit(s, live)
	}

	for i, s := range p.Scripts {
		s.ExpandedUniforms = expanded[i]
		pruned := 0
		for _, v := range s.Provides {
			if !live[s.Kind][v.Name] {
				pruned++
				Logger().Debug("shade: pruned unconsumed provide", "program", p.Name, "stage", s.Kind.String(), "name", v.Name)
			}
		}
		Logger().Debug("shade: linked stage", "program", p.Name, "stage", s.Kind.String(),
			"uniforms", len(s.Uniforms), "expanded", len(expanded[i]), "pruned", pruned)
	}
	p.linked = res
	return nil
}

// resolveVaryings matches every request against the nearest earlier
// provide and returns, per stage, the provided names that are consumed.
func resolveVaryings(scripts []*StageScript) (map[StageKind]map[string]bool, error) {
	live := map[StageKind]map[string]bool{}
	for _, s := range scripts {
		live[s.Kind] = map[string]bool{}
	}
	for i, s := range scripts {
		for _, req := range s.Requests {
			var searched []string
			found := false
			for j := i - 1; j >= 0; j-- {
				src := scripts[j]
				searched = append(searched, src.Kind.String())
				prov, ok := src.Provide(req.Name)
				if !ok {
					continue
				}
				if prov.Type != req.Type {
					e := newError(KindTypeMismatch, "%q requested as %s but %s provides %s", req.Name, req.Type, src.Kind, prov.Type)
					return nil, e.at("", s.Kind.String(), req.Line)
				}
				live[src.Kind][req.Name] = true
				found = true
				break
			}
			if !found {
				msg := fmt.Sprintf("no @provide for request %q", req.Name)
				if len(searched) > 0 {
					msg += " (searched " + strings.Join(searched, ", ") + ")"
				} else {
					msg += " (no earlier stage)"
				}
				e := newError(KindUnresolvedRequest, "%s", msg)
				e.Directive = "@request " + req.String() + ";"
				return nil, e.at("", s.Kind.String(), req.Line)
			}
		}
	}
	return live, nil
}

// merge adds a stage's uniforms to the program tables. A name already in
// the table refers to the same logical uniform when its shape matches.
// It returns the stage's expanded uniforms, sharing the table's entries.
func (r *linkResult) merge(s *StageScript) ([]*Uniform, error) {
	for _, u := range s.Uniforms {
		if prev, ok := r.uniforms[u.Name]; ok {
			if !prev.sameShape(u) {
				e := newError(KindAmbiguousUniform, "uniform %q declared as %s and as %s", u.Name, declType(prev), declType(u))
				return nil, e.at("", s.Kind.String(), 0)
			}
			continue
		}
		r.uniforms[u.Name] = u
		r.uniformList = append(r.uniformList, u)
	}
	leaves := make([]*Uniform, 0, len(s.leaves))
	for _, u := range s.leaves {
		if prev, ok := r.expanded[u.Name]; ok {
			leaves = append(leaves, prev)
			continue
		}
		r.expanded[u.Name] = u
		r.expandedList = append(r.expandedList, u)
		leaves = append(leaves, u)
	}
	return leaves, nil
}

// emit renders the final source of a stage: version, struct
// definitions, uniforms, varyings, outputs, attributes, library code,
// body.
func (p *Program) emit(s *StageScript, live map[StageKind]map[string]bool) string {
	var sb strings.Builder
	section := func(lines []string) {
		if len(lines) == 0 {
			return
		}
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n\n")
	}

	sb.WriteString("#version ")
	sb.WriteString(p.opts.GLSLVersion)
	sb.WriteString("\n\n")

	defs := make([]string, 0, len(s.Structs))
	for _, st := range s.Structs {
		defs = append(defs, st.Definition())
	}
	section(defs)

	decls := make([]string, 0, len(s.Uniforms))
	for _, u := range s.Uniforms {
		decls = append(decls, u.Declaration())
	}
	section(decls)

	var varyings []string
	for _, r := range s.Requests {
		if s.Kind == StageGeometry {
			varyings = append(varyings, fmt.Sprintf("in %s %s[];", r.Type, r.Name))
		} else {
			varyings = append(varyings, fmt.Sprintf("in %s %s;", r.Type, r.Name))
		}
	}
	for _, v := range s.Provides {
		if live[s.Kind][v.Name] {
			varyings = append(varyings, fmt.Sprintf("out %s %s;", v.Type, v.Name))
		}
	}
	section(varyings)

	outputs := make([]string, 0, len(s.Outputs))
	for _, slot := range s.Outputs {
		outputs = append(outputs, fmt.Sprintf("layout(location = %d) out vec4 %s;", slot, OutputName(slot)))
	}
	section(outputs)

	attrs := make([]string, 0, len(s.Attributes))
	for i, a := range s.Attributes {
		loc := a.Location
		if loc < 0 {
			loc = i
		}
		attrs = append(attrs, fmt.Sprintf("layout(location = %d) in %s;", loc, a.Variable))
	}
	section(attrs)

	// library functions may use any declaration above
	section(s.libraryCode)

	sb.WriteString(strings.Trim(s.renderBody(live[s.Kind]), "\n"))
	sb.WriteString("\n")
	return sb.String()
}

// Script returns the script of a stage.
func (p *Program) Script(kind StageKind) (*StageScript, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.Scripts {
		if s.Kind == kind {
			return s, true
		}
	}
	return nil, false
}

// Stages returns the program's stages in pipeline order.
func (p *Program) Stages() []StageKind {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]StageKind, len(p.Scripts))
	for i, s := range p.Scripts {
		out[i] = s.Kind
	}
	return out
}

// Linked reports whether the caches hold a linked result.
func (p *Program) Linked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.linked != nil
}

// Source returns the emitted source of a stage.
func (p *Program) Source(kind StageKind) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.linked == nil {
		return "", false
	}
	src, ok := p.linked.sources[kind]
	return src, ok
}

// Sources returns a copy of every emitted stage source.
func (p *Program) Sources() map[StageKind]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.linked == nil {
		return nil
	}
	return maps.Clone(p.linked.sources)
}

// Uniform looks up a declared uniform by name.
func (p *Program) Uniform(name string) (*Uniform, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.linked == nil {
		return nil, false
	}
	u, ok := p.linked.uniforms[name]
	return u, ok
}

// ExpandedUniform looks up a flattened leaf uniform such as
// "pointLights[2].attenuation.linear".
func (p *Program) ExpandedUniform(name string) (*Uniform, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.linked == nil {
		return nil, false
	}
	u, ok := p.linked.expanded[name]
	return u, ok
}

// Uniforms returns the declared uniforms in declaration order.
func (p *Program) Uniforms() []*Uniform {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.linked == nil {
		return nil
	}
	return slices.Clone(p.linked.uniformList)
}

// ExpandedUniforms returns every leaf uniform in expansion order.
func (p *Program) ExpandedUniforms() []*Uniform {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.linked == nil {
		return nil
	}
	return slices.Clone(p.linked.expandedList)
}

// Invalidate drops the linked sources and uniform tables. Call Link to
// rebuild them.
func (p *Program) Invalidate() {
	p.mu.Lock()
	p.linked = nil
	p.mu.Unlock()
}
