package shade

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// StageScript is one pipeline stage of a program.
type StageScript struct {
	Name string
	Kind StageKind

	Structs    []*Struct
	Attributes []Attribute
	Uniforms   []*Uniform
	// ExpandedUniforms is nil until the program is linked.
	ExpandedUniforms []*Uniform

	Provides []Varying
	Requests []Varying
	// Outputs lists the fragment output slots bound by @write.
	Outputs []int
	Chain   Chain

	// Source is the processed body: directive lines replaced by their
	// emitted equivalents, plain code untouched.
	Source    string
	Processed bool

	body        string
	libraryCode []string
	items       []bodyItem
	// leaves holds the expanded uniforms, built once per Process so that
	// values set on them survive a re-link.
	leaves []*Uniform
}

// NewStageScript creates an unprocessed stage from its block body.
func NewStageScript(name string, kind StageKind, body string) *StageScript {
	return &StageScript{Name: name, Kind: kind, body: body}
}

// Body returns the unprocessed block body.
func (s *StageScript) Body() string { return s.body }

// Provide returns the @provide of name, if any.
func (s *StageScript) Provide(name string) (Varying, bool) {
	for _, v := range s.Provides {
		if v.Name == name {
			return v, true
		}
	}
	return Varying{}, false
}

// bodyItem is one emitted body line. Provides and writes are rendered at
// link time.
type bodyItem struct {
	line    int
	indent  string
	text    string
	provide *ProvideDirective
	write   *WriteDirective
}

// OutputName is the GLSL output variable bound to a fragment slot.
func OutputName(slot int) string {
	return "fragOut" + strconv.Itoa(slot)
}

// renderBody renders the body. A provide in live becomes an assignment to
// the stage output; any other provide becomes a local declaration so that
// later uses in the body still compile. A nil live keeps every provide as
// an assignment.
func (s *StageScript) renderBody(live map[string]bool) string {
	lines := make([]string, 0, len(s.items))
	for _, it := range s.items {
		switch {
		case it.provide != nil:
			p := it.provide
			if live == nil || live[p.Name] {
				lines = append(lines, fmt.Sprintf("%s%s = %s;", it.indent, p.Name, p.Expr))
			} else {
				lines = append(lines, fmt.Sprintf("%s%s %s = %s;", it.indent, p.Type, p.Name, p.Expr))
			}
		case it.write != nil:
			lines = append(lines, fmt.Sprintf("%s%s = %s;", it.indent, OutputName(it.write.Slot), it.write.Name))
		default:
			lines = append(lines, it.text)
		}
	}
	return strings.Join(lines, "\n")
}

var reAttribute = regexp.MustCompile(`^(?:layout\s*\(\s*location\s*=\s*(?P<loc>\d+)\s*\)\s*)?in\s+(?P<type>\w+)\s+(?P<name>\w+)\s*;$`) // [layout(location = N)] in type name;

type processor struct {
	s     *StageScript
	opts  *Options
	entry *regexp.Regexp

	depth      int
	entryOpen  bool // signature seen, body not yet opened
	inEntry    bool
	entryFound bool

	uniforms map[string]*Uniform
	structs  map[string]bool
}

// Process runs every line of the stage body, and of the imported
// libraries' blocks for this stage, through the directive matchers and
// fills in the script. Previous results are replaced.
func Process(s *StageScript, imports []Import, opts *Options) error {
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	s.Structs, s.Attributes, s.Uniforms, s.ExpandedUniforms = nil, nil, nil, nil
	s.Provides, s.Requests, s.Outputs = nil, nil, nil
	s.libraryCode, s.items, s.leaves = nil, nil, nil
	s.Processed = false

	p := &processor{
		s:        s,
		opts:     opts,
		entry:    regexp.MustCompile(`^void\s+` + regexp.QuoteMeta(opts.EntryPoint) + `\s*\(\s*(?:void)?\s*\)`),
		uniforms: map[string]*Uniform{},
		structs:  map[string]bool{},
	}

	seen := map[string]bool{}
	for _, imp := range imports {
		body, ok := imp.Lib.Blocks.Stages[s.Kind]
		if !ok || seen[imp.Lib.Name] {
			continue
		}
		seen[imp.Lib.Name] = true
		code, err := p.library(imp.Lib.Name, body)
		if err != nil {
			return err
		}
		if code != "" {
			s.libraryCode = append(s.libraryCode, code)
		}
	}
	s.Chain = buildChain(s.Kind, imports)

	if err := p.body(); err != nil {
		return err
	}
	for _, u := range s.Uniforms {
		s.leaves = append(s.leaves, opts.Structs.Expand(u)...)
	}
	s.Source = s.renderBody(nil)
	s.Processed = true
	return nil
}

// library keeps a library block's code and registers its @require lines.
func (p *processor) library(name, body string) (string, error) {
	var out []string
	for i, line := range strings.Split(body, "\n") {
		d, ok, err := MatchDirective(line)
		if err != nil {
			return "", p.fail(err, i+1, name)
		}
		if !ok {
			out = append(out, line)
			continue
		}
		req, isRequire := d.(RequireDirective)
		if !isRequire {
			e := newError(KindDirectiveScope, "only @require is allowed in a library")
			e.Directive = strings.TrimSpace(line)
			return "", p.fail(e, i+1, name)
		}
		if err := p.require(req); err != nil {
			return "", p.fail(err, i+1, name)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n")), nil
}

func (p *processor) body() error {
	s := p.s
	for i, line := range strings.Split(s.body, "\n") {
		n := i + 1
		d, ok, err := MatchDirective(line)
		if err != nil {
			return p.fail(err, n, "")
		}
		if ok {
			if err := p.directive(d, line, n); err != nil {
				return p.fail(err, n, "")
			}
			continue
		}
		if s.Kind == StageVertex && p.depth == 0 {
			if m := reAttribute.FindStringSubmatch(stripLineComment(strings.TrimSpace(line))); m != nil {
				p.attribute(m)
				continue
			}
		}
		p.track(line)
		s.items = append(s.items, bodyItem{line: n, text: line})
	}
	return nil
}

func (p *processor) directive(d Directive, line string, n int) error {
	s := p.s
	scope := func(format string, args ...any) error {
		e := newError(KindDirectiveScope, format, args...)
		e.Directive = strings.TrimSpace(line)
		return e
	}
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]

	switch d := d.(type) {
	case ExtendsDirective:
		return scope("#extends is only legal as a global statement")
	case ImportDirective:
		return scope("@import is only legal as a global statement")
	case RequireDirective:
		if p.inEntry {
			return scope("@require inside %s()", p.opts.EntryPoint)
		}
		return p.require(d)
	case ProvideDirective:
		if !p.inEntry {
			return scope("@provide outside %s()", p.opts.EntryPoint)
		}
		if _, dup := s.Provide(d.Name); dup {
			return scope("%q is provided twice", d.Name)
		}
		s.Provides = append(s.Provides, Varying{Variable: d.Variable, Line: n})
		s.items = append(s.items, bodyItem{line: n, indent: indent, provide: &d})
	case RequestDirective:
		if p.inEntry {
			return scope("@request inside %s()", p.opts.EntryPoint)
		}
		if s.Kind == StageVertex {
			return scope("@request in %s, which has no earlier stage", s.Kind)
		}
		for _, r := range s.Requests {
			if r.Name != d.Name {
				continue
			}
			if r.Type != d.Type {
				e := newError(KindTypeMismatch, "%q requested as %s and %s", d.Name, r.Type, d.Type)
				e.Directive = strings.TrimSpace(line)
				return e
			}
			return nil
		}
		s.Requests = append(s.Requests, Varying{Variable: d.Variable, Line: n})
	case YieldDirective:
		if !p.inEntry {
			return scope("@yield outside %s()", p.opts.EntryPoint)
		}
		if s.Chain.Len() == 0 {
			return nil
		}
		value := d.Name
		if value == "" {
			value = p.opts.Ambient[s.Kind]
		}
		if value == "" {
			return scope("no ambient value for @yield in %s", s.Kind)
		}
		s.items = append(s.items, bodyItem{line: n, text: fmt.Sprintf("%s%s = %s;", indent, value, s.Chain.Apply(value))})
	case WriteDirective:
		if s.Kind != StageFragment {
			return scope("@write is only legal in the FRAGMENT stage")
		}
		if !p.inEntry {
			return scope("@write outside %s()", p.opts.EntryPoint)
		}
		if !slices.Contains(s.Outputs, d.Slot) {
			s.Outputs = append(s.Outputs, d.Slot)
		}
		s.items = append(s.items, bodyItem{line: n, indent: indent, write: &d})
	}
	return nil
}

func (p *processor) require(d RequireDirective) error {
	n := d.ArrayLen
	if !IsPrimitive(d.Type) {
		st, ok := p.opts.Structs.Lookup(d.Type)
		if !ok {
			return newError(KindUnknownStruct, "no registered struct %q for uniform %q", d.Type, d.Name)
		}
		if st.MaxInstances > 0 {
			if n == 0 {
				n = st.MaxInstances
			} else if n > st.MaxInstances {
				return newError(KindArrayBound, "%s array %q has %d elements, the maximum is %d", d.Type, d.Name, n, st.MaxInstances)
			}
		}
		for _, dep := range p.opts.Structs.Dependencies(d.Type) {
			if !p.structs[dep.Name] {
				p.structs[dep.Name] = true
				p.s.Structs = append(p.s.Structs, dep)
			}
		}
	}

	u := NewUniform(d.Type, d.Name)
	u.ArrayLen = n
	if prev, ok := p.uniforms[d.Name]; ok {
		if prev.sameShape(u) {
			return nil
		}
		return newError(KindAmbiguousUniform, "uniform %q declared as %s and %s", d.Name, declType(prev), declType(u))
	}
	p.uniforms[d.Name] = u
	p.s.Uniforms = append(p.s.Uniforms, u)
	return nil
}

func (p *processor) attribute(m []string) {
	loc := -1
	if v := m[reAttribute.SubexpIndex("loc")]; v != "" {
		loc, _ = strconv.Atoi(v)
	}
	p.s.Attributes = append(p.s.Attributes, Attribute{
		Variable: Variable{Type: m[reAttribute.SubexpIndex("type")], Name: m[reAttribute.SubexpIndex("name")]},
		Location: loc,
	})
}

// track follows brace depth to know whether the next line is inside the
// entry point body.
func (p *processor) track(line string) {
	code := stripLineComment(strings.TrimSpace(line))
	if p.depth == 0 && !p.entryFound && p.entry.MatchString(code) {
		p.entryOpen = true
		p.entryFound = true
	}
	for _, c := range code {
		switch c {
		case '{':
			p.depth++
			if p.entryOpen && p.depth == 1 {
				p.entryOpen = false
				p.inEntry = true
			}
		case '}':
			if p.depth > 0 {
				p.depth--
			}
			if p.depth == 0 {
				p.inEntry = false
			}
		}
	}
}

func (p *processor) fail(err error, line int, library string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	stage := p.s.Kind.String()
	if library != "" {
		stage += "@" + library
	}
	return e.at("", stage, line)
}

func declType(u *Uniform) string {
	if u.ArrayLen > 0 {
		return fmt.Sprintf("%s[%d]", u.Type, u.ArrayLen)
	}
	return u.Type
}
