package shade

import (
	"regexp"
	"strings"
)

// Library is a parsed *.slib: plain GLSL blocks, one per stage it
// contributes to, plus @require lines.
type Library struct {
	Name   string
	Blocks *Blocks
}

// ParseLibrary separates a library source. Libraries carry no global
// statements.
func ParseLibrary(name, src string) (*Library, error) {
	blocks, err := Separate(src)
	if err != nil {
		return nil, err
	}
	if len(blocks.Globals) > 0 {
		e := newError(KindDirectiveScope, "library %s has statements outside a stage block", name)
		e.Directive = blocks.Globals[0]
		return nil, e
	}
	return &Library{Name: name, Blocks: blocks}, nil
}

// defines reports whether the library's block for kind defines fn.
func (l *Library) defines(kind StageKind, fn string) bool {
	body, ok := l.Blocks.Stages[kind]
	if !ok {
		return false
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(fn) + `\s*\([^;{]*\)\s*(?:\{|$)`)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if re.MatchString(line) && !strings.HasPrefix(line, "//") {
			return true
		}
	}
	return false
}

// ChainStep is one library transform in a yield chain.
type ChainStep struct {
	Module  string
	Library string
}

// Chain is the ordered list of library transforms threaded through a
// stage's @yield splice points, applied left to right.
type Chain struct {
	Steps []ChainStep
}

// Len returns the number of steps.
func (c Chain) Len() int { return len(c.Steps) }

// Apply wraps value in every step: steps [A, B] give B(A(value)).
func (c Chain) Apply(value string) string {
	for _, s := range c.Steps {
		value = s.Module + "(" + value + ")"
	}
	return value
}

// Modules returns the step function names in application order.
func (c Chain) Modules() []string {
	out := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		out[i] = s.Module
	}
	return out
}

// Import pairs an @import with its parsed library.
type Import struct {
	ImportDirective
	Lib *Library
}

// buildChain keeps, in import order, the imports whose library defines
// the module function for kind.
func buildChain(kind StageKind, imports []Import) Chain {
	var c Chain
	for _, imp := range imports {
		if imp.Lib.defines(kind, imp.Module) {
			c.Steps = append(c.Steps, ChainStep{Module: imp.Module, Library: imp.Lib.Name})
		}
	}
	return c
}
