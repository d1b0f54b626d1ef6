package shade

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Directive is one recognised composition directive. The concrete types
// below carry the captured fields by name.
type Directive interface {
	directive()
}

// ExtendsDirective copies a sibling shader's body under the current one.
type ExtendsDirective struct {
	Parent string
}

// ImportDirective pulls a library into every stage it has a block for.
type ImportDirective struct {
	// Module names the library's processing function. It defaults to the
	// library base name.
	Module  string
	Library string
}

// RequireDirective declares a uniform the stage depends on.
type RequireDirective struct {
	Variable
	ArrayLen int
}

// ProvideDirective hands a value to later stages.
type ProvideDirective struct {
	Variable
	Expr string
}

// RequestDirective consumes a value provided by an earlier stage.
type RequestDirective struct {
	Variable
}

// YieldDirective is the splice point for imported library code. An empty
// Name means the stage's ambient value.
type YieldDirective struct {
	Name string
}

// WriteDirective binds a fragment output slot.
type WriteDirective struct {
	Slot int
	Name string
}

func (ExtendsDirective) directive() {}
func (ImportDirective) directive()  {}
func (RequireDirective) directive() {}
func (ProvideDirective) directive() {}
func (RequestDirective) directive() {}
func (YieldDirective) directive()   {}
func (WriteDirective) directive()   {}

var (
	reExtends = regexp.MustCompile(`^#extends\s+(?P<parent>[\w\-/.]+)\s*;$`)                                       // #extends base;
	reImport  = regexp.MustCompile(`^@import\s+(?:(?P<module>\w+)\s+from\s+)?(?P<library>[\w\-/.]+\.slib)\s*;$`)   // @import [module from] lib.slib;
	reRequire = regexp.MustCompile(`^@require\s+(?P<type>\w+)\s+(?P<name>\w+)\s*(?:\[\s*(?P<len>\d+)\s*\])?\s*;$`) // @require type name[N];
	reProvide = regexp.MustCompile(`^@provide\s+(?P<type>\w+)\s+(?P<name>\w+)\s*=\s*(?P<expr>.+?)\s*;$`)           // @provide type name = expr;
	reRequest = regexp.MustCompile(`^@request\s+(?P<type>\w+)\s+(?P<name>\w+)\s*;$`)                               // @request type name;
	reYield   = regexp.MustCompile(`^@yield(?:\s+(?P<name>[\w.]+))?\s*;$`)                                         // @yield[ name];
	reWrite   = regexp.MustCompile(`^@write(?:\s*\(\s*(?P<slot>\d+)\s*\))?\s+(?P<name>\w+)\s*;$`)                  // @write[(slot)] name;
)

// groups gives named access to a regexp match.
type groups struct {
	re *regexp.Regexp
	m  []string
}

func (g groups) get(name string) string {
	i := g.re.SubexpIndex(name)
	if i < 0 || i >= len(g.m) {
		return ""
	}
	return g.m[i]
}

type matcher struct {
	anchor string
	re     *regexp.Regexp
	build  func(g groups) Directive
}

// matchers are tried in this order; anchors never overlap, so a line
// matches at most one kind.
var matchers = []matcher{
	{"#extends", reExtends, func(g groups) Directive {
		return ExtendsDirective{Parent: g.get("parent")}
	}},
	{"@import", reImport, func(g groups) Directive {
		lib := g.get("library")
		module := g.get("module")
		if module == "" {
			module = strings.TrimSuffix(path.Base(lib), path.Ext(lib))
		}
		return ImportDirective{Module: module, Library: lib}
	}},
	{"@require", reRequire, func(g groups) Directive {
		n, _ := strconv.Atoi(g.get("len"))
		return RequireDirective{Variable: Variable{Type: g.get("type"), Name: g.get("name")}, ArrayLen: n}
	}},
	{"@provide", reProvide, func(g groups) Directive {
		return ProvideDirective{Variable: Variable{Type: g.get("type"), Name: g.get("name")}, Expr: g.get("expr")}
	}},
	{"@request", reRequest, func(g groups) Directive {
		return RequestDirective{Variable: Variable{Type: g.get("type"), Name: g.get("name")}}
	}},
	{"@yield", reYield, func(g groups) Directive {
		return YieldDirective{Name: g.get("name")}
	}},
	{"@write", reWrite, func(g groups) Directive {
		slot, _ := strconv.Atoi(g.get("slot"))
		return WriteDirective{Slot: slot, Name: g.get("name")}
	}},
}

// MatchDirective recognises the directive on line, if any. A line that
// starts with a directive anchor but does not fit its syntax, or carries
// an @ directive after other code, is an error.
func MatchDirective(line string) (Directive, bool, error) {
	s := stripLineComment(strings.TrimSpace(line))
	for _, mt := range matchers {
		if !hasAnchor(s, mt.anchor) {
			continue
		}
		m := mt.re.FindStringSubmatch(s)
		if m == nil {
			e := newError(KindMalformedDirective, "malformed %s directive", mt.anchor)
			e.Directive = strings.TrimSpace(line)
			return nil, false, e
		}
		return mt.build(groups{re: mt.re, m: m}), true, nil
	}
	if anchor, ok := midLineAnchor(s); ok {
		e := newError(KindMalformedDirective, "%s must start its line", anchor)
		e.Directive = strings.TrimSpace(line)
		return nil, false, e
	}
	return nil, false, nil
}

var reBlockComment = regexp.MustCompile(`/\*.*?\*/`)

// midLineAnchor finds a directive anchor that follows other code on the
// line. GLSL has no use for '@', so such a line is a misplaced directive.
func midLineAnchor(s string) (string, bool) {
	s = reBlockComment.ReplaceAllString(s, "")
	for i := strings.IndexByte(s, '@'); i >= 0; {
		for _, mt := range matchers {
			if hasAnchor(s[i:], mt.anchor) {
				return mt.anchor, true
			}
		}
		next := strings.IndexByte(s[i+1:], '@')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return "", false
}

// IsDirective reports whether line starts with any directive anchor.
func IsDirective(line string) bool {
	s := strings.TrimSpace(line)
	for _, mt := range matchers {
		if hasAnchor(s, mt.anchor) {
			return true
		}
	}
	return false
}

func hasAnchor(s, anchor string) bool {
	if !strings.HasPrefix(s, anchor) {
		return false
	}
	if len(s) == len(anchor) {
		return true
	}
	c := s[len(anchor)]
	return !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9')
}

func stripLineComment(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
