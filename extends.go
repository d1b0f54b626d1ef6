package shade

import (
	"path"
	"slices"
	"strings"
)

// ShaderExtension is appended to #extends parents named without one.
const ShaderExtension = ".shader"

// ResolveExtends separates src and, when it carries an #extends line,
// merges it over its parent chain. Parent globals come first; a child
// block replaces the parent block of the same stage.
func ResolveExtends(name, src string, loader Loader) (*Blocks, error) {
	return resolveExtends(src, loader, []string{normalizeName(name)})
}

func resolveExtends(src string, loader Loader, chain []string) (*Blocks, error) {
	blocks, err := Separate(src)
	if err != nil {
		return nil, err
	}

	parent := ""
	globals := blocks.Globals[:0:0]
	for _, line := range blocks.Globals {
		d, ok, err := MatchDirective(line)
		if err != nil {
			return nil, err
		}
		ext, isExtends := d.(ExtendsDirective)
		if !ok || !isExtends {
			globals = append(globals, line)
			continue
		}
		if parent != "" {
			e := newError(KindDirectiveScope, "more than one #extends")
			e.Directive = line
			return nil, e
		}
		parent = ext.Parent
	}
	blocks.Globals = globals
	if parent == "" {
		return blocks, nil
	}

	parentName := normalizeName(parent)
	if slices.Contains(chain, parentName) {
		return nil, newError(KindExtendsCycle, "%s -> %s", strings.Join(chain, " -> "), parentName)
	}
	file := parent
	if path.Ext(file) == "" {
		file += ShaderExtension
	}
	parentSrc, err := loader.Source(file)
	if err != nil {
		e := newError(KindMissingSource, "cannot load #extends parent %q", parent)
		e.Err = err
		return nil, e
	}
	base, err := resolveExtends(parentSrc, loader, append(slices.Clone(chain), parentName))
	if err != nil {
		return nil, err
	}

	merged := &Blocks{Stages: map[StageKind]string{}}
	merged.Globals = dedupeLines(append(base.Globals, blocks.Globals...))
	for _, kind := range base.Order {
		merged.Stages[kind] = base.Stages[kind]
		merged.Order = append(merged.Order, kind)
	}
	for _, kind := range blocks.Order {
		if _, ok := merged.Stages[kind]; !ok {
			merged.Order = append(merged.Order, kind)
		}
		merged.Stages[kind] = blocks.Stages[kind]
	}
	return merged, nil
}

// dedupeLines keeps the first occurrence of every line.
func dedupeLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := lines[:0:0]
	for _, l := range lines {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
