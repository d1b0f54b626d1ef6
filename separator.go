package shade

import (
	"regexp"
	"strings"
)

const (
	blockStartMarker = "#begin"
	blockEndMarker   = "#end"
)

var (
	reBlockStart = regexp.MustCompile(`(?m)^[ \t]*#begin\b`)                                               // #begin
	reBlockEnd   = regexp.MustCompile(`(?m)^[ \t]*#end[ \t]*\r?$`)                                         // #end, never #endif
	reBlock      = regexp.MustCompile(`(?s)^\s*#begin[ \t]+(?P<type>\w+)[ \t]*(?:\r?\n(?P<content>.*))?$`) // #begin TYPE \n content
)

// Blocks is a combined source split into its global statements and
// per-stage bodies.
type Blocks struct {
	Globals []string
	Stages  map[StageKind]string
	// Order lists the stages in source order.
	Order []StageKind
}

// Separate splits src into the trimmed global lines preceding the first
// block and a mapping from stage to trimmed block content.
func Separate(src string) (*Blocks, error) {
	b := &Blocks{Stages: map[StageKind]string{}}
	head, rest := src, ""
	if loc := reBlockStart.FindStringIndex(src); loc != nil {
		head, rest = src[:loc[0]], src[loc[0]:]
	}

	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		b.Globals = append(b.Globals, line)
	}
	if rest == "" {
		return b, nil
	}

	chunks := reBlockEnd.Split(rest, -1)
	// the text after the final end marker must be empty
	if tail := chunks[len(chunks)-1]; strings.TrimSpace(tail) != "" {
		e := newError(KindMalformedBlock, "block without %s marker", blockEndMarker)
		e.Directive = firstLine(tail)
		return nil, e
	}
	for _, chunk := range chunks[:len(chunks)-1] {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		m := reBlock.FindStringSubmatch(chunk)
		if m == nil {
			e := newError(KindMalformedBlock, "expected %s <STAGE>", blockStartMarker)
			e.Directive = firstLine(chunk)
			return nil, e
		}
		typ := m[reBlock.SubexpIndex("type")]
		content := m[reBlock.SubexpIndex("content")]
		kind, ok := ParseStageKind(typ)
		if !ok {
			e := newError(KindMalformedBlock, "unknown stage %q", typ)
			e.Directive = firstLine(chunk)
			return nil, e
		}
		if reBlockStart.MatchString(content) {
			e := newError(KindMalformedBlock, "%s block opened before the previous one was closed", kind)
			e.Directive = firstLine(chunk)
			return nil, e
		}
		if _, dup := b.Stages[kind]; dup {
			e := newError(KindMalformedBlock, "duplicate %s block", kind)
			e.Directive = firstLine(chunk)
			return nil, e
		}
		b.Stages[kind] = strings.TrimSpace(content)
		b.Order = append(b.Order, kind)
	}
	return b, nil
}

// Assemble is the inverse of Separate: it renders globals followed by one
// block per stage in pipeline order.
func Assemble(globals []string, stages map[StageKind]string) string {
	var sb strings.Builder
	for _, g := range globals {
		sb.WriteString(g)
		sb.WriteString("\n")
	}
	for _, kind := range PipelineOrder {
		body, ok := stages[kind]
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(blockStartMarker)
		sb.WriteString(" ")
		sb.WriteString(kind.String())
		sb.WriteString("\n")
		if body = strings.TrimSpace(body); body != "" {
			sb.WriteString(body)
			sb.WriteString("\n")
		}
		sb.WriteString(blockEndMarker)
		sb.WriteString("\n")
	}
	return sb.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
