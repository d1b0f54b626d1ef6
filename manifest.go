package shade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
)

// Manifest declares one program: either a combined source file or one
// file per stage.
//
//	name: phong
//	stages:
//	  vertex: phong.vert
//	  fragment: phong.frag
//	imports: [fog.slib]
type Manifest struct {
	Name    string            `yaml:"name"`
	Source  string            `yaml:"source"`
	Stages  map[string]string `yaml:"stages"`
	Imports []string          `yaml:"imports"`
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if (m.Source == "") == (len(m.Stages) == 0) {
		return nil, errors.New("manifest needs exactly one of source or stages")
	}
	for stage := range m.Stages {
		if _, ok := ParseStageKind(stage); !ok {
			return nil, fmt.Errorf("manifest: unknown stage %q", stage)
		}
	}
	return &m, nil
}

// Assemble fetches the files the manifest references and returns the
// combined program source.
func (m *Manifest) Assemble(loader Loader) (string, error) {
	globals := make([]string, 0, len(m.Imports))
	for _, imp := range m.Imports {
		globals = append(globals, "@import "+strings.TrimSuffix(strings.TrimSpace(imp), ";")+";")
	}

	if m.Source != "" {
		src, err := loader.Source(m.Source)
		if err != nil {
			return "", fmt.Errorf("[%s] load source: %w", m.Name, err)
		}
		if len(globals) == 0 {
			return src, nil
		}
		return strings.Join(globals, "\n") + "\n" + src, nil
	}

	files := map[StageKind]string{}
	for stage, file := range m.Stages {
		kind, _ := ParseStageKind(stage)
		files[kind] = file
	}
	stages := map[StageKind]string{}
	for _, kind := range PipelineOrder {
		file, ok := files[kind]
		if !ok {
			continue
		}
		src, err := loader.Source(file)
		if err != nil {
			return "", fmt.Errorf("[%s] load %s stage: %w", m.Name, kind, err)
		}
		head, body := splitStageFile(src)
		globals = append(globals, head...)
		stages[kind] = body
	}
	return Assemble(dedupeLines(globals), stages), nil
}

// splitStageFile peels the leading @import/#extends lines off a single
// stage file.
func splitStageFile(src string) ([]string, string) {
	lines := strings.Split(src, "\n")
	var head []string
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !strings.HasPrefix(line, "@import") && !strings.HasPrefix(line, "#extends") {
			break
		}
		head = append(head, line)
	}
	return head, strings.Join(lines[i:], "\n")
}
