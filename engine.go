package shade

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ManifestExtensions marks the files that declare programs.
	ManifestExtensions = []string{".yaml", ".yml"}
	// SourceExtensions are watched for changes alongside manifests.
	SourceExtensions = []string{".shader", ".slib", ".glsl", ".vert", ".frag", ".geom", ".toml"}
)

// Engine loads program manifests from a file system and keeps the
// compiled programs.
type Engine struct {
	dirPrefix       string
	fs              fs.FS
	opts            Options
	hasOpts         bool
	programs        map[string]*Program
	lastCompileTime int64
	mu              sync.RWMutex
}

// NewEngine creates a new engine pointing to a directory with files.
func NewEngine(dir string) *Engine {
	return NewEngineFS(os.DirFS(dir))
}

// NewEngineFS creates a new engine pointing to a filesystem.
// When using embed.FS, pass the embedded folder as prefix.
func NewEngineFS(fsys fs.FS, prefix ...string) *Engine {
	var dirPrefix string
	if len(prefix) > 0 {
		dirPrefix = prefix[0]
	}
	return &Engine{
		dirPrefix:       dirPrefix,
		fs:              fsys,
		opts:            DefaultOptions(),
		programs:        map[string]*Program{},
		lastCompileTime: -1,
	}
}

// WithOptions sets compile options explicitly. A shade.toml in the file
// system is then ignored.
func (e *Engine) WithOptions(opts Options) *Engine {
	opts.withDefaults()
	e.mu.Lock()
	e.opts = opts
	e.hasOpts = true
	e.mu.Unlock()
	return e
}

type programSource struct {
	path     string
	manifest *Manifest
}

// Load compiles every program declared by a manifest in the file system.
// It only recompiles when a file changed since the last compile. A broken
// manifest or a program that fails to compile is logged and skipped; the
// returned error joins every failure.
func (e *Engine) Load() error {
	e.mu.Lock()
	defer func() {
		e.lastCompileTime = time.Now().UnixMilli()
		e.mu.Unlock()
	}()

	needCompile := false
	var manifests []programSource
	var errs []error
	root := e.dirPrefix
	if root == "" {
		root = "."
	}
	err := fs.WalkDir(e.fs, root, func(p string, info fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		isManifest := slices.Contains(ManifestExtensions, ext)
		if !isManifest && !slices.Contains(SourceExtensions, ext) {
			return nil
		}

		stats, err := info.Info()
		if err != nil {
			return err
		}
		if stats.ModTime().UnixMilli() > e.lastCompileTime {
			needCompile = true
		}
		if !isManifest {
			return nil
		}

		m, err := e.readManifest(p)
		if err != nil {
			Logger().Error("shade: manifest skipped", "manifest", p, "err", err)
			errs = append(errs, err)
			return nil
		}
		manifests = append(manifests, programSource{path: p, manifest: m})
		return nil
	})
	if err != nil {
		return err
	}

	if !needCompile {
		return nil
	}

	if !e.hasOpts {
		opts, err := LoadConfig(e.fs, path.Join(e.dirPrefix, ConfigFileName))
		switch {
		case err == nil:
			e.opts = opts
		case errors.Is(err, fs.ErrNotExist):
			e.opts = DefaultOptions()
		default:
			return err
		}
	}

	compiled := make([]*Program, len(manifests))
	compileErrs := make([]error, len(manifests))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, src := range manifests {
		g.Go(func() error {
			compiled[i], compileErrs[i] = e.compile(src)
			return nil
		})
	}
	_ = g.Wait()

	programs := make(map[string]*Program, len(manifests))
	declaredBy := make(map[string]string, len(manifests))
	for i, src := range manifests {
		if compileErrs[i] != nil {
			Logger().Error("shade: program failed to compile", "program", src.manifest.Name, "manifest", src.path, "err", compileErrs[i])
			errs = append(errs, compileErrs[i])
			continue
		}
		if first, dup := declaredBy[src.manifest.Name]; dup {
			errs = append(errs, fmt.Errorf("[%s] duplicate program name %q, already declared by %s", src.path, src.manifest.Name, first))
			continue
		}
		declaredBy[src.manifest.Name] = src.path
		programs[src.manifest.Name] = compiled[i]
	}
	e.programs = programs
	Logger().Info("shade: programs compiled", "ok", len(programs), "manifests", len(manifests))

	return errors.Join(errs...)
}

func (e *Engine) readManifest(p string) (*Manifest, error) {
	raw, err := fs.ReadFile(e.fs, p)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", p, err)
	}
	if m.Name == "" {
		m.Name = e.nameFromPath(p)
	}
	return m, nil
}

func (e *Engine) compile(src programSource) (*Program, error) {
	loader := fsLoader{fs: e.fs, dir: path.Dir(src.path)}
	raw, err := src.manifest.Assemble(loader)
	if err != nil {
		return nil, err
	}
	return Compile(src.manifest.Name, raw, loader, e.opts)
}

// Program returns a compiled program by name.
func (e *Engine) Program(name string) (*Program, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.programs[normalizeName(name)]
	return p, ok
}

// Programs returns the names of all compiled programs, sorted.
func (e *Engine) Programs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.programs))
	for name := range e.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteSource writes the emitted source of one stage of a program.
func (e *Engine) WriteSource(w io.Writer, program string, stage StageKind) error {
	p, ok := e.Program(program)
	if !ok {
		return fmt.Errorf("program %s not loaded", program)
	}
	src, ok := p.Source(stage)
	if !ok {
		return fmt.Errorf("program %s has no %s stage", program, stage)
	}
	_, err := io.WriteString(w, src)
	return err
}

// GetDebugSources returns every emitted stage source keyed by
// "program/STAGE".
func (e *Engine) GetDebugSources() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := map[string]string{}
	for name, p := range e.programs {
		for kind, src := range p.Sources() {
			out[name+"/"+kind.String()] = src
		}
	}
	return out
}

// nameFromPath converts a filesystem path to a program name, relative to engine dir.
func (e *Engine) nameFromPath(p string) string {
	rel, err := filepath.Rel(e.dirPrefix, p)
	if err != nil {
		return filepath.Base(p)
	}
	return normalizeName(rel)
}
