package shade

// compileContext carries what one Parse call shares across stages.
type compileContext struct {
	loader Loader
	opts   *Options
	// libraries caches parsed libraries by file name, so a library
	// imported under several modules is fetched once.
	libraries map[string]*Library
}

func newCompileContext(loader Loader, opts *Options) *compileContext {
	return &compileContext{
		loader:    loader,
		opts:      opts,
		libraries: map[string]*Library{},
	}
}

func (c *compileContext) library(name string) (*Library, error) {
	key := normalizePath(name)
	if lib, ok := c.libraries[key]; ok {
		return lib, nil
	}
	src, err := c.loader.Source(key)
	if err != nil {
		e := newError(KindMissingSource, "cannot load library %q", name)
		e.Err = err
		return nil, e
	}
	lib, err := ParseLibrary(key, src)
	if err != nil {
		return nil, err
	}
	c.libraries[key] = lib
	return lib, nil
}
