package settings

import "errors"

// Builder provides a fluent interface for assembling a Store: register
// defaults from a struct, optionally layer a settings file on top, and
// optionally keep watching that file.
type Builder struct {
	store    *Store
	defaults any
	prefix   string
	file     string
	watch    bool
	watchOpt WatchOptions
	err      error
}

// NewBuilder creates a new store builder.
func NewBuilder() *Builder {
	return &Builder{store: New(), watchOpt: DefaultWatchOptions()}
}

// WithDefaults registers property defaults from a struct (see RegisterStruct).
func (b *Builder) WithDefaults(structWithDefaults any) *Builder {
	b.defaults = structWithDefaults
	return b
}

// WithPrefix prepends prefix to every name registered from the defaults struct.
func (b *Builder) WithPrefix(prefix string) *Builder {
	b.prefix = prefix
	return b
}

// WithFile layers values from a settings file over the registered defaults.
// A missing file is not fatal: defaults stay in effect.
func (b *Builder) WithFile(path string) *Builder {
	b.file = path
	return b
}

// WithWatcher keeps watching the settings file after the initial load.
func (b *Builder) WithWatcher(opts WatchOptions) *Builder {
	b.watch = true
	b.watchOpt = opts
	return b
}

// Build assembles the store. The returned Watcher is nil unless WithWatcher
// was requested and the file exists.
func (b *Builder) Build() (*Store, *Watcher, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	if b.defaults != nil {
		if err := b.store.RegisterStruct(b.prefix, b.defaults); err != nil {
			return nil, nil, err
		}
	}

	if b.file == "" {
		return b.store, nil, nil
	}

	if b.watch {
		w, err := b.store.Watch(b.file, b.watchOpt)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return b.store, nil, nil
			}
			return nil, nil, err
		}
		return b.store, w, nil
	}

	if err := b.store.LoadFile(b.file); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}
	return b.store, nil, nil
}
