package propbind

// Source is the change-source contract a Binder needs from a settings
// object: by-name reads and writes of current property values, plus a change
// notification carrying the changed property's name, fired strictly after
// the value has been committed. The settings package provides a ready-made
// implementation.
type Source interface {
	// Get returns the current value of the named property and whether the
	// name is known.
	Get(name string) (any, bool)

	// Set commits a new value for the named property, then notifies change
	// listeners with the name.
	Set(name string, value any) error

	// OnChange registers fn to run after each committed change. The
	// returned cancel function detaches fn.
	OnChange(fn func(name string)) (cancel func())
}
