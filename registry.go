package propbind

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/ygrebnov/errorc"
)

// EntryID identifies one registry entry.
type EntryID uint64

// entry is one (property, handler, tag) association. Names need not be
// unique; several observers may bind the same property.
type entry struct {
	id      EntryID
	name    string
	handler Handler
	tag     any
}

// registry is the insertion-ordered collection of entries behind a Binder.
// It owns its entries outright: removal by tag is the only release mechanism,
// there is no implicit expiry and no weak referencing.
type registry struct {
	entries []entry
	nextID  EntryID
}

func newRegistry() *registry {
	return &registry{}
}

func (r *registry) subscribe(name string, h Handler, tag any) (EntryID, error) {
	if name == "" {
		return 0, ErrEmptyProperty
	}
	r.nextID++
	r.entries = append(r.entries, entry{id: r.nextID, name: name, handler: h, tag: tag})
	return r.nextID, nil
}

// dispatch invokes, in registration order, every handler stored under name
// (exact, case-sensitive match). A failing handler does not stop delivery to
// the rest; failures come back joined, one HandlerError per entry.
func (r *registry) dispatch(name string, value any) error {
	// Snapshot so removals performed by a handler take effect for future
	// dispatches only; this pass finishes over the entries it started with.
	snapshot := r.entries

	var errs []error
	for _, e := range snapshot {
		if e.name != name {
			continue
		}
		if err := send(e, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// removeByTag removes every entry whose tag is equal to tag, nil-tagged
// entries included when tag is nil. Idempotent: no matches is a no-op.
func (r *registry) removeByTag(tag any) {
	// A fresh slice keeps any snapshot taken by an in-flight dispatch valid.
	kept := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		if !tagEqual(e.tag, tag) {
			kept = append(kept, e)
		}
	}
	r.entries = kept
}

// resendByTag re-reads, via read, the current value of every property bound
// under tag and delivers it. Nil means "ungroupable", never a matchable
// group: a nil tag argument matches nothing, and nil-tagged entries are
// skipped even though removeByTag treats them as a normal equality candidate.
func (r *registry) resendByTag(tag any, read func(name string) (any, bool)) error {
	if tag == nil {
		return nil
	}

	snapshot := r.entries
	var errs []error
	for _, e := range snapshot {
		if e.tag == nil || !tagEqual(e.tag, tag) {
			continue
		}
		value, ok := read(e.name)
		if !ok {
			errs = append(errs, errorc.With(ErrUnknownProperty,
				errorc.String(ErrorFieldProperty, e.name)))
			continue
		}
		if err := send(e, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// send delivers one value to one entry, converting a handler panic into an
// ordinary error so dispatch isolation holds.
func send(e entry, value any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &HandlerError{Entry: e.id, Property: e.name, Err: fmt.Errorf("handler panic: %v", rec)}
		}
	}()
	if serr := e.handler.SendEvent(value); serr != nil {
		return &HandlerError{Entry: e.id, Property: e.name, Err: serr}
	}
	return nil
}

// tagEqual compares tags by value. DeepEqual avoids the panic that comparing
// uncomparable dynamic types with == would cause.
func tagEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
