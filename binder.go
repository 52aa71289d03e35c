package propbind

import (
	"time"

	"github.com/ygrebnov/errorc"
)

// Binder is the façade coordinating bindings between observers and one
// Source. It attaches exactly one listener to the source's change
// notification; on a change it re-reads the property by name (the
// notification carries only the name, the re-read is authoritative) and fans
// the value out to matching handlers in registration order.
//
// A Binder performs no locking: all calls into it and into its source must
// come from the single goroutine that owns the bound observers.
type Binder struct {
	source       Source
	registry     *registry
	onError      func(error)
	pendingErrs  []error
	cancelBridge func()
}

// Option configures a Binder.
type Option func(*Binder)

// WithErrorHandler routes dispatch-time failures (handler panics, type
// mismatches, forward-write errors) to fn as they occur. Without it, the
// binder accumulates them for collection via DispatchErrors.
func WithErrorHandler(fn func(error)) Option {
	return func(b *Binder) { b.onError = fn }
}

// NewBinder wires a binder to src.
func NewBinder(src Source, opts ...Option) (*Binder, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	b := &Binder{source: src, registry: newRegistry()}
	for _, opt := range opts {
		opt(b)
	}
	b.cancelBridge = src.OnChange(b.notify)
	return b, nil
}

// Close detaches the binder from its source. Further source changes reach no
// handlers; the registry is discarded with the binder.
func (b *Binder) Close() {
	if b.cancelBridge != nil {
		b.cancelBridge()
		b.cancelBridge = nil
	}
}

// notify is the sole bridge between the source's change notification and the
// registry.
func (b *Binder) notify(name string) {
	value, ok := b.source.Get(name)
	if !ok {
		return
	}
	if err := b.registry.dispatch(name, value); err != nil {
		b.report(err)
	}
}

func (b *Binder) report(err error) {
	if b.onError != nil {
		b.onError(err)
		return
	}
	b.pendingErrs = append(b.pendingErrs, err)
}

// DispatchErrors returns the dispatch failures accumulated since the last
// call and clears them. Always empty when an error handler is configured.
func (b *Binder) DispatchErrors() []error {
	errs := b.pendingErrs
	b.pendingErrs = nil
	return errs
}

// RemoveHandlers removes every binding registered under tag, in one call.
// Idempotent: a tag with no matching entries is a no-op. This is the only
// release mechanism; an owning UI element that forgets to remove its tag
// keeps its observers reachable for as long as the binder lives.
func (b *Binder) RemoveHandlers(tag any) {
	b.registry.removeByTag(tag)
}

// SendUpdates pushes the source's current values into every binding
// registered under tag, once. Binding creation never reads back current
// values, so callers invoke this right after a form finishes building its
// bindings. Nil tags are ungroupable and never participate.
func (b *Binder) SendUpdates(tag any) error {
	return b.registry.resendByTag(tag, b.source.Get)
}

// Subscribe registers a one-way settings→observer binding: fn runs once per
// change notification matching name, with the value present on the source at
// dispatch time. No immediate invocation happens at registration.
func Subscribe[T any](b *Binder, name string, fn func(T), tag any) (EntryID, error) {
	return b.registry.subscribe(name, handlerFunc[T](fn), tag)
}

// SubscribeField is Subscribe with the property name resolved from a field
// accessor on the settings struct; see FieldName.
func SubscribeField[T any](b *Binder, structPtr any, fieldPtr *T, fn func(T), tag any) (EntryID, error) {
	name, err := FieldName(structPtr, fieldPtr)
	if err != nil {
		return 0, err
	}
	return Subscribe(b, name, fn, tag)
}

// Control describes one observer for a two-way binding: a current-value
// getter, a setter, and the pair of functions that install and remove its
// single "value changed" listener.
type Control[T any] struct {
	Get    func() T
	Set    func(T)
	Attach func(onChange func())
	Detach func()
}

func (c Control[T]) complete() bool {
	return c.Get != nil && c.Set != nil && c.Attach != nil && c.Detach != nil
}

// Bind wires a two-way binding between ctl and the named source property.
//
// Observer edits write the observer's current value through to the source.
// Source changes write back into the observer only when the observer's value
// differs from the new one, and around that write the observer's own listener
// is detached so the update cannot echo back; reattachment is deferred, so
// the listener is restored even if the setter panics. The net effect: one
// originating change produces at most one write to the opposite side.
func Bind[T comparable](b *Binder, ctl Control[T], name string, tag any) error {
	return BindEqualFunc(b, ctl, name, tag, func(x, y T) bool { return x == y })
}

// BindEqualFunc is Bind for value types without built-in equality; eq decides
// whether a source change differs from the observer's current value.
func BindEqualFunc[T any](b *Binder, ctl Control[T], name string, tag any, eq func(x, y T) bool) error {
	if !ctl.complete() {
		return ErrNilControl
	}
	if name == "" {
		return ErrEmptyProperty
	}

	var forward func()
	forward = func() {
		if err := b.source.Set(name, ctl.Get()); err != nil {
			// The observer's own change event has no error path, so
			// forward-write failures surface through the binder.
			b.report(errorc.With(err, errorc.String(ErrorFieldProperty, name)))
		}
	}

	backward := func(v T) {
		if eq(ctl.Get(), v) {
			return
		}
		ctl.Detach()
		defer ctl.Attach(forward)
		ctl.Set(v)
	}

	ctl.Attach(forward)
	if _, err := Subscribe(b, name, backward, tag); err != nil {
		ctl.Detach()
		return err
	}
	return nil
}

// Typed convenience bindings, one per common control value type.

// BindBool binds a boolean observer two-way to the named property.
func (b *Binder) BindBool(ctl Control[bool], name string, tag any) error {
	return Bind(b, ctl, name, tag)
}

// BindString binds a string observer two-way to the named property.
func (b *Binder) BindString(ctl Control[string], name string, tag any) error {
	return Bind(b, ctl, name, tag)
}

// BindInt64 binds an integer observer two-way to the named property.
func (b *Binder) BindInt64(ctl Control[int64], name string, tag any) error {
	return Bind(b, ctl, name, tag)
}

// BindFloat64 binds a float observer two-way to the named property.
func (b *Binder) BindFloat64(ctl Control[float64], name string, tag any) error {
	return Bind(b, ctl, name, tag)
}

// BindDuration binds a time.Duration observer two-way to the named property.
func (b *Binder) BindDuration(ctl Control[time.Duration], name string, tag any) error {
	return Bind(b, ctl, name, tag)
}
