// Package propbind keeps observers (UI controls, or any object exposing a
// gettable/settable value and a change notification) synchronized with named
// properties on a settings object that emits change notifications by name.
//
// Features:
//   - One-way bindings: a typed callback invoked on every matching change
//   - Two-way bindings with echo suppression, so an update travelling in one
//     direction never bounces back and re-triggers itself
//   - Deterministic fan-out: handlers fire in registration order
//   - Tag-grouped lifecycle: one call removes, or force-refreshes, every
//     binding a caller created
//   - Per-handler error isolation during dispatch
//
// Quick Start:
//
//	type Prefs struct {
//	    Checkbox bool   `toml:"checkbox"`
//	    TextBox  string `toml:"text_box"`
//	}
//
//	store := settings.New()
//	store.RegisterStruct("", &Prefs{TextBox: "hello"})
//
//	b, _ := propbind.NewBinder(store)
//	defer b.Close()
//
//	checked := propbind.NewValue(false)
//	if err := b.BindBool(checked.Control(), "checkbox", "prefs-form"); err != nil {
//	    log.Fatal(err)
//	}
//	b.SendUpdates("prefs-form") // push current settings into the observers once
//
// A user edit on the observer side writes through to the store; a store change
// from any source (a Set call, a reloaded settings file) updates the observer
// at most once. When the owning form goes away, RemoveHandlers("prefs-form")
// releases every binding it created. The binder holds strong references, so a
// tag that is never removed keeps its observers alive.
//
// The core is single-threaded by design: all calls into a Binder and its
// source must come from the one goroutine that owns the bound observers.
// Hosts with background work marshal onto that goroutine themselves.
package propbind
