package propbind

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propbind/settings"
)

// countingControl wraps a Value and counts writes made into the observer.
type countingControl[T comparable] struct {
	val      *Value[T]
	setCalls int
}

func newCountingControl[T comparable](initial T) *countingControl[T] {
	return &countingControl[T]{val: NewValue(initial)}
}

func (c *countingControl[T]) control() Control[T] {
	return Control[T]{
		Get: c.val.Get,
		Set: func(v T) {
			c.setCalls++
			c.val.Set(v)
		},
		Attach: c.val.Attach,
		Detach: c.val.Detach,
	}
}

func newTestStore(t *testing.T) *settings.Store {
	t.Helper()
	store := settings.New()
	require.NoError(t, store.Register("checkbox", false))
	require.NoError(t, store.Register("text_box", ""))
	return store
}

func TestNewBinderNilSource(t *testing.T) {
	_, err := NewBinder(nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

// TestBindScenario walks the canonical two-way flow: initial sync, observer
// edit, external change, group removal.
func TestBindScenario(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set("checkbox", true))

	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	obs := newCountingControl(false)
	require.NoError(t, b.BindBool(obs.control(), "checkbox", "T"))

	// Binding creation performs no implicit read.
	assert.Zero(t, obs.setCalls)

	// Initial synchronization: observer takes the store's current value.
	require.NoError(t, b.SendUpdates("T"))
	assert.Equal(t, 1, obs.setCalls)
	assert.True(t, obs.val.Get())

	// Observer edit writes through to the store and does not bounce back.
	obs.val.Set(false)
	got, err := store.Bool("checkbox")
	require.NoError(t, err)
	assert.False(t, got)
	assert.Equal(t, 1, obs.setCalls, "observer must not be written back for its own edit")

	// External change updates the observer exactly once, with no echo write
	// into the store.
	writes := 0
	cancel := store.OnChange(func(string) { writes++ })
	require.NoError(t, store.Set("checkbox", true))
	cancel()
	assert.Equal(t, 2, obs.setCalls)
	assert.True(t, obs.val.Get())
	assert.Equal(t, 1, writes, "settings change must produce exactly one store notification")

	// After removal, further external changes reach no observer.
	b.RemoveHandlers("T")
	require.NoError(t, store.Set("checkbox", false))
	assert.Equal(t, 2, obs.setCalls)

	assert.Empty(t, b.DispatchErrors())
}

// TestBindLoopFreedom drives alternating edits from both sides and asserts
// one write per originating change, never two.
func TestBindLoopFreedom(t *testing.T) {
	store := newTestStore(t)
	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	obs := newCountingControl("")
	require.NoError(t, b.BindString(obs.control(), "text_box", "T"))

	storeWrites := 0
	cancel := store.OnChange(func(string) { storeWrites++ })
	defer cancel()

	const n = 10
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			obs.val.Set(fmt.Sprintf("observer-%d", i))
		} else {
			require.NoError(t, store.Set("text_box", fmt.Sprintf("settings-%d", i)))
		}
	}

	// Each change crossed to the opposite side exactly once: every edit
	// produced one store notification, and only settings-side changes wrote
	// into the observer.
	assert.Equal(t, n, storeWrites)
	assert.Equal(t, n/2, obs.setCalls)
	assert.Empty(t, b.DispatchErrors())
}

func TestGroupIsolation(t *testing.T) {
	store := newTestStore(t)
	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	var aHits, bHits int
	_, err = Subscribe(b, "checkbox", func(bool) { aHits++ }, "A")
	require.NoError(t, err)
	_, err = Subscribe(b, "checkbox", func(bool) { bHits++ }, "B")
	require.NoError(t, err)

	b.RemoveHandlers("A")
	b.RemoveHandlers("A") // idempotent

	require.NoError(t, store.Set("checkbox", true))
	assert.Zero(t, aHits)
	assert.Equal(t, 1, bHits)
}

func TestSendUpdates(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Set("text_box", "current"))

	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	var tagged, other, untagged []string
	_, err = Subscribe(b, "text_box", func(v string) { tagged = append(tagged, v) }, "T")
	require.NoError(t, err)
	_, err = Subscribe(b, "text_box", func(v string) { other = append(other, v) }, "X")
	require.NoError(t, err)
	_, err = Subscribe(b, "text_box", func(v string) { untagged = append(untagged, v) }, nil)
	require.NoError(t, err)

	require.NoError(t, b.SendUpdates("T"))
	assert.Equal(t, []string{"current"}, tagged)
	assert.Empty(t, other)
	assert.Empty(t, untagged)

	// Nil means ungroupable, not "match the untagged entries".
	require.NoError(t, b.SendUpdates(nil))
	assert.Empty(t, untagged)
}

func TestSubscribeDeliversDispatchTimeValue(t *testing.T) {
	store := newTestStore(t)
	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	var got []string
	_, err = Subscribe(b, "text_box", func(v string) { got = append(got, v) }, "T")
	require.NoError(t, err)

	// No immediate invocation at registration.
	assert.Empty(t, got)

	require.NoError(t, store.Set("text_box", "one"))
	require.NoError(t, store.Set("text_box", "two"))
	assert.Equal(t, []string{"one", "two"}, got)
}

// TestSubscribeJSONLoadedNumbers drives a JSON file load through to typed
// handlers; JSON numbers arrive as json.Number and must still reach them.
func TestSubscribeJSONLoadedNumbers(t *testing.T) {
	store := settings.New()
	require.NoError(t, store.Register("volume", int64(50)))
	require.NoError(t, store.Register("ratio", 1.0))

	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	var volume int64
	_, err = Subscribe(b, "volume", func(v int64) { volume = v }, "T")
	require.NoError(t, err)
	var ratio float64
	_, err = Subscribe(b, "ratio", func(v float64) { ratio = v }, "T")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"volume": 75, "ratio": 2.5}`), 0644))
	require.NoError(t, store.LoadFile(path))

	assert.Equal(t, int64(75), volume)
	assert.Equal(t, 2.5, ratio)
	assert.Empty(t, b.DispatchErrors())
}

func TestSubscribeField(t *testing.T) {
	type prefs struct {
		Checkbox bool   `toml:"checkbox"`
		TextBox  string `toml:"text_box"`
	}

	store := settings.New()
	require.NoError(t, store.RegisterStruct("", &prefs{}))

	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	var p prefs
	var got bool
	_, err = SubscribeField(b, &p, &p.Checkbox, func(v bool) { got = v }, "T")
	require.NoError(t, err)

	require.NoError(t, store.Set("checkbox", true))
	assert.True(t, got)
}

func TestBindEqualFunc(t *testing.T) {
	store := settings.New()
	require.NoError(t, store.Register("hosts", []string{}))

	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	var current []string
	var listener func()
	setCalls := 0
	ctl := Control[[]string]{
		Get: func() []string { return current },
		Set: func(v []string) {
			setCalls++
			current = v
		},
		Attach: func(fn func()) { listener = fn },
		Detach: func() { listener = nil },
	}

	sliceEqual := func(a, b []string) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	require.NoError(t, BindEqualFunc(b, ctl, "hosts", "T", sliceEqual))

	require.NoError(t, store.Set("hosts", []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, current)
	assert.Equal(t, 1, setCalls)

	// Equal-by-eq values do not rewrite the observer.
	require.NoError(t, store.Set("hosts", []string{"a", "b"}))
	assert.Equal(t, 1, setCalls)

	// Observer edit writes through.
	current = []string{"c"}
	require.NotNil(t, listener)
	listener()
	got, ok := store.Get("hosts")
	require.True(t, ok)
	assert.Equal(t, []string{"c"}, got)
}

func TestBindValidation(t *testing.T) {
	store := newTestStore(t)
	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	obs := NewValue(false)

	t.Run("EmptyName", func(t *testing.T) {
		assert.ErrorIs(t, b.BindBool(obs.Control(), "", "T"), ErrEmptyProperty)
	})

	t.Run("IncompleteControl", func(t *testing.T) {
		ctl := obs.Control()
		ctl.Detach = nil
		assert.ErrorIs(t, b.BindBool(ctl, "checkbox", "T"), ErrNilControl)
	})
}

func TestReattachSurvivesSetterPanic(t *testing.T) {
	store := newTestStore(t)
	b, err := NewBinder(store, WithErrorHandler(func(error) {}))
	require.NoError(t, err)
	defer b.Close()

	val := NewValue("")
	failNext := true
	ctl := Control[string]{
		Get: val.Get,
		Set: func(v string) {
			if failNext {
				failNext = false
				panic("widget rejected the value")
			}
			val.Set(v)
		},
		Attach: val.Attach,
		Detach: val.Detach,
	}
	require.NoError(t, b.BindString(ctl, "text_box", "T"))

	// First settings change panics inside the observer setter; the forward
	// listener must still be reattached afterwards.
	require.NoError(t, store.Set("text_box", "first"))
	assert.Equal(t, "", val.Get())

	// The binding keeps working in both directions.
	require.NoError(t, store.Set("text_box", "second"))
	assert.Equal(t, "second", val.Get())

	val.Set("edited")
	got, err := store.String("text_box")
	require.NoError(t, err)
	assert.Equal(t, "edited", got)
}

func TestDispatchErrorReporting(t *testing.T) {
	t.Run("ConfiguredHandler", func(t *testing.T) {
		store := newTestStore(t)
		var seen []error
		b, err := NewBinder(store, WithErrorHandler(func(e error) { seen = append(seen, e) }))
		require.NoError(t, err)
		defer b.Close()

		_, err = Subscribe(b, "text_box", func(int) {}, "T")
		require.NoError(t, err)

		require.NoError(t, store.Set("text_box", "not an int"))
		require.Len(t, seen, 1)
		assert.ErrorIs(t, seen[0], ErrTypeMismatch)
		assert.Empty(t, b.DispatchErrors())
	})

	t.Run("AccumulatedByDefault", func(t *testing.T) {
		store := newTestStore(t)
		b, err := NewBinder(store)
		require.NoError(t, err)
		defer b.Close()

		_, err = Subscribe(b, "text_box", func(int) {}, "T")
		require.NoError(t, err)

		require.NoError(t, store.Set("text_box", "not an int"))
		errs := b.DispatchErrors()
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrTypeMismatch)
		assert.Empty(t, b.DispatchErrors(), "collection drains the report")
	})
}

func TestCloseDetachesFromSource(t *testing.T) {
	store := newTestStore(t)
	b, err := NewBinder(store)
	require.NoError(t, err)

	hits := 0
	_, err = Subscribe(b, "checkbox", func(bool) { hits++ }, "T")
	require.NoError(t, err)

	b.Close()
	require.NoError(t, store.Set("checkbox", true))
	assert.Zero(t, hits)
}

// queuedSource defers notifications into a channel, the pattern a host uses
// when settings change on a background goroutine (a file reload) but the
// bound observers live on a single owning goroutine.
type queuedSource struct {
	*settings.Store
	calls chan func()
}

func (s *queuedSource) OnChange(fn func(name string)) (cancel func()) {
	return s.Store.OnChange(func(name string) {
		s.calls <- func() { fn(name) }
	})
}

func TestNotificationsDrainedOnOwningGoroutine(t *testing.T) {
	store := settings.New()
	require.NoError(t, store.Register("text_box", ""))
	src := &queuedSource{Store: store, calls: make(chan func(), 8)}

	b, err := NewBinder(src)
	require.NoError(t, err)
	defer b.Close()

	obs := newCountingControl("")
	require.NoError(t, b.BindString(obs.control(), "text_box", "T"))

	// A background goroutine commits the change, as a watcher reload would.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = store.Set("text_box", "reloaded")
	}()
	<-done

	// The observer stays untouched until this goroutine drains the queue.
	assert.Zero(t, obs.setCalls)

	for drained := false; !drained; {
		select {
		case call := <-src.calls:
			call()
		default:
			drained = true
		}
	}
	assert.Equal(t, "reloaded", obs.val.Get())
	assert.Equal(t, 1, obs.setCalls)
	assert.Empty(t, b.DispatchErrors())
}

func TestMultipleObserversSameProperty(t *testing.T) {
	store := newTestStore(t)
	b, err := NewBinder(store)
	require.NoError(t, err)
	defer b.Close()

	first := newCountingControl(false)
	second := newCountingControl(false)
	require.NoError(t, b.BindBool(first.control(), "checkbox", "T"))
	require.NoError(t, b.BindBool(second.control(), "checkbox", "T"))

	// An edit on one observer reaches the store and, from there, its peer.
	first.val.Set(true)
	assert.True(t, second.val.Get())
	assert.Equal(t, 1, second.setCalls)
	assert.Zero(t, first.setCalls, "originating observer must not be echoed")
	assert.Empty(t, b.DispatchErrors())
}
