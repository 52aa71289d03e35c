package propbind

// Value is a minimal observable cell: a current value and one optional
// change listener. It satisfies the observer contract out of the box and is
// what tests, examples, and hosts without a widget toolkit bind against;
// real UI toolkits adapt their widgets through Control the same way.
type Value[T comparable] struct {
	value    T
	listener func()
}

// NewValue returns a Value holding initial.
func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{value: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	return v.value
}

// Set stores a new value and fires the change listener when it differs from
// the current one. No-op writes cost nothing.
func (v *Value[T]) Set(newValue T) {
	if v.value == newValue {
		return
	}
	v.value = newValue
	if v.listener != nil {
		v.listener()
	}
}

// Attach installs the change listener, replacing any previous one.
func (v *Value[T]) Attach(onChange func()) {
	v.listener = onChange
}

// Detach removes the change listener.
func (v *Value[T]) Detach() {
	v.listener = nil
}

// Control adapts v to the binder's observer contract.
func (v *Value[T]) Control() Control[T] {
	return Control[T]{Get: v.Get, Set: v.Set, Attach: v.Attach, Detach: v.Detach}
}
