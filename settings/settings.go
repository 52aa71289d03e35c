// Package settings provides the named-property store that propbind binders
// bind against: by-name reads and writes, change listeners notified after
// each committed write, struct-tag registration of defaults, and optional
// file persistence with live reload.
package settings

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// item holds both the default and current value for a property.
type item struct {
	defaultValue any
	currentValue any
}

// Store maps dot-separated property names to values and notifies listeners
// by name after every committed write. The internal mutex exists because a
// file watcher reloads on its own goroutine; it does not make the store a
// general-purpose concurrent structure, and listeners always run outside the
// lock, in subscription order.
type Store struct {
	mu        sync.RWMutex
	items     map[string]item
	listeners []listener
	nextID    int64
}

type listener struct {
	id int64
	fn func(name string)
}

// New creates an empty Store.
func New() *Store {
	return &Store{items: make(map[string]item)}
}

// Register makes a property name known to the store. Names are dot-separated
// (e.g. "server.port", "checkbox"); each segment must be a valid TOML key
// identifier. defaultValue becomes the current value until something sets or
// loads another one.
func (s *Store) Register(name string, defaultValue any) error {
	if name == "" {
		return fmt.Errorf("settings: property name cannot be empty")
	}
	for _, segment := range strings.Split(name, ".") {
		if !isValidKeySegment(segment) {
			return fmt.Errorf("settings: invalid segment %q in property %q", segment, name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[name] = item{
		defaultValue: defaultValue,
		currentValue: defaultValue,
	}
	return nil
}

// Unregister removes a property and all its children.
func (s *Store) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := name + "."
	if _, exists := s.items[name]; !exists {
		hasChildren := false
		for child := range s.items {
			if strings.HasPrefix(child, prefix) {
				hasChildren = true
				break
			}
		}
		if !hasChildren {
			return fmt.Errorf("%w: %s", ErrNotRegistered, name)
		}
	}

	delete(s.items, name)
	for child := range s.items {
		if strings.HasPrefix(child, prefix) {
			delete(s.items, child)
		}
	}
	return nil
}

// RegisterStruct registers properties derived from a struct, using `toml`
// tags (falling back to field names) to build the dot-separated names.
// Nested structs recurse; the prefix, when non-empty, is prepended to every
// name. Field values become the defaults.
func (s *Store) RegisterStruct(prefix string, structWithDefaults any) error {
	v := reflect.ValueOf(structWithDefaults)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return fmt.Errorf("settings: RegisterStruct requires a non-nil struct pointer or value")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("settings: RegisterStruct requires a struct, got %T", structWithDefaults)
	}

	var problems []string
	s.registerFields(v, prefix, &problems)
	if len(problems) > 0 {
		return fmt.Errorf("settings: failed to register %d field(s): %s", len(problems), strings.Join(problems, "; "))
	}
	return nil
}

func (s *Store) registerFields(v reflect.Value, prefix string, problems *[]string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("toml")
		if tag == "-" {
			continue
		}
		key := field.Name
		if tag != "" {
			if name, _, _ := strings.Cut(tag, ","); name != "" {
				key = name
			}
		}

		name := key
		if prefix != "" {
			if !strings.HasSuffix(prefix, ".") {
				prefix += "."
			}
			name = prefix + key
		}

		isStruct := fieldValue.Kind() == reflect.Struct
		isPtrToStruct := fieldValue.Kind() == reflect.Pointer && fieldValue.Type().Elem().Kind() == reflect.Struct
		if isStruct || isPtrToStruct {
			nested := fieldValue
			if isPtrToStruct {
				if fieldValue.IsNil() {
					continue
				}
				nested = fieldValue.Elem()
			}
			// time.Time and friends register as leaf values, not tables.
			if nested.Type() == reflect.TypeOf(time.Time{}) {
				if err := s.Register(name, fieldValue.Interface()); err != nil {
					*problems = append(*problems, fmt.Sprintf("field %s: %v", field.Name, err))
				}
				continue
			}
			s.registerFields(nested, name+".", problems)
			continue
		}

		if err := s.Register(name, fieldValue.Interface()); err != nil {
			*problems = append(*problems, fmt.Sprintf("field %s: %v", field.Name, err))
		}
	}
}

// Names returns all registered property names with the given prefix.
func (s *Store) Names(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.items {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names
}

// Get returns the current value of the named property and whether the name
// is registered.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[name]
	if !ok {
		return nil, false
	}
	return it.currentValue, true
}

// Set commits a new value for the named property, then notifies change
// listeners with the name. Listeners fire after every committed Set, equal
// value or not; suppressing no-op updates is the binding layer's job.
func (s *Store) Set(name string, value any) error {
	s.mu.Lock()
	it, ok := s.items[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	it.currentValue = value
	s.items[name] = it
	s.mu.Unlock()

	s.notify(name)
	return nil
}

// Reset restores the named property to its registered default and notifies.
func (s *Store) Reset(name string) error {
	s.mu.Lock()
	it, ok := s.items[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	it.currentValue = it.defaultValue
	s.items[name] = it
	s.mu.Unlock()

	s.notify(name)
	return nil
}

// OnChange registers fn to run, with the changed property's name, after each
// committed change. Listeners run in subscription order. The returned cancel
// function detaches fn.
func (s *Store) OnChange(fn func(name string)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				break
			}
		}
	}
}

// notify runs the change listeners for one property name, outside the lock
// so listeners can call back into the store.
func (s *Store) notify(name string) {
	s.mu.RLock()
	snapshot := s.listeners
	s.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(name)
	}
}

// snapshot copies the current values of all registered properties.
func (s *Store) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]any, len(s.items))
	for name, it := range s.items {
		snap[name] = it.currentValue
	}
	return snap
}

// isValidKeySegment checks if a single name segment is a valid TOML key part.
func isValidKeySegment(seg string) bool {
	if len(seg) == 0 {
		return false
	}
	first := rune(seg[0])
	if !isAlpha(first) && first != '_' {
		return false
	}
	for _, r := range seg[1:] {
		if !isAlpha(r) && !isNumeric(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

func isAlpha(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNumeric(c rune) bool {
	return c >= '0' && c <= '9'
}

// String retrieves a string property, converting common types.
func (s *Store) String(name string) (string, error) {
	val, found := s.Get(name)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	if val == nil {
		return "", nil
	}
	if strVal, ok := val.(string); ok {
		return strVal, nil
	}
	switch v := val.(type) {
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	}
	return "", fmt.Errorf("settings: cannot convert type %T to string for %s", val, name)
}

// Bool retrieves a boolean property, converting numbers (0 is false) and
// parsable strings.
func (s *Store) Bool(name string) (bool, error) {
	val, found := s.Get(name)
	if !found {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		b, err := strconv.ParseBool(rv.String())
		if err != nil {
			return false, fmt.Errorf("settings: cannot convert %q to bool for %s: %w", rv.String(), name, err)
		}
		return b, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0, nil
	}
	return false, fmt.Errorf("settings: cannot convert type %T to bool for %s", val, name)
}

// Int64 retrieves an integer property, converting other numeric types and
// parsable strings.
func (s *Store) Int64(name string) (int64, error) {
	val, found := s.Get(name)
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > uint64(int64(^uint64(0)>>1)) {
			return 0, fmt.Errorf("settings: unsigned value %d overflows int64 for %s", u, name)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	case reflect.String:
		i, err := strconv.ParseInt(rv.String(), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("settings: cannot convert %q to int64 for %s: %w", rv.String(), name, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("settings: cannot convert type %T to int64 for %s", val, name)
}

// Float64 retrieves a float property, converting other numeric types and
// parsable strings.
func (s *Store) Float64(name string) (float64, error) {
	val, found := s.Get(name)
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.String:
		f, err := strconv.ParseFloat(rv.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("settings: cannot convert %q to float64 for %s: %w", rv.String(), name, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("settings: cannot convert type %T to float64 for %s", val, name)
}

// Duration retrieves a time.Duration property, accepting durations,
// parsable strings ("5s") and integer nanosecond counts.
func (s *Store) Duration(name string) (time.Duration, error) {
	val, found := s.Get(name)
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	switch v := val.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("settings: cannot convert %q to duration for %s: %w", v, name, err)
		}
		return d, nil
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(rv.Int()), nil
	}
	return 0, fmt.Errorf("settings: cannot convert type %T to duration for %s", val, name)
}
