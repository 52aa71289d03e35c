package propbind

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/ygrebnov/errorc"
)

// Handler is the type-erased contract the registry stores. Concrete entries
// hold the real callback type internally and coerce at this boundary, so
// heterogeneous property types can live in one ordered collection.
type Handler interface {
	// SendEvent delivers a newly-changed value to the underlying callback.
	SendEvent(value any) error
}

// handlerFunc adapts a typed callback to the erased Handler contract.
type handlerFunc[T any] func(T)

func (h handlerFunc[T]) SendEvent(value any) error {
	v, err := coerce[T](value)
	if err != nil {
		return err
	}
	h(v)
	return nil
}

// coerce converts a dispatched value to the handler's type. Direct assertion
// first; numeric conversion second, since file loaders hand back int64,
// float64 or json.Number regardless of the type the property was registered
// with.
func coerce[T any](value any) (T, error) {
	if v, ok := value.(T); ok {
		return v, nil
	}

	var zero T
	target := reflect.TypeOf(&zero).Elem()

	// An untyped nil asserts to nothing, not even to any; a property
	// registered with a nil default still has to reach nilable handlers.
	if value == nil && isNilableKind(target.Kind()) {
		return zero, nil
	}

	// JSON loading preserves number precision as json.Number.
	if n, ok := value.(json.Number); ok && isNumericKind(target.Kind()) {
		if v, err := numberTo[T](n, target); err == nil {
			return v, nil
		}
	}

	rv := reflect.ValueOf(value)
	if rv.IsValid() && isNumericKind(rv.Kind()) && isNumericKind(target.Kind()) && rv.Type().ConvertibleTo(target) {
		return rv.Convert(target).Interface().(T), nil
	}

	return zero, errorc.With(ErrTypeMismatch,
		errorc.String(ErrorFieldValueType, fmt.Sprintf("%T", value)),
		errorc.String(ErrorFieldWantType, target.String()),
	)
}

// numberTo parses a json.Number for a numeric target type. Integer targets
// parse as int64, so a fractional number headed for an int stays an error.
func numberTo[T any](n json.Number, target reflect.Type) (T, error) {
	var zero T
	switch target.Kind() {
	case reflect.Float32, reflect.Float64:
		f, err := n.Float64()
		if err != nil {
			return zero, err
		}
		return reflect.ValueOf(f).Convert(target).Interface().(T), nil
	default:
		i, err := n.Int64()
		if err != nil {
			return zero, err
		}
		return reflect.ValueOf(i).Convert(target).Interface().(T), nil
	}
}

func isNilableKind(k reflect.Kind) bool {
	switch k {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return true
	}
	return false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
