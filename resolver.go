package propbind

import (
	"reflect"
	"strings"

	"github.com/ygrebnov/errorc"
)

// FieldName resolves the binding name of a settings property from a field
// accessor: the caller passes a pointer to the settings-shaped struct and a
// pointer to one of its direct fields, e.g.
//
//	name, err := propbind.FieldName(&prefs, &prefs.Checkbox)
//
// The name is the field's toml tag when present, the field name otherwise,
// matching how settings stores derive their property names. Resolution is a
// pure function of the accessor: the same pair always yields the same name.
//
// The accessor must denote a direct exported field of the struct. Nested or
// embedded sub-fields, addresses from other objects, unexported fields and
// fields tagged `toml:"-"` all fail with ErrUnsupportedAccessor.
func FieldName(structPtr, fieldPtr any) (string, error) {
	sv := reflect.ValueOf(structPtr)
	if !sv.IsValid() || sv.Kind() != reflect.Pointer || sv.IsNil() || sv.Elem().Kind() != reflect.Struct {
		return "", errorc.With(ErrUnsupportedAccessor,
			errorc.String(ErrorFieldReason, "settings accessor must be a non-nil struct pointer"))
	}
	fv := reflect.ValueOf(fieldPtr)
	if !fv.IsValid() || fv.Kind() != reflect.Pointer || fv.IsNil() {
		return "", errorc.With(ErrUnsupportedAccessor,
			errorc.String(ErrorFieldReason, "field accessor must be a non-nil pointer"))
	}

	elem := sv.Elem()
	t := elem.Type()
	for i := 0; i < elem.NumField(); i++ {
		sf := t.Field(i)
		// Address and declared type must both match, so a pointer to the
		// first member of a nested struct does not resolve to the struct
		// field that happens to share its address.
		if elem.Field(i).Addr().Pointer() != fv.Pointer() || sf.Type != fv.Type().Elem() {
			continue
		}
		if !sf.IsExported() {
			return "", errorc.With(ErrUnsupportedAccessor,
				errorc.String(ErrorFieldProperty, sf.Name),
				errorc.String(ErrorFieldReason, "field is unexported"))
		}
		name, ok := fieldKey(sf)
		if !ok {
			return "", errorc.With(ErrUnsupportedAccessor,
				errorc.String(ErrorFieldProperty, sf.Name),
				errorc.String(ErrorFieldReason, "field is excluded by its toml tag"))
		}
		return name, nil
	}

	return "", errorc.With(ErrUnsupportedAccessor,
		errorc.String(ErrorFieldReason, "pointer does not address a direct field of the struct"))
}

// fieldKey extracts the binding name from a struct field, honoring the toml
// tag the way settings registration does.
func fieldKey(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get("toml")
	if tag == "-" {
		return "", false
	}
	if tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name, true
		}
	}
	return sf.Name, true
}
