package propbind

import (
	"fmt"

	"github.com/ygrebnov/errorc"
)

var namespace = errorc.Namespace("propbind")

// Sentinel errors. Use errors.Is to match.
var (
	ErrEmptyProperty       = namespace.NewError("property name cannot be empty")
	ErrUnsupportedAccessor = namespace.NewError("accessor must address a direct exported field of the settings struct")
	ErrTypeMismatch        = namespace.NewError("dispatched value type does not match handler type")
	ErrUnknownProperty     = namespace.NewError("property is not known to the source")
	ErrNilSource           = namespace.NewError("source cannot be nil")
	ErrNilControl          = namespace.NewError("control requires Get, Set, Attach and Detach functions")
)

var newKey = errorc.KeyFactory(errorc.WithSegments("propbind"))

// Exported structured error field keys. Keep string values stable.
var (
	ErrorFieldProperty  = newKey("property")
	ErrorFieldValueType = newKey("value_type")
	ErrorFieldWantType  = newKey("handler_type")
	ErrorFieldReason    = newKey("reason")
)

// HandlerError reports a single handler failure during dispatch. Failures are
// isolated per entry: dispatch continues past a failing handler, and the
// collected errors come back joined, one HandlerError each.
type HandlerError struct {
	Entry    EntryID
	Property string
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("propbind: handler %d for property %q: %v", e.Entry, e.Property, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
