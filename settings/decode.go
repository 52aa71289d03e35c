package settings

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Unmarshal decodes the properties under basePath into target, which must be
// a non-nil pointer to a struct or map. An empty basePath decodes the whole
// store. Field mapping uses the `toml` tag, consistent with RegisterStruct.
func (s *Store) Unmarshal(basePath string, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("settings: Unmarshal target must be a non-nil pointer, got %T", target)
	}

	nested := make(map[string]any)
	for name, value := range s.snapshot() {
		setNestedValue(nested, name, value)
	}

	section := navigateToPath(nested, basePath)
	sectionMap, ok := section.(map[string]any)
	if !ok {
		if section == nil {
			sectionMap = make(map[string]any)
		} else {
			return fmt.Errorf("settings: path %q refers to a non-table value (type %T)", basePath, section)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "toml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("settings: decoder creation failed: %w", err)
	}

	if err := decoder.Decode(sectionMap); err != nil {
		return fmt.Errorf("settings: decode failed for path %q: %w", basePath, err)
	}
	return nil
}
