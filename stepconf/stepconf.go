// Package stepconf populates configuration structs from environment
// variables, driven by `env` struct tags.
package stepconf

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Secret is a string that must not appear in logs. Its formatted value is
// always masked.
type Secret string

const secretMask = "*****"

// String implements fmt.Stringer and masks the secret.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return secretMask
}

// MarshalJSON masks the secret when the holding struct is serialized.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// EnvGetter provides environment variable values.
type EnvGetter interface {
	Get(key string) string
}

// ParseError occurs when a struct field cannot be populated from its
// environment variable.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: invalid value %q: %s", e.Field, e.Value, e.Err)
}

// Parse populates conf's fields from environment variables according to
// their `env:"name[,required]"` tags. conf must be a pointer to a struct.
// Supported field types: string, Secret, bool, int, int64, float64 and
// []string (pipe-separated).
func Parse(conf interface{}, envGetter EnvGetter) error {
	value := reflect.ValueOf(conf)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config must be a pointer to a struct, got %T", conf)
	}

	structValue := value.Elem()
	structType := structValue.Type()

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		tag, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}

		key, constraint := parseTag(tag)
		envValue := envGetter.Get(key)

		if envValue == "" {
			if constraint == "required" {
				return fmt.Errorf("required input %s (%s) is missing", field.Name, key)
			}
			continue
		}

		if err := setField(structValue.Field(i), envValue); err != nil {
			return &ParseError{Field: field.Name, Value: envValue, Err: err}
		}
	}

	return nil
}

func parseTag(tag string) (key, constraint string) {
	parts := strings.SplitN(tag, ",", 2)
	key = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		constraint = strings.TrimSpace(parts[1])
	}
	return
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type: %s", field.Type().Elem())
		}
		field.Set(reflect.ValueOf(strings.Split(value, "|")))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}
