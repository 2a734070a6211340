package tools

import (
	"fmt"
	"reflect"
)

// validateArgs checks args against a declaration schema (the subset of
// JSON Schema the registry uses: an object with typed properties, enum
// constraints, and a required list). Unknown parameters are rejected so
// a misspelled argument surfaces instead of being silently dropped.
func validateArgs(schema map[string]any, args map[string]any) error {
	props, _ := schema["properties"].(map[string]any)

	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required parameter %q", name)
			}
		}
	}

	for name, value := range args {
		raw, declared := props[name]
		if !declared {
			return fmt.Errorf("unexpected parameter %q", name)
		}
		prop, _ := raw.(map[string]any)

		if err := checkType(name, prop, value); err != nil {
			return err
		}
		if err := checkEnum(name, prop, value); err != nil {
			return err
		}
	}

	return nil
}

func checkType(name string, prop map[string]any, value any) error {
	declaredType, _ := prop["type"].(string)
	if declaredType == "" || value == nil {
		return nil
	}

	switch declaredType {
	case "string":
		if _, ok := value.(string); !ok {
			return typeError(name, declaredType, value)
		}
	case "integer":
		switch v := value.(type) {
		case int, int64:
		case float64:
			if v != float64(int64(v)) {
				return typeError(name, declaredType, value)
			}
		default:
			return typeError(name, declaredType, value)
		}
	case "number":
		switch value.(type) {
		case int, int64, float64:
		default:
			return typeError(name, declaredType, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(name, declaredType, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return typeError(name, declaredType, value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return typeError(name, declaredType, value)
		}
	}

	return nil
}

func checkEnum(name string, prop map[string]any, value any) error {
	raw, ok := prop["enum"]
	if !ok {
		return nil
	}

	// Declarations use []string for readability; accept []any too.
	var allowed []any
	switch e := raw.(type) {
	case []string:
		for _, s := range e {
			allowed = append(allowed, s)
		}
	case []any:
		allowed = e
	default:
		return nil
	}

	for _, a := range allowed {
		if reflect.DeepEqual(a, value) {
			return nil
		}
	}
	return fmt.Errorf("parameter %q: value %v not in %v", name, value, allowed)
}

func typeError(name, want string, got any) error {
	return fmt.Errorf("parameter %q: expected %s, got %T", name, want, got)
}
