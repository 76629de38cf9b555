package powerwall

import "strings"

// Require returns the value stored under key in container.
//
// It fails with a missing attribute error when container is not a JSON object,
// the key is absent, or its value is null. The value is returned unmodified;
// converting it is up to the caller. category names the response being
// parsed and only shows up in the error.
func Require(container any, key, category string) (any, error) {
	return RequirePath(container, []string{key}, category)
}

// RequirePath walks the nested objects named by path and returns the value
// at its end, failing the same way Require does at the first missing step.
func RequirePath(container any, path []string, category string) (any, error) {
	if len(path) == 0 {
		return nil, newMissingAttributeError(category, "")
	}

	current := container
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, newMissingAttributeError(category, strings.Join(path, "."))
		}
		value, ok := obj[key]
		if !ok || value == nil {
			return nil, newMissingAttributeError(category, strings.Join(path, "."))
		}
		current = value
	}
	return current, nil
}

// RequireString is Require for string attributes
func RequireString(container any, key, category string) (string, error) {
	v, err := Require(container, key, category)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", newInvalidAttributeError(category, key, "a string", v)
	}
	return s, nil
}

// RequireFloat is Require for numeric attributes
func RequireFloat(container any, key, category string) (float64, error) {
	v, err := Require(container, key, category)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, newInvalidAttributeError(category, key, "a number", v)
	}
	return f, nil
}

// RequireInt is RequireFloat truncated to an int, for counters and ids
func RequireInt(container any, key, category string) (int, error) {
	f, err := RequireFloat(container, key, category)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// RequireBool is Require for boolean attributes
func RequireBool(container any, key, category string) (bool, error) {
	v, err := Require(container, key, category)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, newInvalidAttributeError(category, key, "a boolean", v)
	}
	return b, nil
}

// RequireSlice is Require for array attributes
func RequireSlice(container any, key, category string) ([]any, error) {
	v, err := Require(container, key, category)
	if err != nil {
		return nil, err
	}
	s, ok := v.([]any)
	if !ok {
		return nil, newInvalidAttributeError(category, key, "an array", v)
	}
	return s, nil
}

// RequireMap is Require for nested object attributes
func RequireMap(container any, key, category string) (map[string]any, error) {
	v, err := Require(container, key, category)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, newInvalidAttributeError(category, key, "an object", v)
	}
	return m, nil
}
