package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// parseParam splits key=value and types value: int, float, bool, a comma
// separated float list, or else a string.
func parseParam(kv string) (string, any, error) {
	key, raw, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("%w: %q is not key=value", solver.ErrInvalidParameter, kv)
	}
	raw = strings.TrimSpace(raw)

	if i, err := strconv.Atoi(raw); err == nil {
		return key, i, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return key, f, nil
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return key, b, nil
	}
	if strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		fs := make([]float64, len(parts))
		for i, part := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return key, raw, nil
			}
			fs[i] = f
		}
		return key, fs, nil
	}
	return key, raw, nil
}

// applyParams parses every key=value pair into params.
func applyParams(params solver.Parameters, kvs []string) error {
	for _, kv := range kvs {
		key, value, err := parseParam(kv)
		if err != nil {
			return err
		}
		if err := params.Set(key, value, ""); err != nil {
			return err
		}
	}
	return nil
}
