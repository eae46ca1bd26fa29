package rpc

import (
	"fmt"

	"github.com/chitta-project/chitta/internal/node"
)

func argString(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func requireString(args map[string]interface{}, key string) (string, error) {
	s, ok := argString(args, key)
	if !ok || s == "" {
		return "", fmt.Errorf("rpc: missing required argument %q", key)
	}
	return s, nil
}

func argFloat(args map[string]interface{}, key string, def float64) float64 {
	v, ok := args[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return f
}

func argInt(args map[string]interface{}, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	f, ok := v.(float64) // encoding/json decodes all numbers as float64
	if !ok {
		return def
	}
	return int(f)
}

func argBool(args map[string]interface{}, key string, def bool) bool {
	v, ok := args[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func argStrings(args map[string]interface{}, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argNodeID(args map[string]interface{}, key string) (node.ID, error) {
	s, err := requireString(args, key)
	if err != nil {
		return "", err
	}
	return node.ID(s), nil
}
