package storage

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// splitPath splits a record path into the collection that holds it and its key.
// Records live two or more segments deep.
func splitPath(path string) (parent, key string, err error) {
	if err := validatePath(path); err != nil {
		return "", "", err
	}
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "", "", fmt.Errorf("%w: %q addresses no record", ErrInvalidPath, path)
	}
	return path[:i], path[i+1:], nil
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}
	return nil
}

// related reports whether a change at changed can alter the value seen by a
// subscriber of sub: the same path, a descendant, or an ancestor.
func related(sub, changed string) bool {
	return sub == changed ||
		strings.HasPrefix(changed, sub+"/") ||
		strings.HasPrefix(sub, changed+"/")
}

// mergeFields applies a patch to a stored JSON object.
func mergeFields(raw []byte, fields map[string]any) ([]byte, error) {
	doc := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("storage: patch target is not an object: %w", err)
		}
	}
	for key, value := range fields {
		segs := strings.Split(key, "/")
		node := doc
		for _, seg := range segs[:len(segs)-1] {
			child, ok := node[seg].(map[string]any)
			if !ok {
				if value == nil {
					node = nil
					break
				}
				child = map[string]any{}
				node[seg] = child
			}
			node = child
		}
		if node == nil {
			continue
		}
		last := segs[len(segs)-1]
		if value == nil {
			delete(node, last)
			continue
		}
		node[last] = value
	}
	return json.Marshal(doc)
}
