package persist

import "strings"

// splitPath breaks a dotted path ("broker.accepted_types") into segments.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// getPath navigates `root` following `segs`, returning the value found
// and whether every segment resolved to an intermediate map.
func getPath(root map[string]any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return root, true
	}
	cur := any(root)
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes `value` at `segs`, creating intermediate maps as needed.
func setPath(root map[string]any, segs []string, value any) {
	if len(segs) == 0 {
		return
	}
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

// addPath appends `value` to the list found at `segs`, creating an empty
// list there first if nothing is present yet.
func addPath(root map[string]any, segs []string, value any) {
	if len(segs) == 0 {
		return
	}
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	list, _ := cur[last].([]any)
	cur[last] = append(list, value)
}

// removePath deletes the value found at `segs`, if any.
func removePath(root map[string]any, segs []string) {
	if len(segs) == 0 {
		return
	}
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
}

// joinPath concatenates a namespace prefix and a relative path.
func joinPath(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	default:
		return prefix + "." + path
	}
}
