// Package graph computes transitive impact over the workspace dependency graph.
package graph

// Affected returns every package reachable from the direct set over the
// reverse-dependency relation, including the direct set itself.
//
// The traversal is breadth-first and marks a node before enqueueing it, so
// cyclic graphs terminate without revisiting. Names missing from reverse
// simply have no dependents.
func Affected(direct map[string]struct{}, reverse map[string]map[string]struct{}) map[string]struct{} {
	affected := make(map[string]struct{}, len(direct))
	queue := make([]string, 0, len(direct))

	for name := range direct {
		if _, ok := affected[name]; !ok {
			affected[name] = struct{}{}
			queue = append(queue, name)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for dependent := range reverse[current] {
			if _, ok := affected[dependent]; !ok {
				affected[dependent] = struct{}{}
				queue = append(queue, dependent)
			}
		}
	}

	return affected
}
