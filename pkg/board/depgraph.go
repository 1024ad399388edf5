package board

// findCycle looks for a dependency cycle that passes through start. edges
// maps an item to the items it depends on. The prior graph is acyclic, so
// any cycle introduced by editing start's edges must pass through start;
// a DFS from start that reaches start again is sufficient.
//
// The returned path starts and ends at start (e.g. [i1, i2, i1]); nil means
// no cycle.
func findCycle(edges map[string][]string, start string) []string {
	visited := make(map[string]bool)
	path := []string{start}

	var dfs func(node string) []string
	dfs = func(node string) []string {
		for _, dep := range edges[node] {
			if dep == start {
				return append(append([]string(nil), path...), start)
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			path = append(path, dep)
			if cycle := dfs(dep); cycle != nil {
				return cycle
			}
			path = path[:len(path)-1]
		}
		return nil
	}

	return dfs(start)
}
