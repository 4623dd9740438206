package modifiers

// Flatten walks expands_to links depth-first from root and returns every
// reachable modifier id once, in visit order. The root itself is excluded and
// cycles are cut at the first revisit.
func Flatten(root int64, children map[int64][]int64) []int64 {
	seen := map[int64]bool{root: true}
	var out []int64
	var walk func(id int64)
	walk = func(id int64) {
		for _, child := range children[id] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			walk(child)
		}
	}
	walk(root)
	return out
}
