// ABOUTME: Shallow merge for string-keyed maps, used to combine sweep assignments and result rows.
// ABOUTME: Inputs are never modified; a fresh map is returned.
package maputil

// Merge returns a new map containing the entries of each input applied left
// to right. Later maps win key collisions. Nil inputs are skipped.
func Merge(ms ...map[string]any) map[string]any {
	size := 0
	for _, m := range ms {
		size += len(m)
	}
	out := make(map[string]any, size)
	for _, m := range ms {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
