package batch

// SplitIntoChunks divides a slice of items into ordered, non-overlapping
// chunks of the specified size. The last chunk may be smaller. Chunk order
// preserves the input order; that is the only ordering guarantee the
// orchestrator offers.
func SplitIntoChunks[T any](items []T, chunkSize int) [][]T {
	if chunkSize <= 0 {
		return nil
	}

	if len(items) == 0 {
		return [][]T{}
	}

	numChunks := (len(items) + chunkSize - 1) / chunkSize
	chunks := make([][]T, 0, numChunks)

	for i := 0; i < len(items); i += chunkSize {
		end := i + chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}

	return chunks
}

// DedupeSelection removes duplicate identifiers while preserving the order
// of first appearance
func DedupeSelection(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
