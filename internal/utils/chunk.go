package utils

// ChunkText splits s into pieces of at most size runes.
func ChunkText(s string, size int) []string {
	if size <= 0 {
		size = 1
	}
	runes := []rune(s)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
