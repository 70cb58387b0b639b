package chunker

import "strings"

// DefaultChunkSize is the number of words per chunk when none is configured.
const DefaultChunkSize = 200

// Chunk is a contiguous run of words taken from a page.
type Chunk struct {
	Offset int    // Index of the chunk's first word within the page.
	Index  int    // Ordinal of the chunk within the page (Offset / size).
	Text   string // Words joined by single spaces.
}

// Split breaks text into consecutive groups of at most size words.
// Every word lands in exactly one chunk, in document order. Empty or
// whitespace-only input yields no chunks.
func Split(text string, size int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, (len(words)+size-1)/size)
	for offset := 0; offset < len(words); offset += size {
		end := min(offset+size, len(words))
		chunks = append(chunks, Chunk{
			Offset: offset,
			Index:  offset / size,
			Text:   strings.Join(words[offset:end], " "),
		})
	}
	return chunks
}
