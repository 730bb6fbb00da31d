// Package chunker splits long text into bounded, overlapping segments,
// preferring natural break points over hard cuts.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 200
)

// Separators in priority order. A piece still over the size limit after
// splitting on one separator is split again on the next; the last resort is
// a hard cut.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunk is a contiguous substring of the source text.
type Chunk struct {
	Index int
	Text  string
	// Offset is the byte offset of Text in the source.
	Offset int
	// Overlap is the number of leading bytes of Text repeated from the
	// previous chunk.
	Overlap int
}

// Split returns the chunk texts of SplitChunks.
func Split(text string, chunkSize, chunkOverlap int) []string {
	chunks := SplitChunks(text, chunkSize, chunkOverlap)

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}

	return texts
}

// SplitChunks splits text into chunks of at most chunkSize characters
// (runes). Adjacent chunks share up to chunkOverlap characters. Non-positive
// chunkSize selects DefaultChunkSize. A negative overlap becomes zero and an
// overlap of at least chunkSize is reduced to half the chunk size.
func SplitChunks(text string, chunkSize, chunkOverlap int) []Chunk {
	if text == "" {
		return nil
	}

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}

	if utf8.RuneCountInString(text) <= chunkSize {
		return []Chunk{{Index: 0, Text: text}}
	}

	pieces := splitRecursive(text, separators, chunkSize)

	return merge(text, pieces, chunkSize, chunkOverlap)
}

// splitRecursive cuts text into pieces of at most size runes whose
// concatenation equals text. Separators stay attached to the preceding piece.
func splitRecursive(text string, seps []string, size int) []string {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	if len(seps) == 0 {
		return hardCut(text, size)
	}

	parts := strings.SplitAfter(text, seps[0])
	if len(parts) == 1 {
		return splitRecursive(text, seps[1:], size)
	}

	pieces := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}

		if utf8.RuneCountInString(part) <= size {
			pieces = append(pieces, part)
			continue
		}

		pieces = append(pieces, splitRecursive(part, seps[1:], size)...)
	}

	return pieces
}

func hardCut(text string, size int) []string {
	var pieces []string

	for text != "" {
		end := byteIndexOfRune(text, size)
		pieces = append(pieces, text[:end])
		text = text[end:]
	}

	return pieces
}

// merge packs pieces greedily into chunks. Each new chunk starts with the
// tail of the previous one, shortened when it would not leave room for the
// next piece.
func merge(source string, pieces []string, size, overlap int) []Chunk {
	var (
		chunks     []Chunk
		start      int // byte offset of the current chunk in source
		end        int // byte offset right after the current chunk
		curRunes   int
		curOverlap int
	)

	emit := func() {
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Text:    source[start:end],
			Offset:  start,
			Overlap: curOverlap,
		})
	}

	for _, piece := range pieces {
		pieceRunes := utf8.RuneCountInString(piece)

		if end > start && curRunes+pieceRunes > size {
			emit()

			tailRunes := min(overlap, size-pieceRunes)
			tail := tailBytes(source[start:end], tailRunes)

			start = end - tail
			curOverlap = tail
			curRunes = utf8.RuneCountInString(source[start:end])
		}

		end += len(piece)
		curRunes += pieceRunes
	}

	if end > start {
		emit()
	}

	return chunks
}

// tailBytes returns the byte length of the last n runes of s.
func tailBytes(s string, n int) int {
	if n <= 0 {
		return 0
	}

	i := len(s)
	for range n {
		if i == 0 {
			break
		}
		_, w := utf8.DecodeLastRuneInString(s[:i])
		i -= w
	}

	return len(s) - i
}

// byteIndexOfRune returns the byte index right after the first n runes of s.
func byteIndexOfRune(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}

	return len(s)
}

// Reassemble joins chunks back into the source text by dropping each
// chunk's overlap prefix.
func Reassemble(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text[c.Overlap:])
	}

	return b.String()
}
