// Package chunk splits search text into bounded, offset-tracked segments that
// fit embedding provider input limits.
package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/hrygo/recruitsense/ai/projector"
	"github.com/hrygo/recruitsense/internal/errs"
)

// DefaultChunkSize is the default number of bytes per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping bytes.
const DefaultChunkOverlap = 200

// Type tags how a chunk relates to its source.
type Type string

const (
	// TypeFull marks the single chunk of a text that fits one window.
	TypeFull Type = "full"
	// TypePartial marks one window of a longer text.
	TypePartial Type = "partial"
	// TypeSection marks a chunk cut from a labeled section.
	TypeSection Type = "section"
)

// Metadata describes a chunk's position in the sequence.
type Metadata struct {
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Type    Type   `json:"type"`
	Section string `json:"section,omitempty"`
}

// Segment is a slice of the source text. StartOffset and EndOffset are byte
// offsets into the source, end exclusive.
type Segment struct {
	Text        string   `json:"text"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
	Metadata    Metadata `json:"metadata"`
}

// Chunk splits text into windows of at most chunkSize bytes overlapping by at
// most overlap bytes. Invalid arguments are clamped: a non-positive chunkSize
// uses DefaultChunkSize and a negative overlap uses zero.
func Chunk(text string, chunkSize, overlap int) []Segment {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return split(text, chunkSize, overlap)
}

// ChunkE is Chunk with argument checking.
func ChunkE(text string, chunkSize, overlap int) ([]Segment, error) {
	if chunkSize <= 0 {
		return nil, errs.InvalidInput("chunk size must be positive: %d", chunkSize)
	}
	if overlap < 0 {
		return nil, errs.InvalidInput("chunk overlap cannot be negative: %d", overlap)
	}
	return split(text, chunkSize, overlap), nil
}

// ChunkSections chunks every section independently. Offsets are relative to
// the rendered section; Index and Total run across the whole result.
func ChunkSections(sections []projector.Section, chunkSize, overlap int) []Segment {
	var all []Segment
	for _, s := range sections {
		for _, c := range Chunk(s.String(), chunkSize, overlap) {
			c.Metadata.Type = TypeSection
			c.Metadata.Section = s.Name
			all = append(all, c)
		}
	}
	for i := range all {
		all[i].Metadata.Index = i
		all[i].Metadata.Total = len(all)
	}
	return all
}

func split(text string, chunkSize, overlap int) []Segment {
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []Segment{{
			Text:        text,
			StartOffset: 0,
			EndOffset:   len(text),
			Metadata:    Metadata{Index: 0, Total: 1, Type: TypeFull},
		}}
	}

	var chunks []Segment
	start := 0
	for start < len(text) {
		end := windowEnd(text, start, chunkSize)
		chunks = append(chunks, Segment{
			Text:        text[start:end],
			StartOffset: start,
			EndOffset:   end,
			Metadata:    Metadata{Index: len(chunks), Type: TypePartial},
		})
		if end == len(text) {
			break
		}

		next := max(end-overlap, 0)
		for next < end && !utf8.RuneStart(text[next]) {
			next++
		}
		// Overlap too large to make progress: continue without overlap.
		if next <= start {
			next = end
		}
		start = next
	}

	for i := range chunks {
		chunks[i].Metadata.Total = len(chunks)
	}
	return chunks
}

// windowEnd picks the end of the window starting at start. It prefers the
// last sentence terminator past the window midpoint, then the last space past
// the midpoint, then the raw boundary moved back to a rune start.
func windowEnd(text string, start, chunkSize int) int {
	end := start + chunkSize
	if end >= len(text) {
		return len(text)
	}

	mid := start + chunkSize/2
	window := text[mid:end]
	if i := strings.LastIndexAny(window, ".?!"); i >= 0 {
		return mid + i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i >= 0 {
		return mid + i + 1
	}

	for end > start+1 && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}
