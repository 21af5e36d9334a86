// Package chunker splits source text into overlapping line-ranged chunks for
// embedding.
package chunker

import "strings"

// Chunk is a contiguous run of whole lines from the input text.
// Line numbers are 1-based and inclusive.
type Chunk struct {
	Text      string
	StartLine int
	EndLine   int
}

// DefaultMaxChars is the default soft chunk size ceiling.
const DefaultMaxChars = 2000

// DefaultOverlapChars is the default trailing-context budget carried into the
// next chunk.
const DefaultOverlapChars = 200

// Split chunks text into overlapping chunks of whole lines.
//
// Lines accumulate into a buffer; when appending the next line would push the
// buffer over maxChars and the buffer is non-empty, the buffer is flushed as a
// chunk and the next buffer is seeded with as many trailing lines of the
// flushed chunk as fit within overlapChars (greedy from the end). The
// remaining buffer is flushed at end of input.
//
// A single line longer than maxChars is never split: it is emitted whole,
// exceeding the nominal ceiling. Empty input yields nil. Output is
// deterministic for identical (text, maxChars, overlapChars).
func Split(text string, maxChars, overlapChars int) []Chunk {
	lines := splitKeepEnds(text)
	if len(lines) == 0 {
		return nil
	}

	var chunks []Chunk
	var buf []string
	bufChars := 0
	startLine := 0 // 0-based index of the first line in buf

	for i, line := range lines {
		if bufChars+len(line) > maxChars && bufChars > 0 {
			chunks = append(chunks, Chunk{
				Text:      strings.Join(buf, ""),
				StartLine: startLine + 1,
				EndLine:   i,
			})

			// Greedily keep trailing lines until the overlap budget is hit.
			tail := ""
			tailChars := 0
			for j := len(buf) - 1; j >= 0; j-- {
				if tailChars+len(buf[j]) > overlapChars {
					break
				}
				tail = buf[j] + tail
				tailChars += len(buf[j])
			}
			if tail != "" {
				buf = []string{tail}
				bufChars = tailChars
			} else {
				buf = nil
				bufChars = 0
			}
			startLine = i
		}
		buf = append(buf, line)
		bufChars += len(line)
	}

	if len(buf) > 0 {
		chunks = append(chunks, Chunk{
			Text:      strings.Join(buf, ""),
			StartLine: startLine + 1,
			EndLine:   len(lines),
		})
	}

	return chunks
}

// splitKeepEnds splits text after each newline, keeping the terminator on the
// line it ends. A trailing segment without a newline is its own line.
func splitKeepEnds(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
