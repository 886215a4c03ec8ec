package patch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when patch text does not follow the envelope grammar.
var ErrMalformed = errors.New("malformed patch")

const (
	beginMarker  = "*** Begin Patch"
	endMarker    = "*** End Patch"
	updateHeader = "*** Update File:"
)

// Section replaces the full content of one file.
type Section struct {
	Path    string
	Content string
}

// Block is one Begin/End delimited unit of a patch.
type Block struct {
	Sections []Section
}

// Parse splits patch text into blocks of update sections. The grammar is
// line oriented:
//
//	patch   := block+
//	block   := "*** Begin Patch" NEWLINE section* "*** End Patch"
//	section := "*** Update File: " path NEWLINE content-lines
//
// Content lines are kept verbatim, line endings included, up to the next
// update header or the end marker. Lines outside blocks and before the first
// header of a block are ignored.
func Parse(text string) ([]Block, error) {
	var (
		blocks  []Block
		current *Block
		section *Section
		content strings.Builder
	)
	flush := func() {
		if section != nil {
			section.Content = content.String()
			current.Sections = append(current.Sections, *section)
			section = nil
		}
		content.Reset()
	}

	for _, line := range splitLines(text) {
		bare := strings.TrimRight(line, "\r\n")
		marker := strings.TrimSpace(bare)

		if current == nil {
			if marker == beginMarker {
				current = &Block{}
			}
			continue
		}

		switch {
		case marker == endMarker:
			flush()
			blocks = append(blocks, *current)
			current = nil
		case strings.HasPrefix(bare, updateHeader):
			flush()
			if !strings.HasSuffix(line, "\n") {
				return nil, fmt.Errorf("%w: update header not followed by a newline", ErrMalformed)
			}
			path := strings.TrimSpace(bare[len(updateHeader):])
			if path == "" {
				return nil, fmt.Errorf("%w: update header without a file path", ErrMalformed)
			}
			section = &Section{Path: path}
		case section != nil:
			content.WriteString(line)
		}
	}

	if current != nil {
		return nil, fmt.Errorf("%w: unclosed patch block (missing '%s')", ErrMalformed, endMarker)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no '%s' block", ErrMalformed, beginMarker)
	}
	return blocks, nil
}

// splitLines splits s after each newline, keeping the terminators.
func splitLines(s string) []string {
	var lines []string
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}
