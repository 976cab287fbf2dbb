package dispatch

import (
	"strings"
	"unicode/utf8"

	"github.com/trendwire/trendwire/internal/models"
)

// batchHeaderReserve is subtracted from every channel budget to leave room
// for the "(i/N)" numbering header added after splitting.
const batchHeaderReserve = 16

// Split turns rendered blocks into an ordered list of messages that each fit
// the channel's byte budget. Blocks are processed in the fixed block order;
// empty blocks are skipped. Non-atomic blocks split at paragraph boundaries,
// oversized paragraphs at line boundaries, and a single oversized line is
// hard-cut at a rune boundary. Atomic blocks go out whole when they fit;
// otherwise the same chain applies as a last resort rather than refusing to
// send.
func Split(blocks map[string]models.ContentBlock, budgetBytes int) []models.DispatchMessage {
	budget := budgetBytes - batchHeaderReserve
	if budget < 1 {
		budget = 1
	}

	var out []models.DispatchMessage
	priority := 1
	for _, key := range models.BlockOrder {
		block, ok := blocks[key]
		if !ok {
			continue
		}
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}

		if block.Atomic && len(text) <= budget {
			out = append(out, models.DispatchMessage{Key: key, Text: text, Priority: priority})
			priority++
			continue
		}

		for _, chunk := range splitText(text, budget) {
			out = append(out, models.DispatchMessage{Key: key, Text: chunk, Priority: priority})
		}
		priority++
	}
	return out
}

// splitText chunks text into pieces of at most budget bytes, preferring
// paragraph boundaries and keeping the blank-line separator between
// paragraphs that share a chunk.
func splitText(text string, budget int) []string {
	if len(text) <= budget {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		pieces := []string{para}
		if len(para) > budget {
			pieces = splitParagraph(para, budget)
		}
		for _, p := range pieces {
			if cur.Len() > 0 && cur.Len()+2+len(p) > budget {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(p)
		}
	}
	flush()
	return chunks
}

// splitParagraph cuts an oversized paragraph at line boundaries; a line that
// alone exceeds the budget is wrapped at rune boundaries.
func splitParagraph(para string, budget int) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.Split(para, "\n") {
		if len(line) > budget {
			flush()
			out = append(out, wrapRunes(line, budget)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > budget {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(line)
	}
	flush()
	return out
}

// wrapRunes hard-wraps a string into pieces of at most budget bytes without
// ever cutting inside a multi-byte rune.
func wrapRunes(s string, budget int) []string {
	var out []string
	var cur strings.Builder
	for _, r := range s {
		if cur.Len()+utf8.RuneLen(r) > budget {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
