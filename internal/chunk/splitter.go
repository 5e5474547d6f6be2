package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var headingPattern = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)

// Splitter cuts documents into overlapping chunks. The document's content
// type picks the effective chunk size, overlap, and dedup threshold on top
// of the base configuration.
type Splitter struct {
	base       Config
	classifier *Classifier
}

// NewSplitter returns a splitter using cfg as the base configuration.
func NewSplitter(cfg Config) *Splitter {
	return &Splitter{
		base:       cfg.sanitized(),
		classifier: NewClassifier(),
	}
}

// Classify exposes the splitter's content classifier.
func (s *Splitter) Classify(content string) ContentType {
	return s.classifier.Classify(content)
}

// Split chunks a document into retrievable units. docID is the
// vault-relative path and version identifies the document revision; both
// feed the chunk identities. Chunks come back in document order.
func (s *Splitter) Split(docID, version, content string) []*Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	ct := s.classifier.Classify(content)
	cfg := OverrideFor(ct).ApplyTo(s.base).sanitized()
	configHash := ConfigFingerprint(cfg)

	overlap := int(float64(cfg.ChunkSize) * cfg.OverlapRatio)
	headings := headingIndex(content)

	var (
		chunks     []*Chunk
		prevTokens map[string]struct{}
	)

	start := 0
	for start < len(content) {
		end := cutPoint(content, start, cfg.ChunkSize)
		piece := content[start:end]

		if strings.TrimSpace(piece) == "" {
			if end <= start {
				break
			}
			start = end
			continue
		}

		atEOF := end == len(content)
		if atEOF && len(piece) < cfg.MinChunkSize && len(chunks) > 0 {
			// Fold a tiny tail into the previous chunk instead of emitting a
			// fragment. If dedup left a gap before the tail, drop it rather
			// than bridge unrelated spans.
			last := chunks[len(chunks)-1]
			if last.Span.End >= start {
				span := Span{Start: last.Span.Start, End: end}
				merged := content[span.Start:span.End]
				last.Identity = NewIdentity(docID, span, version, configHash, merged)
				last.Content = merged
			}
			break
		}

		toks := tokenSet(piece)
		if prevTokens == nil || jaccard(prevTokens, toks) < cfg.DedupThreshold {
			chunks = append(chunks, &Chunk{
				Identity: NewIdentity(docID, Span{Start: start, End: end}, version, configHash, piece),
				Content:  piece,
				Title:    headingFor(headings, start),
				Type:     ct,
			})
			prevTokens = toks
		}

		if atEOF {
			break
		}
		next := end - overlap
		// The overlap step is a byte offset and can land inside a
		// multi-byte rune; advance to the next rune start.
		for next < len(content) && !utf8.RuneStart(content[next]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// cutPoint picks the chunk end for a window starting at start. It prefers
// breaking after whitespace in the back half of the window and never splits
// a UTF-8 rune.
func cutPoint(content string, start, size int) int {
	end := start + size
	if end >= len(content) {
		return len(content)
	}
	floor := start + size/2
	for i := end; i > floor; i-- {
		if isSpaceByte(content[i-1]) {
			return i
		}
	}
	for end > start && !utf8.RuneStart(content[end]) {
		end--
	}
	return end
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

type heading struct {
	pos  int
	text string
}

func headingIndex(content string) []heading {
	var hs []heading
	for _, m := range headingPattern.FindAllStringSubmatchIndex(content, -1) {
		hs = append(hs, heading{pos: m[0], text: strings.TrimSpace(content[m[2]:m[3]])})
	}
	return hs
}

// headingFor returns the text of the nearest heading at or before start.
func headingFor(hs []heading, start int) string {
	title := ""
	for _, h := range hs {
		if h.pos > start {
			break
		}
		title = h.text
	}
	return title
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[tok] = struct{}{}
	}
	return set
}

// jaccard is the token-overlap similarity of two sets in [0, 1].
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
