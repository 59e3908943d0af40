package ssml

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/ssml-tts-service/internal/tts/text"
)

const (
	// DefaultMaxLen is the default content budget of a segment, in runes.
	DefaultMaxLen = 3000
	// MinMaxLen is the smallest accepted budget; smaller values are raised to it.
	MinMaxLen = 20
	// DefaultPause is the pause inserted between paragraphs.
	DefaultPause = 600 * time.Millisecond

	maxSliceMargin     = 50
	sliceMarginDivisor = 5
	breakMarkerFormat  = `<break time="%dms"/>`
	entityMaxLen       = 8
)

// Segment is one SSML document produced by the Chunker.
type Segment struct {
	Index int    `json:"index"`
	SSML  string `json:"ssml"`
}

// Content returns the markup inside the <speak> envelope.
func (s Segment) Content() string {
	return StripSpeechEnvelope(s.SSML)
}

// ContentLen is the rune length of Content. This is the value bounded by the
// chunker's maxLen.
func (s Segment) ContentLen() int {
	return utf8.RuneCountInString(s.Content())
}

// ApproxBytes is the encoded size of the segment. Reporting only.
func (s Segment) ApproxBytes() int {
	return len(s.SSML)
}

// PlainText returns the words of the segment without markup.
func (s Segment) PlainText() string {
	return ConvertToPlainText(s.SSML)
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithMaxLen sets the segment content budget.
func WithMaxLen(maxLen int) ChunkerOption {
	return func(c *Chunker) {
		c.maxLen = maxLen
	}
}

// WithPause sets the pause inserted between paragraphs. A non-positive
// duration disables pauses.
func WithPause(pause time.Duration) ChunkerOption {
	return func(c *Chunker) {
		c.pause = pause
	}
}

// WithoutPauses disables paragraph pauses.
func WithoutPauses() ChunkerOption {
	return WithPause(0)
}

// WithNormalizer replaces the default Unicode-preserving normalizer.
func WithNormalizer(normalizer *text.Normalizer) ChunkerOption {
	return func(c *Chunker) {
		if normalizer != nil {
			c.normalizer = normalizer
		}
	}
}

// Chunker splits text into ordered SSML segments. Paragraph boundaries are
// preferred over sentence boundaries, and sentences longer than the budget
// are hard-sliced so that no text is ever dropped.
//
// A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	maxLen     int
	pause      time.Duration
	normalizer *text.Normalizer
}

// NewChunker creates a Chunker with DefaultMaxLen and DefaultPause unless
// overridden.
func NewChunker(opts ...ChunkerOption) *Chunker {
	chunker := &Chunker{
		maxLen:     DefaultMaxLen,
		pause:      DefaultPause,
		normalizer: text.NewNormalizer(),
	}

	for _, opt := range opts {
		opt(chunker)
	}

	chunker.maxLen = clampMaxLen(chunker.maxLen)

	return chunker
}

// MaxLen returns the effective segment content budget.
func (c *Chunker) MaxLen() int {
	return c.maxLen
}

// Sized returns a copy of the chunker with a different budget. A
// non-positive maxLen keeps the current budget.
func (c *Chunker) Sized(maxLen int) *Chunker {
	if maxLen <= 0 {
		return c
	}

	sized := *c
	sized.maxLen = clampMaxLen(maxLen)

	return &sized
}

// Chunk converts text into SSML segments. Input that already carries a
// <speak> envelope is first reduced to plain text. Empty or whitespace-only
// input yields no segments.
func (c *Chunker) Chunk(input string) []Segment {
	if HasSpeechEnvelope(input) {
		input = ConvertToPlainText(input)
	}

	paragraphs := c.normalizer.SplitParagraphs(input)
	if len(paragraphs) == 0 {
		return nil
	}

	builder := newSegmentBuilder(c.maxLen, c.pauseMarker())

	for i, paragraph := range paragraphs {
		builder.addParagraph(EscapeText(paragraph), i < len(paragraphs)-1)
	}

	return builder.finish()
}

func (c *Chunker) pauseMarker() string {
	if c.pause <= 0 {
		return ""
	}

	return fmt.Sprintf(breakMarkerFormat, c.pause.Milliseconds())
}

// ChunkText splits text with a default chunker of the given budget.
// A non-positive maxLen selects DefaultMaxLen.
func ChunkText(input string, maxLen int) []Segment {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}

	return NewChunker(WithMaxLen(maxLen)).Chunk(input)
}

func clampMaxLen(maxLen int) int {
	switch {
	case maxLen <= 0:
		return DefaultMaxLen
	case maxLen < MinMaxLen:
		return MinMaxLen
	default:
		return maxLen
	}
}

// sliceWidth is the width of hard-sliced pieces: the budget minus a margin
// of at most maxSliceMargin runes, scaled down for small budgets.
func sliceWidth(maxLen int) int {
	margin := min(maxSliceMargin, maxLen/sliceMarginDivisor)

	return maxLen - margin
}

// segmentBuilder accumulates pieces greedily into a buffer and flushes it as
// a segment when the next piece would overflow the budget.
type segmentBuilder struct {
	maxLen      int
	width       int
	pauseMarker string

	buffer       strings.Builder
	bufferLen    int
	pendingPause bool

	segments []Segment
}

func newSegmentBuilder(maxLen int, pauseMarker string) *segmentBuilder {
	return &segmentBuilder{
		maxLen:      maxLen,
		width:       sliceWidth(maxLen),
		pauseMarker: pauseMarker,
	}
}

func (b *segmentBuilder) addParagraph(paragraph string, more bool) {
	if !b.tryAppend(paragraph) {
		for _, sentence := range splitSentences(paragraph) {
			b.addSentence(sentence)
		}
	}

	b.pendingPause = more && b.pauseMarker != "" && b.bufferLen > 0
}

func (b *segmentBuilder) addSentence(sentence string) {
	if b.tryAppend(sentence) {
		return
	}

	b.flush()

	if runeLen(sentence) > b.maxLen {
		for _, piece := range hardSlice(sentence, b.width) {
			b.emit(piece)
		}

		return
	}

	b.tryAppend(sentence)
}

// tryAppend adds piece to the buffer when the result stays within maxLen.
// A pending paragraph pause is used as the separator only if it also fits.
func (b *segmentBuilder) tryAppend(piece string) bool {
	pieceLen := runeLen(piece)

	if b.bufferLen == 0 {
		if pieceLen > b.maxLen {
			return false
		}

		b.write(piece, pieceLen)

		return true
	}

	if b.bufferLen+1+pieceLen > b.maxLen {
		return false
	}

	separator := " "

	if b.pendingPause {
		pauseSeparator := " " + b.pauseMarker + " "
		if b.bufferLen+runeLen(pauseSeparator)+pieceLen <= b.maxLen {
			separator = pauseSeparator
		}
	}

	b.write(separator, runeLen(separator))
	b.write(piece, pieceLen)

	return true
}

func (b *segmentBuilder) write(value string, valueLen int) {
	b.buffer.WriteString(value)
	b.bufferLen += valueLen
	b.pendingPause = false
}

// flush emits the buffer as a segment. A pending paragraph pause is kept at
// the end of the segment when there is room for it.
func (b *segmentBuilder) flush() {
	if b.bufferLen == 0 {
		return
	}

	if b.pendingPause {
		trailing := " " + b.pauseMarker
		if b.bufferLen+runeLen(trailing) <= b.maxLen {
			b.buffer.WriteString(trailing)
		}
	}

	b.emit(b.buffer.String())
	b.buffer.Reset()
	b.bufferLen = 0
	b.pendingPause = false
}

func (b *segmentBuilder) emit(content string) {
	b.segments = append(b.segments, Segment{
		Index: len(b.segments),
		SSML:  speakOpen + content + speakClose,
	})
}

func (b *segmentBuilder) finish() []Segment {
	b.pendingPause = false
	b.flush()

	return b.segments
}

// splitSentences splits a normalized paragraph after '.', '!' or '?' when the
// mark (and any closing quotes or brackets) is followed by a space.
func splitSentences(paragraph string) []string {
	var sentences []string

	start := 0

	for i := 0; i < len(paragraph); i++ {
		if !isTerminal(paragraph[i]) {
			continue
		}

		end := i + 1
		for end < len(paragraph) && isCloser(paragraph[end]) {
			end++
		}

		if end < len(paragraph) && paragraph[end] == ' ' {
			sentences = append(sentences, paragraph[start:end])
			start = end + 1
			i = end
		}
	}

	if start < len(paragraph) {
		sentences = append(sentences, paragraph[start:])
	}

	return sentences
}

func isTerminal(char byte) bool {
	return char == '.' || char == '!' || char == '?'
}

func isCloser(char byte) bool {
	switch char {
	case '"', '\'', ')', ']', '}':
		return true
	default:
		return false
	}
}

// hardSlice cuts value into pieces of at most width runes. Pieces are not
// trimmed, never split a rune and never split an XML entity, so their
// concatenation is exactly value.
func hardSlice(value string, width int) []string {
	var (
		pieces     []string
		current    strings.Builder
		currentLen int
	)

	for offset := 0; offset < len(value); {
		atom := nextAtom(value[offset:])
		atomLen := runeLen(atom)

		if currentLen > 0 && currentLen+atomLen > width {
			pieces = append(pieces, current.String())
			current.Reset()
			currentLen = 0
		}

		current.WriteString(atom)
		currentLen += atomLen
		offset += len(atom)
	}

	if currentLen > 0 {
		pieces = append(pieces, current.String())
	}

	return pieces
}

// nextAtom returns the leading XML entity of value, or its leading rune.
func nextAtom(value string) string {
	if value[0] == '&' {
		limit := min(len(value), entityMaxLen)
		if end := strings.IndexByte(value[:limit], ';'); end > 0 {
			return value[:end+1]
		}
	}

	_, size := utf8.DecodeRuneInString(value)

	return value[:size]
}

func runeLen(value string) int {
	return utf8.RuneCountInString(value)
}
