// Package text provides text normalization for speech synthesis.
//
// Loosely formatted human text (pasted documents, JSON payloads with leftover
// escape sequences, word-processor punctuation) is reduced to a canonical
// plain-text form that can be embedded in SSML and measured consistently by
// the chunker.
package text

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Regex patterns for normalization.
const (
	whitespaceRegexPattern      = `[\s\p{Z}\x{0085}]+`
	paragraphBreakRegexPattern  = `\n(?:[^\S\n]*\n)+`
	spaceBeforePunctPattern     = `\s+([,.;:!?])`
	spaceAfterOpenBracketPattn  = `([(\[{])\s+`
	spaceBeforeCloseBracketPatt = `\s+([)\]}])`
)

// Output separators.
const (
	space           = " "
	lineFeed        = "\n"
	paragraphBreak  = "\n\n"
	asciiHyphen     = "-"
	asciiApostrophe = "'"
	asciiQuote      = `"`
	threeDots       = "..."
)

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithASCIIOnly makes the normalizer decompose text (NFD) and drop every code
// point outside ASCII. Some providers mispronounce or reject extended
// characters; accents are lost but base letters survive.
func WithASCIIOnly() Option {
	return func(n *Normalizer) {
		n.asciiOnly = true
	}
}

// Normalizer converts arbitrary text into canonical plain text.
// A Normalizer is immutable after construction and safe for concurrent use.
type Normalizer struct {
	asciiOnly bool

	whitespacePattern         *regexp.Regexp
	paragraphPattern          *regexp.Regexp
	spaceBeforePunctuation    *regexp.Regexp
	spaceAfterOpenBracket     *regexp.Regexp
	spaceBeforeClosingBracket *regexp.Regexp

	escapeReplacer    *strings.Replacer
	lineEndReplacer   *strings.Replacer
	characterReplacer *strings.Replacer
}

// NewNormalizer creates a normalizer with compiled patterns and replacers.
func NewNormalizer(opts ...Option) *Normalizer {
	normalizer := &Normalizer{
		asciiOnly:                 false,
		whitespacePattern:         regexp.MustCompile(whitespaceRegexPattern),
		paragraphPattern:          regexp.MustCompile(paragraphBreakRegexPattern),
		spaceBeforePunctuation:    regexp.MustCompile(spaceBeforePunctPattern),
		spaceAfterOpenBracket:     regexp.MustCompile(spaceAfterOpenBracketPattn),
		spaceBeforeClosingBracket: regexp.MustCompile(spaceBeforeCloseBracketPatt),
		escapeReplacer:            newEscapeReplacer(),
		lineEndReplacer:           newLineEndReplacer(),
		characterReplacer:         newCharacterReplacer(),
	}

	for _, opt := range opts {
		opt(normalizer)
	}

	return normalizer
}

// ASCIIOnly reports whether the normalizer strips non-ASCII code points.
func (n *Normalizer) ASCIIOnly() bool {
	return n.asciiOnly
}

// Normalize returns text as a single line of canonical plain text.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}

	return n.normalizeLine(n.prepare(text))
}

// NormalizeKeepParagraphs is Normalize, except that blank-line paragraph
// breaks survive as "\n\n". Single line breaks are folded into spaces.
func (n *Normalizer) NormalizeKeepParagraphs(text string) string {
	return strings.Join(n.SplitParagraphs(text), paragraphBreak)
}

// SplitParagraphs splits text on blank lines (two or more consecutive line
// breaks, possibly separated by other whitespace) and normalizes every
// paragraph. Paragraphs that normalize to nothing are dropped.
func (n *Normalizer) SplitParagraphs(text string) []string {
	if text == "" {
		return nil
	}

	prepared := n.prepare(text)

	var paragraphs []string

	for _, part := range n.paragraphPattern.Split(prepared, -1) {
		normalized := n.normalizeLine(part)
		if normalized != "" {
			paragraphs = append(paragraphs, normalized)
		}
	}

	return paragraphs
}

// prepare applies the character-level rewrites that must happen before any
// paragraph or whitespace decision is made.
func (n *Normalizer) prepare(text string) string {
	text = n.escapeReplacer.Replace(text)
	text = n.lineEndReplacer.Replace(text)
	text = n.characterReplacer.Replace(text)

	if n.asciiOnly {
		text = stripNonASCII(text)
	}

	return text
}

func (n *Normalizer) normalizeLine(text string) string {
	text = n.whitespacePattern.ReplaceAllString(text, space)
	text = n.spaceBeforePunctuation.ReplaceAllString(text, "$1")
	text = n.spaceAfterOpenBracket.ReplaceAllString(text, "$1")
	text = n.spaceBeforeClosingBracket.ReplaceAllString(text, "$1")

	return strings.TrimSpace(text)
}

// stripNonASCII decomposes text and removes everything above U+007F.
// Transformers carry state, so the chain is built per call.
func stripNonASCII(text string) string {
	chain := transform.Chain(
		norm.NFD,
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)

	result, _, err := transform.String(chain, text)
	if err != nil {
		return text
	}

	return result
}

// newEscapeReplacer decodes JSON escape sequences that clients leave in text
// fields after double-encoding their payloads.
func newEscapeReplacer() *strings.Replacer {
	return strings.NewReplacer(
		`\"`, asciiQuote,
		`\n`, lineFeed,
		`\t`, space,
		`\r`, "",
	)
}

func newLineEndReplacer() *strings.Replacer {
	return strings.NewReplacer(
		"\r\n", lineFeed,
		"\r", lineFeed,
		"\t", space,
		"\v", space,
		"\f", space,
	)
}

func newCharacterReplacer() *strings.Replacer {
	return strings.NewReplacer(
		// Single quotes and primes.
		"\u2018", asciiApostrophe,
		"\u2019", asciiApostrophe,
		"\u201a", asciiApostrophe,
		"\u201b", asciiApostrophe,
		"\u2032", asciiApostrophe,
		// Double quotes, double primes and guillemets.
		"\u201c", asciiQuote,
		"\u201d", asciiQuote,
		"\u201e", asciiQuote,
		"\u201f", asciiQuote,
		"\u2033", asciiQuote,
		"\u00ab", asciiQuote,
		"\u00bb", asciiQuote,
		// Hyphens, dashes and minus signs.
		"\u2010", asciiHyphen,
		"\u2011", asciiHyphen,
		"\u2012", asciiHyphen,
		"\u2013", asciiHyphen,
		"\u2014", asciiHyphen,
		"\u2015", asciiHyphen,
		"\u2212", asciiHyphen,
		"\u2026", threeDots,
		// Non-breaking and fixed-width spaces.
		"\u00a0", space,
		"\u202f", space,
		"\u2007", space,
		"\u3000", space,
		"\u2000", space,
		"\u2001", space,
		"\u2002", space,
		"\u2003", space,
		"\u2004", space,
		"\u2005", space,
		"\u2006", space,
		"\u2008", space,
		"\u2009", space,
		"\u200a", space,
		// Invisible characters.
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\u2060", "",
		"\ufeff", "",
		"\u00ad", "",
	)
}

var defaultNormalizer = NewNormalizer()

// Normalize normalizes text with the default (Unicode-preserving) normalizer.
func Normalize(text string) string {
	return defaultNormalizer.Normalize(text)
}

// SplitParagraphs splits and normalizes text with the default normalizer.
func SplitParagraphs(text string) []string {
	return defaultNormalizer.SplitParagraphs(text)
}
