// Package ssml builds Speech Synthesis Markup Language documents from plain
// text and splits long text into provider-sized SSML segments.
package ssml

import (
	"regexp"
	"strings"

	"github.com/book-expert/ssml-tts-service/internal/tts/text"
)

// Envelope markup.
const (
	speakOpen  = "<speak>"
	speakClose = "</speak>"

	// EnvelopeLen is the rune length of an empty <speak></speak> envelope.
	EnvelopeLen = len(speakOpen) + len(speakClose)
)

// Regex patterns for envelope and tag handling.
const (
	speakOpenRegexPattern  = `(?is)^\s*<speak(?:\s[^>]*)?>`
	speakCloseRegexPattern = `(?is)</speak>\s*$`
	sayAsRegexPattern      = `(?is)<say-as\b[^>]*>(.*?)</say-as>`
	breakRegexPattern      = `(?is)<break\b[^>]*/?>`
	tagRegexPattern        = `(?s)<[^>]+>`
	whitespaceRegexPattern = `\s+`
)

var (
	speakOpenPattern  = regexp.MustCompile(speakOpenRegexPattern)
	speakClosePattern = regexp.MustCompile(speakCloseRegexPattern)
	sayAsPattern      = regexp.MustCompile(sayAsRegexPattern)
	breakPattern      = regexp.MustCompile(breakRegexPattern)
	tagPattern        = regexp.MustCompile(tagRegexPattern)
	whitespacePattern = regexp.MustCompile(whitespaceRegexPattern)

	escapeReplacer = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	unescapeReplacer = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&amp;", "&",
	)
)

// HasSpeechEnvelope reports whether text opens with a top-level <speak> tag.
func HasSpeechEnvelope(text string) bool {
	return speakOpenPattern.MatchString(text)
}

// WrapAsSpeech wraps text in a single <speak> envelope. Text that already
// opens with <speak ...> only has its whitespace collapsed, so wrapping is
// idempotent. Markup inside plain text (for example <break/>) is kept as is.
func WrapAsSpeech(input string) string {
	if HasSpeechEnvelope(input) {
		return collapseWhitespace(input)
	}

	return speakOpen + text.Normalize(input) + speakClose
}

// StripSpeechEnvelope removes one leading <speak ...> tag and one trailing
// </speak> tag. Inner markup is left untouched; input without an envelope is
// returned unchanged.
func StripSpeechEnvelope(input string) string {
	stripped := input

	if loc := speakOpenPattern.FindStringIndex(stripped); loc != nil {
		stripped = stripped[loc[1]:]
	}

	if loc := speakClosePattern.FindStringIndex(stripped); loc != nil {
		stripped = stripped[:loc[0]]
	}

	return stripped
}

// ConvertToPlainText reduces SSML to the words a listener would hear.
// The digits of <say-as> groups are joined, breaks become spaces, every other
// tag is dropped and XML entities are decoded. The conversion is lossy.
func ConvertToPlainText(ssml string) string {
	plain := StripSpeechEnvelope(ssml)

	plain = sayAsPattern.ReplaceAllStringFunc(plain, func(match string) string {
		inner := sayAsPattern.FindStringSubmatch(match)[1]

		return whitespacePattern.ReplaceAllString(inner, "")
	})
	plain = breakPattern.ReplaceAllString(plain, " ")
	plain = tagPattern.ReplaceAllString(plain, "")
	plain = unescapeReplacer.Replace(plain)

	return collapseWhitespace(plain)
}

// EscapeText escapes the characters that would otherwise be read as markup.
func EscapeText(plain string) string {
	return escapeReplacer.Replace(plain)
}

func collapseWhitespace(input string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(input, " "))
}
