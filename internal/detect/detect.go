package detect

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects what counts as a speakable part.
type Mode string

const (
	// ModeCharacterDialogue matches 【name】「line」
	ModeCharacterDialogue Mode = "character_and_dialogue"

	// ModeCharacterEmotionDialogue matches 【name】〈emotion〉「line」
	ModeCharacterEmotionDialogue Mode = "character_emotion_and_dialogue"

	// ModeEmotionDialogue matches 〈emotion〉「line」
	ModeEmotionDialogue Mode = "emotion_and_dialogue"

	// ModeNarrationDialogue splits the message into quoted dialogue and
	// the narration between it
	ModeNarrationDialogue Mode = "narration_and_dialogue"

	// ModeDialogueOnly joins every quoted line into one part
	ModeDialogueOnly Mode = "dialogue_only"

	// ModeEntireMessage speaks the whole message
	ModeEntireMessage Mode = "entire_message"
)

// Modes lists every detection mode.
var Modes = []Mode{
	ModeCharacterDialogue,
	ModeCharacterEmotionDialogue,
	ModeEmotionDialogue,
	ModeNarrationDialogue,
	ModeDialogueOnly,
	ModeEntireMessage,
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown detection mode %q", s)
}

// Tagged reports whether the mode reads character names.
func (m Mode) Tagged() bool {
	return m == ModeCharacterDialogue || m == ModeCharacterEmotionDialogue
}

// QuoteStyle selects the dialogue quotation marks.
type QuoteStyle string

const (
	QuoteJapanese QuoteStyle = "japanese" // 「」
	QuoteWestern  QuoteStyle = "western"  // ""
)

// ParseQuoteStyle validates a quotation style name.
func ParseQuoteStyle(s string) (QuoteStyle, error) {
	switch QuoteStyle(s) {
	case QuoteJapanese, QuoteWestern:
		return QuoteStyle(s), nil
	default:
		return "", fmt.Errorf("unknown quotation style %q", s)
	}
}

// PartType tells how a part was found.
type PartType string

const (
	PartCharacterDialogue        PartType = "character_dialogue"
	PartCharacterEmotionDialogue PartType = "character_emotion_dialogue"
	PartEmotionDialogue          PartType = "emotion_dialogue"
	PartNarration                PartType = "narration"
	PartDialogue                 PartType = "dialogue"
	PartDialogueOnly             PartType = "dialogue_only"
	PartEntireMessage            PartType = "entire_message"
)

// Part is one speakable piece of a message.
type Part struct {
	Type      PartType
	Character string
	Emotion   string
	Text      string
}

// Result is the outcome of detecting one message.
type Result struct {
	Parts []Part

	// Characters named in the message, in order of first appearance
	Characters []string
}

var (
	characterLine        = regexp.MustCompile(`(?s)【([^】]+)】\s*「([^」]+?)」`)
	characterEmotionLine = regexp.MustCompile(`(?s)【([^】]+)】\s*〈([^〉]+)〉\s*「([^」]+?)」`)
	emotionLine          = regexp.MustCompile(`(?s)〈([^〉]+)〉\s*「([^」]+?)」`)

	japaneseQuote = regexp.MustCompile(`「([^」]+?)」`)
	westernQuote  = regexp.MustCompile(`"([^"]+?)"`)

	japaneseSpan = regexp.MustCompile(`「[^」]*」`)
	westernSpan  = regexp.MustCompile(`"[^"]*"`)

	// A part must contain something pronounceable
	speakable = regexp.MustCompile(`[a-zA-Z0-9\x{4e00}-\x{9fa5}\x{3040}-\x{30ff}]`)
)

// Detector finds parts in messages. It is safe for concurrent use.
type Detector struct {
	mode     Mode
	quotes   QuoteStyle
	markdown bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithQuoteStyle sets the dialogue quotation marks.
func WithQuoteStyle(style QuoteStyle) Option {
	return func(d *Detector) {
		d.quotes = style
	}
}

// WithMarkdown enables or disables markdown stripping.
func WithMarkdown(enabled bool) Option {
	return func(d *Detector) {
		d.markdown = enabled
	}
}

// New creates a detector for mode. Markdown stripping is on and quotes are
// Japanese unless configured otherwise.
func New(mode Mode, opts ...Option) *Detector {
	d := &Detector{
		mode:     mode,
		quotes:   QuoteJapanese,
		markdown: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode returns the detection mode.
func (d *Detector) Mode() Mode {
	return d.mode
}

// Detect finds the parts of message.
func (d *Detector) Detect(message string) Result {
	var text string
	if d.markdown {
		text = PlainText(message)
	} else {
		text = strings.TrimSpace(message)
	}

	var r Result
	switch d.mode {
	case ModeCharacterDialogue:
		for _, m := range characterLine.FindAllStringSubmatch(text, -1) {
			r.addCharacterPart(PartCharacterDialogue, m[1], "", m[2])
		}

	case ModeCharacterEmotionDialogue:
		for _, m := range characterEmotionLine.FindAllStringSubmatch(text, -1) {
			r.addCharacterPart(PartCharacterEmotionDialogue, m[1], m[2], m[3])
		}

	case ModeEmotionDialogue:
		for _, m := range emotionLine.FindAllStringSubmatch(text, -1) {
			line := strings.TrimSpace(m[2])
			if isSpeakable(line) {
				r.Parts = append(r.Parts, Part{Type: PartEmotionDialogue, Emotion: strings.TrimSpace(m[1]), Text: line})
			}
		}

	case ModeNarrationDialogue:
		r.Parts = d.narrationAndDialogue(text)

	case ModeDialogueOnly:
		var lines []string
		for _, m := range d.quote().FindAllStringSubmatch(text, -1) {
			if line := strings.TrimSpace(m[1]); isSpeakable(line) {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			r.Parts = []Part{{Type: PartDialogueOnly, Text: strings.Join(lines, "\n")}}
		}

	case ModeEntireMessage:
		if text != "" {
			r.Parts = []Part{{Type: PartEntireMessage, Text: text}}
		}
	}
	return r
}

func (r *Result) addCharacterPart(typ PartType, character, emotion, line string) {
	line = strings.TrimSpace(line)
	if !isSpeakable(line) {
		return
	}
	character = strings.TrimSpace(character)
	r.Parts = append(r.Parts, Part{
		Type:      typ,
		Character: character,
		Emotion:   strings.TrimSpace(emotion),
		Text:      line,
	})
	if character == "" {
		return
	}
	for _, seen := range r.Characters {
		if seen == character {
			return
		}
	}
	r.Characters = append(r.Characters, character)
}

// narrationAndDialogue splits text at quoted spans.
func (d *Detector) narrationAndDialogue(text string) []Part {
	var parts []Part
	addNarration := func(s string) {
		if s = strings.TrimSpace(s); isSpeakable(s) {
			parts = append(parts, Part{Type: PartNarration, Text: s})
		}
	}

	last := 0
	for _, loc := range d.span().FindAllStringIndex(text, -1) {
		addNarration(text[last:loc[0]])
		if line := d.unquote(text[loc[0]:loc[1]]); isSpeakable(line) {
			parts = append(parts, Part{Type: PartDialogue, Text: line})
		}
		last = loc[1]
	}
	addNarration(text[last:])
	return parts
}

func (d *Detector) quote() *regexp.Regexp {
	if d.quotes == QuoteWestern {
		return westernQuote
	}
	return japaneseQuote
}

func (d *Detector) span() *regexp.Regexp {
	if d.quotes == QuoteWestern {
		return westernSpan
	}
	return japaneseSpan
}

// unquote strips the outer quotation marks of a matched span.
func (d *Detector) unquote(s string) string {
	left, right := "「", "」"
	if d.quotes == QuoteWestern {
		left, right = `"`, `"`
	}
	s = strings.TrimPrefix(s, left)
	s = strings.TrimSuffix(s, right)
	return strings.TrimSpace(s)
}

func isSpeakable(s string) bool {
	return s != "" && speakable.MatchString(s)
}
