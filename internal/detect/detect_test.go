package detect

import (
	"reflect"
	"testing"

	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     string
	}{
		{
			name:     "emphasis",
			markdown: "This is **bold** and *italic*.",
			want:     "This is bold and italic.",
		},
		{
			name:     "paragraphs",
			markdown: "First.\n\nSecond.",
			want:     "First.\nSecond.",
		},
		{
			name:     "soft line break",
			markdown: "line one\nline two",
			want:     "line one\nline two",
		},
		{
			name:     "code block dropped",
			markdown: "Before.\n\n```go\nfmt.Println(\"x\")\n```\n\nAfter.",
			want:     "Before.\nAfter.",
		},
		{
			name:     "link text kept",
			markdown: "See [the docs](https://example.com).",
			want:     "See the docs.",
		},
		{
			name:     "image dropped",
			markdown: "![alt](a.png) text",
			want:     "text",
		},
		{
			name:     "tags survive",
			markdown: "【アリス】「こんにちは」",
			want:     "【アリス】「こんにちは」",
		},
		{
			name:     "nfc",
			markdown: "\u304b\u3099",
			want:     "\u304c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.markdown); got != tt.want {
				t.Errorf("PlainText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetector_CharacterDialogue(t *testing.T) {
	d := New(ModeCharacterDialogue)
	got := d.Detect("【Alice】「Hello there」\n【Bob】 「...」\n【Alice】「Again」\n【Carol】「Hi」")

	want := []Part{
		{Type: PartCharacterDialogue, Character: "Alice", Text: "Hello there"},
		{Type: PartCharacterDialogue, Character: "Alice", Text: "Again"},
		{Type: PartCharacterDialogue, Character: "Carol", Text: "Hi"},
	}
	if !reflect.DeepEqual(got.Parts, want) {
		t.Errorf("Parts = %+v, want %+v", got.Parts, want)
	}
	// Bob only said something unpronounceable
	if !reflect.DeepEqual(got.Characters, []string{"Alice", "Carol"}) {
		t.Errorf("Characters = %v", got.Characters)
	}
}

func TestDetector_CharacterEmotionDialogue(t *testing.T) {
	d := New(ModeCharacterEmotionDialogue)
	got := d.Detect("【アリス】〈开心〉「やった！」 【アリス】「no emotion」")

	want := []Part{{Type: PartCharacterEmotionDialogue, Character: "アリス", Emotion: "开心", Text: "やった！"}}
	if !reflect.DeepEqual(got.Parts, want) {
		t.Errorf("Parts = %+v, want %+v", got.Parts, want)
	}
}

func TestDetector_EmotionDialogue(t *testing.T) {
	d := New(ModeEmotionDialogue)
	got := d.Detect("〈sad〉\n「It is over」 and 「untagged」")

	want := []Part{{Type: PartEmotionDialogue, Emotion: "sad", Text: "It is over"}}
	if !reflect.DeepEqual(got.Parts, want) {
		t.Errorf("Parts = %+v, want %+v", got.Parts, want)
	}
	if len(got.Characters) != 0 {
		t.Errorf("Characters = %v, want none", got.Characters)
	}
}

func TestDetector_NarrationDialogue(t *testing.T) {
	tests := []struct {
		name    string
		quotes  QuoteStyle
		message string
		want    []Part
	}{
		{
			name:    "japanese",
			quotes:  QuoteJapanese,
			message: "她笑了。「你好」然后离开了。「……」",
			want: []Part{
				{Type: PartNarration, Text: "她笑了。"},
				{Type: PartDialogue, Text: "你好"},
				{Type: PartNarration, Text: "然后离开了。"},
			},
		},
		{
			name:    "western",
			quotes:  QuoteWestern,
			message: `She smiled. "Hello," she said.`,
			want: []Part{
				{Type: PartNarration, Text: "She smiled."},
				{Type: PartDialogue, Text: "Hello,"},
				{Type: PartNarration, Text: "she said."},
			},
		},
		{
			name:    "no quotes",
			quotes:  QuoteJapanese,
			message: "Just narration.",
			want:    []Part{{Type: PartNarration, Text: "Just narration."}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(ModeNarrationDialogue, WithQuoteStyle(tt.quotes)).Detect(tt.message)
			if !reflect.DeepEqual(got.Parts, tt.want) {
				t.Errorf("Parts = %+v, want %+v", got.Parts, tt.want)
			}
		})
	}
}

func TestDetector_DialogueOnly(t *testing.T) {
	d := New(ModeDialogueOnly, WithQuoteStyle(QuoteWestern))
	got := d.Detect(`"One." narration "Two." "!!"`)

	want := []Part{{Type: PartDialogueOnly, Text: "One.\nTwo."}}
	if !reflect.DeepEqual(got.Parts, want) {
		t.Errorf("Parts = %+v, want %+v", got.Parts, want)
	}

	if got := d.Detect("no dialogue here"); len(got.Parts) != 0 {
		t.Errorf("Parts = %+v, want none", got.Parts)
	}
}

func TestDetector_EntireMessage(t *testing.T) {
	d := New(ModeEntireMessage)
	got := d.Detect("  **Whole** message.  ")

	want := []Part{{Type: PartEntireMessage, Text: "Whole message."}}
	if !reflect.DeepEqual(got.Parts, want) {
		t.Errorf("Parts = %+v, want %+v", got.Parts, want)
	}
	if got := d.Detect("   "); len(got.Parts) != 0 {
		t.Errorf("blank message produced %+v", got.Parts)
	}
}

func TestDetector_WithoutMarkdown(t *testing.T) {
	d := New(ModeEntireMessage, WithMarkdown(false))
	got := d.Detect("**kept**")
	if len(got.Parts) != 1 || got.Parts[0].Text != "**kept**" {
		t.Errorf("Parts = %+v", got.Parts)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %q, %v", m, got, err)
		}
	}
	if _, err := ParseMode("telepathy"); err == nil {
		t.Error("ParseMode() accepted an unknown mode")
	}
	if !ModeCharacterDialogue.Tagged() || ModeDialogueOnly.Tagged() {
		t.Error("Tagged() is wrong")
	}
}

func TestParseQuoteStyle(t *testing.T) {
	if s, err := ParseQuoteStyle("western"); err != nil || s != QuoteWestern {
		t.Errorf("ParseQuoteStyle(western) = %q, %v", s, err)
	}
	if _, err := ParseQuoteStyle("french"); err == nil {
		t.Error("ParseQuoteStyle() accepted an unknown style")
	}
}

func TestVoices_Tasks(t *testing.T) {
	fast := 1.5
	v := Voices{
		Default:   "narrator",
		Narration: "storyteller",
		Dialogue:  "heroine",
		Speed:     1.0,
		Characters: map[string]ttypes.VoiceSetting{
			"Alice": {Voice: "alice-v", Version: "v2", Speed: &fast},
			"Bob":   {Voice: ttypes.DoNotPlay},
			"Carol": {},
		},
	}

	parts := []Part{
		{Type: PartCharacterDialogue, Character: "Alice", Text: "a"},
		{Type: PartCharacterDialogue, Character: "Bob", Text: "b"},
		{Type: PartCharacterEmotionDialogue, Character: "Carol", Emotion: "开心", Text: "c"},
		{Type: PartNarration, Text: "n"},
		{Type: PartDialogue, Text: "d"},
		{Type: PartEmotionDialogue, Emotion: "sad", Text: "e"},
		{Type: PartEntireMessage, Text: "m"},
	}

	want := []ttypes.Task{
		{Text: "a", VoiceID: "alice-v", Version: "v2", Speed: 1.5, Source: "Alice"},
		{Text: "c", VoiceID: "narrator", Emotion: "开心", Speed: 1.0, Source: "Carol"},
		{Text: "n", VoiceID: "storyteller", Speed: 1.0, Source: "narration"},
		{Text: "d", VoiceID: "heroine", Speed: 1.0, Source: "dialogue"},
		{Text: "e", VoiceID: "heroine", Emotion: "sad", Speed: 1.0, Source: "emotion_dialogue"},
		{Text: "m", VoiceID: "narrator", Speed: 1.0, Source: "entire_message"},
	}
	if got := v.Tasks(parts); !reflect.DeepEqual(got, want) {
		t.Errorf("Tasks() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestVoices_OnlyCharacter(t *testing.T) {
	v := Voices{Default: "narrator", OnlyCharacter: "Alice"}
	parts := []Part{
		{Type: PartCharacterDialogue, Character: "Alice", Text: "a"},
		{Type: PartCharacterDialogue, Character: "Bob", Text: "b"},
	}
	got := v.Tasks(parts)
	if len(got) != 1 || got[0].Source != "Alice" {
		t.Errorf("Tasks() = %+v, want only Alice", got)
	}
}

func TestVoices_NoDefaultVoice(t *testing.T) {
	v := Voices{}
	if got := v.Tasks([]Part{{Type: PartEntireMessage, Text: "m"}}); len(got) != 0 {
		t.Errorf("Tasks() = %+v, want none without a voice", got)
	}
}

func TestVoicesFromConfig(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Detection.DefaultVoice = "narrator"
	cfg.Detection.Character = "Alice"

	if v := VoicesFromConfig(cfg); v.OnlyCharacter != "" || v.Default != "narrator" || v.Speed != 1.0 {
		t.Errorf("VoicesFromConfig() = %+v", v)
	}

	cfg.Detection.SingleCharacter = true
	if v := VoicesFromConfig(cfg); v.OnlyCharacter != "Alice" {
		t.Errorf("OnlyCharacter = %q, want Alice", v.OnlyCharacter)
	}
}
