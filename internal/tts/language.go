package tts

// Language values as understood by the synthesis service.
const (
	LanguageJapanese = "日语"
	LanguageChinese  = "中文"
)

// DetectLanguage returns LanguageJapanese when text contains any Hiragana or
// Katakana rune, otherwise fallback. An empty fallback means LanguageChinese.
func DetectLanguage(text, fallback string) string {
	for _, r := range text {
		if isKana(r) {
			return LanguageJapanese
		}
	}
	if fallback == "" {
		return LanguageChinese
	}
	return fallback
}

func isKana(r rune) bool {
	return (r >= 0x3040 && r <= 0x309F) || (r >= 0x30A0 && r <= 0x30FF)
}
