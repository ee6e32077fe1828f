package detect

import (
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

// Voices assigns voices to parts.
type Voices struct {
	Default   string
	Narration string
	Dialogue  string

	// Global speaking rate, 0 = service default
	Speed float64

	// Per-character settings; missing characters use Default
	Characters map[string]ttypes.VoiceSetting

	// When set, only this character's lines are voiced
	OnlyCharacter string
}

// VoicesFromConfig builds the voice assignment from the configuration.
func VoicesFromConfig(cfg *tts.Config) Voices {
	v := Voices{
		Default:    cfg.Detection.DefaultVoice,
		Narration:  cfg.Detection.NarrationVoice,
		Dialogue:   cfg.Detection.DialogueVoice,
		Speed:      cfg.Generation.Speed,
		Characters: cfg.Detection.Characters,
	}
	if cfg.Detection.SingleCharacter {
		v.OnlyCharacter = cfg.Detection.Character
	}
	return v
}

// Tasks turns parts into synthesis tasks. Parts whose voice resolves to
// nothing or to the muted marker are left out.
func (v Voices) Tasks(parts []Part) []ttypes.Task {
	tasks := make([]ttypes.Task, 0, len(parts))
	for _, p := range parts {
		if v.OnlyCharacter != "" && p.Character != "" && p.Character != v.OnlyCharacter {
			continue
		}

		task := ttypes.Task{
			Text:    p.Text,
			Emotion: p.Emotion,
			Speed:   v.Speed,
			Source:  string(p.Type),
		}

		switch p.Type {
		case PartCharacterDialogue, PartCharacterEmotionDialogue:
			task.Source = p.Character
			setting := v.Characters[p.Character]
			task.VoiceID = or(setting.Voice, v.Default)
			task.Version = setting.Version
			if setting.Speed != nil {
				task.Speed = *setting.Speed
			}
		case PartNarration:
			task.VoiceID = or(v.Narration, v.Default)
		case PartDialogue, PartEmotionDialogue:
			task.VoiceID = or(v.Dialogue, v.Default)
		default:
			task.VoiceID = v.Default
		}

		if task.Suppressed() {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
