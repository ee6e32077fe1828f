package tts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

// CacheKey derives the cache key for a synthesis request. Two requests share
// a key exactly when voice, text, emotion, speed and version all match.
func CacheKey(voice, text, emotion string, speed float64, version string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%.2f\x00%s", voice, text, emotion, speed, version)
	return hex.EncodeToString(h.Sum(nil))
}

// Defaults are the values applied to task fields left empty.
type Defaults struct {
	Version          string
	Emotion          string
	Speed            float64
	FallbackLanguage string
}

// Resolved is a task after language detection and emotion normalization.
type Resolved struct {
	Task    ttypes.Task
	Request ttypes.SynthesisRequest
	Key     string
}

// Resolve validates task, fills its defaults, detects the language,
// normalizes the emotion against catalog and computes the cache key.
// The key is computed from the normalized emotion.
func Resolve(task ttypes.Task, catalog *Catalog, d Defaults) (Resolved, error) {
	if err := task.Validate(); err != nil {
		return Resolved{}, NewTTSError(ErrorCodeInvalidInput, "invalid task", err)
	}

	speed := task.Speed
	if speed == 0 {
		speed = d.Speed
	}
	if speed == 0 {
		speed = ttypes.DefaultSpeed
	}
	version := task.Version
	if version == "" {
		version = d.Version
	}

	lang := DetectLanguage(task.Text, d.FallbackLanguage)
	emotion := NormalizeEmotion(catalog, task.VoiceID, lang, task.Emotion, d.Emotion)

	req := ttypes.SynthesisRequest{
		Text:     task.Text,
		Voice:    task.VoiceID,
		Version:  version,
		Emotion:  emotion,
		Language: lang,
		Speed:    speed,
	}
	return Resolved{
		Task:    task,
		Request: req,
		Key:     CacheKey(req.Voice, req.Text, req.Emotion, req.Speed, req.Version),
	}, nil
}
