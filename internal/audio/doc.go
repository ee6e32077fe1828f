// Package audio plays synthesized WAV clips through the system audio
// device using oto/v3. Clips are decoded with go-audio/wav. MockPlayer
// simulates playback for tests.
package audio
