package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for clips that are not PCM WAV files
var ErrInvalidWAV = errors.New("not a PCM WAV file")

// PCM is decoded audio as signed 16-bit little endian interleaved samples.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration returns the playing time of the samples.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return 0
	}
	frames := len(p.Data) / (2 * p.Channels)
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// WithChannels converts between mono and stereo.
func (p PCM) WithChannels(channels int) PCM {
	if channels == p.Channels || p.Channels <= 0 {
		return p
	}

	frames := len(p.Data) / (2 * p.Channels)
	out := make([]byte, frames*2*channels)
	for f := 0; f < frames; f++ {
		// Average the source frame, then write it to every output channel
		var sum int
		for c := 0; c < p.Channels; c++ {
			i := (f*p.Channels + c) * 2
			sum += int(int16(binary.LittleEndian.Uint16(p.Data[i:])))
		}
		v := uint16(int16(sum / p.Channels))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(out[(f*channels+c)*2:], v)
		}
	}
	return PCM{Data: out, SampleRate: p.SampleRate, Channels: channels}
}

// DecodeWAV decodes a PCM WAV file of any integer bit depth to 16-bit PCM.
func DecodeWAV(r io.ReadSeeker) (PCM, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return PCM{}, ErrInvalidWAV
	}
	if d.WavAudioFormat != 1 {
		return PCM{}, fmt.Errorf("%w: audio format %d", ErrInvalidWAV, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("decode wav: %w", err)
	}

	depth := int(d.BitDepth)
	data := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(to16(s, depth)))
	}

	return PCM{
		Data:       data,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
	}, nil
}

// to16 scales a sample of the given bit depth to 16 bits. 8-bit WAV
// samples are unsigned.
func to16(s, depth int) int16 {
	switch {
	case depth == 8:
		return int16((s - 128) << 8)
	case depth > 16:
		return int16(s >> (depth - 16))
	case depth < 16:
		return int16(s << (16 - depth))
	default:
		return int16(s)
	}
}

// ReadResource reads and decodes a clip resource.
func ReadResource(res ttypes.Resource) (PCM, error) {
	rc, err := res.Open()
	if err != nil {
		return PCM{}, fmt.Errorf("open clip: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return PCM{}, fmt.Errorf("read clip: %w", err)
	}
	return DecodeWAV(bytes.NewReader(data))
}
