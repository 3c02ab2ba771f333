package narration

import (
	"encoding/binary"
	"fmt"
	"time"

	"storybook-server/internal/genclient"
)

// Clip is decoded 16-bit PCM audio.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// DecodeSpeech decodes the raw little-endian PCM returned by
// genclient.Client.GenerateSpeech.
func DecodeSpeech(data []byte) (Clip, error) {
	samples, err := DecodePCM16(data)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Samples: samples, SampleRate: genclient.SpeechSampleRate, Channels: genclient.SpeechChannels}, nil
}

// DecodePCM16 turns little-endian 16-bit PCM bytes into samples.
func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm data has odd length %d", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return samples, nil
}

// EncodePCM16 is the inverse of DecodePCM16.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// Float32 returns the samples scaled to [-1, 1), the form audio APIs expect.
func (c Clip) Float32() []float32 {
	out := make([]float32, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Duration is the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}
