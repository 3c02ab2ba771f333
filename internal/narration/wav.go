package narration

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteWAV writes clip as a canonical 44-byte-header PCM WAV file.
func WriteWAV(w io.Writer, clip Clip) error {
	const bitsPerSample = 16
	dataLen := uint32(len(clip.Samples) * 2)
	blockAlign := uint16(clip.Channels * bitsPerSample / 8)
	byteRate := uint32(clip.SampleRate) * uint32(blockAlign)

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		36 + dataLen,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16), // fmt chunk size
		uint16(1),  // PCM
		uint16(clip.Channels),
		uint32(clip.SampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataLen,
	}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("write wav header: %w", err)
		}
	}
	if _, err := w.Write(EncodePCM16(clip.Samples)); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}
