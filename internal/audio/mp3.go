package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always emits 16-bit little-endian stereo; mono streams are
// duplicated into both channels.
const mp3OutputFrameBytes = 4

const mp3ChannelModeMono = 3

func decodeMP3(data []byte) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 stream: %v", ErrInvalidAudio, err)
	}

	channels := mp3Channels(data)

	var samples []int16
	if n := dec.Length(); n > 0 {
		samples = make([]int16, 0, int(n/mp3OutputFrameBytes)*channels)
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := io.ReadFull(dec, buf)
		for off := 0; off+mp3OutputFrameBytes <= n; off += mp3OutputFrameBytes {
			samples = append(samples, int16(binary.LittleEndian.Uint16(buf[off:])))
			if channels == 2 {
				samples = append(samples, int16(binary.LittleEndian.Uint16(buf[off+2:])))
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: mp3 frames: %v", ErrInvalidAudio, err)
		}
	}

	return &Clip{
		Format:     FormatMP3,
		SampleRate: dec.SampleRate(),
		Channels:   channels,
		BitDepth:   16,
		Samples:    samples,
	}, nil
}

// mp3Channels reads the channel mode of the first frame header.
func mp3Channels(data []byte) int {
	start := 0
	if size, ok := id3v2Size(data); ok {
		start = size
	}
	for i := start; i+4 <= len(data); i++ {
		if isMP3FrameHeader(data[i : i+4]) {
			if data[i+3]>>6 == mp3ChannelModeMono {
				return 1
			}
			return 2
		}
	}
	return 2
}

func isMP3FrameHeader(h []byte) bool {
	if h[0] != 0xFF || h[1]&0xE0 != 0xE0 {
		return false
	}
	version := (h[1] >> 3) & 0x03
	layer := (h[1] >> 1) & 0x03
	bitrate := h[2] >> 4
	rate := (h[2] >> 2) & 0x03
	return version != 1 && layer != 0 && bitrate != 0x0F && rate != 0x03
}
