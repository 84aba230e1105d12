package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidAudio      = errors.New("invalid audio data")
)

type Format string

const (
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
	FormatMP3  Format = "mp3"
)

// Clip is decoded audio held in memory. Samples are interleaved and
// already scaled to the signed 16-bit range.
type Clip struct {
	Format     Format
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    []int16
}

// Frames returns the number of samples per channel.
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Decode interprets raw bytes as a WAV, FLAC or MP3 stream.
func Decode(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidAudio)
	}

	format, offset, ok := sniffFormat(data)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized container (first bytes %q)", ErrUnsupportedFormat, leading(data, 4))
	}

	var (
		clip *Clip
		err  error
	)
	switch format {
	case FormatWAV:
		clip, err = decodeWAV(data)
	case FormatFLAC:
		clip, err = decodeFLAC(data[offset:])
	case FormatMP3:
		clip, err = decodeMP3(data)
	}
	if err != nil {
		return nil, err
	}

	if err := clip.validate(); err != nil {
		return nil, err
	}
	return clip, nil
}

func (c *Clip) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: %s stream has sample rate %d", ErrInvalidAudio, c.Format, c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: %s stream has %d channels", ErrInvalidAudio, c.Format, c.Channels)
	}
	if c.Frames() == 0 {
		return fmt.Errorf("%w: %s stream contains no samples", ErrInvalidAudio, c.Format)
	}
	c.Samples = c.Samples[:c.Frames()*c.Channels]
	return nil
}

// sniffFormat identifies the container and returns the offset where its
// stream starts. A leading ID3v2 tag is skipped; anything behind it other
// than FLAC is handed to the MP3 decoder, which skips tags itself.
func sniffFormat(data []byte) (Format, int, bool) {
	switch {
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV, 0, true
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC, 0, true
	case bytes.HasPrefix(data, []byte("ID3")):
		if size, ok := id3v2Size(data); ok && bytes.HasPrefix(data[size:], []byte("fLaC")) {
			return FormatFLAC, size, true
		}
		return FormatMP3, 0, true
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, 0, true
	default:
		return "", 0, false
	}
}

// id3v2Size returns the length of a leading ID3v2 tag including its header
// and optional footer.
func id3v2Size(data []byte) (int, bool) {
	if len(data) < 10 || !bytes.HasPrefix(data, []byte("ID3")) {
		return 0, false
	}
	size := 0
	for _, b := range data[6:10] {
		if b&0x80 != 0 {
			return 0, false
		}
		size = size<<7 | int(b)
	}
	size += 10
	if data[5]&0x10 != 0 {
		size += 10
	}
	if size > len(data) {
		return 0, false
	}
	return size, true
}

func leading(data []byte, n int) []byte {
	if len(data) < n {
		return data
	}
	return data[:n]
}

// scaleToInt16 maps a signed integer sample of the given bit depth onto
// the 16-bit range.
func scaleToInt16(v int32, bits int) int16 {
	switch {
	case bits == 16:
		return int16(v)
	case bits < 16:
		return int16(v << (16 - bits))
	default:
		return int16(v >> (bits - 16))
	}
}
