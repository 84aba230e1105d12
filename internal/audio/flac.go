package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

func decodeFLAC(data []byte) (*Clip, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: flac stream: %v", ErrInvalidAudio, err)
	}
	defer stream.Close()

	info := stream.Info
	bits := int(info.BitsPerSample)
	channels := int(info.NChannels)
	if bits < 4 || bits > 32 {
		return nil, fmt.Errorf("%w: flac with %d bits per sample", ErrUnsupportedFormat, bits)
	}

	// NSamples comes from the header and is untrusted; bound the preallocation by payload size.
	capacity := int(info.NSamples) * channels
	if limit := len(data) * 4; capacity > limit || capacity < 0 {
		capacity = limit
	}
	samples := make([]int16, 0, capacity)

	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: flac frame: %v", ErrInvalidAudio, err)
		}
		if len(frame.Subframes) != channels {
			return nil, fmt.Errorf("%w: flac frame has %d channels, stream declares %d", ErrInvalidAudio, len(frame.Subframes), channels)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for _, sub := range frame.Subframes {
				samples = append(samples, scaleToInt16(sub.Samples[i], bits))
			}
		}
	}

	return &Clip{
		Format:     FormatFLAC,
		SampleRate: int(info.SampleRate),
		Channels:   channels,
		BitDepth:   bits,
		Samples:    samples,
	}, nil
}
