package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 0x0001
	wavFormatIEEEFloat  = 0x0003
	wavFormatALaw       = 0x0006
	wavFormatMuLaw      = 0x0007
	wavFormatExtensible = 0xFFFE
)

func decodeWAV(data []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: wav header: %v", ErrInvalidAudio, err)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, fmt.Errorf("%w: wav header is incomplete", ErrInvalidAudio)
	}

	audioFormat, err := effectiveWAVFormat(data, dec.WavAudioFormat)
	if err != nil {
		return nil, err
	}
	bits := int(dec.BitDepth)
	if err := validateWAVFormat(audioFormat, bits); err != nil {
		return nil, err
	}

	if err := dec.FwdToPCM(); err != nil || dec.PCMChunk == nil {
		return nil, fmt.Errorf("%w: locate wav data chunk: %v", ErrInvalidAudio, err)
	}

	// Streamed WAVs may declare a data size larger than what was sent; keep what arrived.
	raw, err := io.ReadAll(io.LimitReader(dec.PCMChunk.R, int64(dec.PCMSize)))
	if err != nil {
		return nil, fmt.Errorf("%w: read wav data: %v", ErrInvalidAudio, err)
	}

	return &Clip{
		Format:     FormatWAV,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   bits,
		Samples:    decodeWAVSamples(raw, audioFormat, bits),
	}, nil
}

// ksDataFormatTail is the part of every KSDATAFORMAT_SUBTYPE GUID after
// the leading format code.
var ksDataFormatTail = []byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}

// effectiveWAVFormat resolves WAVE_FORMAT_EXTENSIBLE to the format code in
// its SubFormat GUID. go-audio/wav drops the fmt extension, so the chunk is
// read directly.
func effectiveWAVFormat(data []byte, declared uint16) (uint16, error) {
	if declared != wavFormatExtensible {
		return declared, nil
	}

	body, ok := findRIFFChunk(data, "fmt ")
	if !ok || len(body) < 40 || binary.LittleEndian.Uint16(body[16:18]) < 22 {
		return 0, fmt.Errorf("%w: extensible wav without SubFormat", ErrInvalidAudio)
	}
	subFormat := body[24:40]
	if !bytes.Equal(subFormat[2:], ksDataFormatTail) {
		return 0, fmt.Errorf("%w: extensible wav SubFormat %x", ErrUnsupportedFormat, subFormat)
	}
	return binary.LittleEndian.Uint16(subFormat[:2]), nil
}

func findRIFFChunk(data []byte, id string) ([]byte, bool) {
	for off := 12; off+8 <= len(data); {
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		bodyStart := off + 8
		if size < 0 || size > len(data)-bodyStart {
			return nil, false
		}
		if string(data[off:off+4]) == id {
			return data[bodyStart : bodyStart+size], true
		}
		off = bodyStart + size + size%2
	}
	return nil, false
}

func validateWAVFormat(audioFormat uint16, bitsPerSample int) error {
	switch audioFormat {
	case wavFormatPCM:
		switch bitsPerSample {
		case 8, 16, 24, 32:
			return nil
		}
	case wavFormatIEEEFloat:
		switch bitsPerSample {
		case 32, 64:
			return nil
		}
	case wavFormatALaw, wavFormatMuLaw:
		if bitsPerSample == 8 {
			return nil
		}
	}
	return fmt.Errorf("%w: wav encoding 0x%04x with %d bits per sample", ErrUnsupportedFormat, audioFormat, bitsPerSample)
}

func decodeWAVSamples(raw []byte, audioFormat uint16, bitsPerSample int) []int16 {
	bytesPerSample := bitsPerSample / 8
	count := len(raw) / bytesPerSample
	out := make([]int16, count)

	for i := range out {
		sample := raw[i*bytesPerSample : (i+1)*bytesPerSample]
		switch audioFormat {
		case wavFormatIEEEFloat:
			out[i] = decodeFloatSample(sample, bitsPerSample)
		case wavFormatALaw:
			out[i] = alawToLinear(sample[0])
		case wavFormatMuLaw:
			out[i] = mulawToLinear(sample[0])
		default:
			out[i] = decodeIntSample(sample, bitsPerSample)
		}
	}

	return out
}

func decodeIntSample(sample []byte, bitsPerSample int) int16 {
	switch bitsPerSample {
	case 8:
		// 8-bit WAV is unsigned with a 128 midpoint.
		return int16(int(sample[0])-128) << 8
	case 16:
		return int16(binary.LittleEndian.Uint16(sample))
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return scaleToInt16(v, 24)
	default:
		return scaleToInt16(int32(binary.LittleEndian.Uint32(sample)), 32)
	}
}

func decodeFloatSample(sample []byte, bitsPerSample int) int16 {
	var v float64
	if bitsPerSample == 64 {
		v = math.Float64frombits(binary.LittleEndian.Uint64(sample))
	} else {
		v = float64(math.Float32frombits(binary.LittleEndian.Uint32(sample)))
	}
	return floatToInt16(v)
}

func floatToInt16(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * math.MaxInt16))
}

// G.711 expansion tables follow the ITU reference decoder.
func mulawToLinear(u byte) int16 {
	u = ^u
	t := (int(u&0x0F) << 3) + 0x84
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return int16(0x84 - t)
	}
	return int16(t - 0x84)
}

func alawToLinear(a byte) int16 {
	a ^= 0x55
	t := int(a&0x0F) << 4
	seg := int(a&0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}
