// Package audiotest builds WAV fixtures for tests.
package audiotest

import (
	"encoding/binary"
	"math"
)

// WAV assembles a RIFF/WAVE file around an already encoded data chunk.
func WAV(audioFormat uint16, bitsPerSample, channels, sampleRate int, data []byte) []byte {
	return riff(fmtChunk(audioFormat, bitsPerSample, channels, sampleRate), data)
}

// Extensible builds a WAVE_FORMAT_EXTENSIBLE file whose SubFormat GUID
// carries subFormat (1 PCM, 3 IEEE float, 6 A-law, 7 mu-law).
func Extensible(subFormat uint16, bitsPerSample, channels, sampleRate int, data []byte) []byte {
	ext := make([]byte, 24)
	binary.LittleEndian.PutUint16(ext[0:], 22)
	binary.LittleEndian.PutUint16(ext[2:], uint16(bitsPerSample))
	binary.LittleEndian.PutUint32(ext[4:], channelMask(channels))
	binary.LittleEndian.PutUint16(ext[8:], subFormat)
	copy(ext[10:], []byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})

	return riff(append(fmtChunk(0xFFFE, bitsPerSample, channels, sampleRate), ext...), data)
}

func channelMask(channels int) uint32 {
	if channels == 1 {
		return 0x4
	}
	return 1<<channels - 1
}

func fmtChunk(audioFormat uint16, bitsPerSample, channels, sampleRate int) []byte {
	blockAlign := channels * bitsPerSample / 8
	out := make([]byte, 16)
	binary.LittleEndian.PutUint16(out[0:], audioFormat)
	binary.LittleEndian.PutUint16(out[2:], uint16(channels))
	binary.LittleEndian.PutUint32(out[4:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[8:], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[12:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[14:], uint16(bitsPerSample))
	return out
}

func riff(fmtBody, data []byte) []byte {
	out := make([]byte, 0, 12+8+len(fmtBody)+8+len(data))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(4+8+len(fmtBody)+8+len(data)))
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(fmtBody)))
	out = append(out, fmtBody...)
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	return append(out, data...)
}

func PCM16(samples []int16, sampleRate, channels int) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return WAV(1, 16, channels, sampleRate, data)
}

func Float32(samples []float32, sampleRate, channels int) []byte {
	return WAV(3, 32, channels, sampleRate, Float32Data(samples))
}

// Float32Data encodes samples as a little-endian IEEE float data chunk.
func Float32Data(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return data
}

// Silence is one channel of zero samples.
func Silence(duration float64, sampleRate int) []byte {
	return PCM16(make([]int16, int(duration*float64(sampleRate))), sampleRate, 1)
}

func Sine(freq, amplitude float64, frames, sampleRate int) []int16 {
	out := make([]int16, frames)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
