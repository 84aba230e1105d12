package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// CanonicalBitDepth is the only sample width handed to the engine.
const CanonicalBitDepth = 16

// TempFile is a canonical WAV written for one request. Release removes it.
type TempFile struct {
	Path string
	Clip *Clip

	once sync.Once
	err  error
}

func (f *TempFile) Release() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = err
		}
	})
	return f.err
}

// Normalize decodes data and re-encodes it as 16-bit PCM WAV in dir,
// keeping the sample rate and channel layout. An empty dir means os.TempDir.
func Normalize(data []byte, dir string) (*TempFile, error) {
	clip, err := Decode(data)
	if err != nil {
		return nil, err
	}

	out, err := os.CreateTemp(dir, "voxapi-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create canonical wav: %w", err)
	}

	tmp := &TempFile{Path: out.Name(), Clip: clip}
	if err := WriteWAV(out, clip); err != nil {
		_ = out.Close()
		_ = tmp.Release()
		return nil, fmt.Errorf("write canonical wav: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = tmp.Release()
		return nil, fmt.Errorf("close canonical wav: %w", err)
	}

	return tmp, nil
}

// writeChunkFrames bounds the int buffer handed to the encoder per write.
const writeChunkFrames = 8192

// WriteWAV encodes clip as 16-bit PCM WAV. The writer is not closed.
func WriteWAV(w io.WriteSeeker, clip *Clip) error {
	enc := wav.NewEncoder(w, clip.SampleRate, CanonicalBitDepth, clip.Channels, wavFormatPCM)

	chunk := writeChunkFrames * clip.Channels
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: clip.Channels, SampleRate: clip.SampleRate},
		Data:           make([]int, 0, min(chunk, len(clip.Samples))),
		SourceBitDepth: CanonicalBitDepth,
	}
	for start := 0; start < len(clip.Samples); start += chunk {
		end := min(start+chunk, len(clip.Samples))
		buf.Data = buf.Data[:0]
		for _, s := range clip.Samples[start:end] {
			buf.Data = append(buf.Data, int(s))
		}
		if err := enc.Write(buf); err != nil {
			return err
		}
	}
	return enc.Close()
}
