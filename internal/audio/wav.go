package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInvalidWAV is returned for input that is not 16-bit PCM RIFF/WAVE.
var ErrInvalidWAV = errors.New("invalid WAV data")

// WAV is decoded 16-bit PCM audio. Multi-channel input is down-mixed to mono.
type WAV struct {
	SampleRate int
	Samples    []int16
}

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// EncodeWAV writes mono 16-bit samples as a canonical 44-byte-header WAV.
func EncodeWAV(w io.Writer, samples []int16, sampleRate int) error {
	dataSize := uint32(len(samples) * BytesPerSample)
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * BytesPerSample),
		BlockAlign:    BytesPerSample,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("unable to write WAV header: %w", err)
	}
	if _, err := w.Write(SamplesToBytes(samples)); err != nil {
		return fmt.Errorf("unable to write WAV data: %w", err)
	}
	return nil
}

// WriteWAVFile writes samples to path as a WAV file.
func WriteWAVFile(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create WAV file: %w", err)
	}
	if err := EncodeWAV(f, samples, sampleRate); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// DecodeWAV parses a 16-bit PCM WAV stream. Chunks other than "fmt " and
// "data" are skipped.
func DecodeWAV(r io.Reader) (*WAV, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if !bytes.Equal(riff[0:4], []byte("RIFF")) || !bytes.Equal(riff[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrInvalidWAV)
	}

	var (
		channels   uint16
		sampleRate uint32
		haveFormat bool
	)

	for {
		var id [4]byte
		var size uint32
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}

		switch string(id[:]) {
		case "fmt ":
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format := binary.LittleEndian.Uint16(buf[0:])
			channels = binary.LittleEndian.Uint16(buf[2:])
			sampleRate = binary.LittleEndian.Uint32(buf[4:])
			bits := binary.LittleEndian.Uint16(buf[14:])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("%w: only 16-bit PCM is supported (format %d, %d bits)", ErrInvalidWAV, format, bits)
			}
			if channels == 0 || sampleRate == 0 {
				return nil, fmt.Errorf("%w: zero channels or sample rate", ErrInvalidWAV)
			}
			haveFormat = true

		case "data":
			if !haveFormat {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
			// Tolerate truncated recordings
			data = data[:n-n%(BytesPerSample*int(channels))]
			samples, err := BytesToSamples(data)
			if err != nil {
				return nil, err
			}
			return &WAV{
				SampleRate: int(sampleRate),
				Samples:    downmix(samples, int(channels)),
			}, nil

		default:
			skip := int64(size + size%2) // chunks are word aligned
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
		}
	}
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open WAV file: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return DecodeWAV(f)
}

func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
