package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// Format describes interleaved PCM samples
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is used for the built-in tone when no output is open yet
var DefaultFormat = Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

// Sound is a decoded clip ready for an Output
type Sound struct {
	Name   string
	Format Format
	PCM    []byte
}

var errNotWAV = errors.New("not a RIFF/WAVE file")

// parseWAV parses a PCM16 WAV file and returns its format and sample data
func parseWAV(data []byte) (Format, []byte, error) {
	reader := bytes.NewReader(data)

	header := make([]byte, 12)
	if _, err := io.ReadFull(reader, header); err != nil {
		return Format{}, nil, errNotWAV
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Format{}, nil, errNotWAV
	}

	var format Format
	var audioFormat uint16
	var haveFormat bool

	for {
		chunkID := make([]byte, 4)
		if _, err := io.ReadFull(reader, chunkID); err != nil {
			return Format{}, nil, fmt.Errorf("no data chunk")
		}

		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return Format{}, nil, err
		}

		switch string(chunkID) {
		case "fmt ":
			if chunkSize < 16 {
				return Format{}, nil, fmt.Errorf("short fmt chunk")
			}
			var fmtChunk struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(reader, binary.LittleEndian, &fmtChunk); err != nil {
				return Format{}, nil, err
			}
			audioFormat = fmtChunk.AudioFormat
			format = Format{
				SampleRate: int(fmtChunk.SampleRate),
				Channels:   int(fmtChunk.NumChannels),
				BitDepth:   int(fmtChunk.BitsPerSample),
			}
			haveFormat = true

			// Skip any extra format bytes
			if _, err := reader.Seek(int64(chunkSize-16), io.SeekCurrent); err != nil {
				return Format{}, nil, err
			}
		case "data":
			if !haveFormat {
				return Format{}, nil, fmt.Errorf("data chunk before fmt chunk")
			}
			if audioFormat != 1 || format.BitDepth != 16 {
				return Format{}, nil, fmt.Errorf("unsupported encoding %d/%d-bit, want PCM16", audioFormat, format.BitDepth)
			}
			if format.Channels < 1 || format.Channels > 2 || format.SampleRate <= 0 {
				return Format{}, nil, fmt.Errorf("unsupported layout %d channels at %d Hz", format.Channels, format.SampleRate)
			}

			size := int(chunkSize)
			if remaining := reader.Len(); size > remaining {
				size = remaining
			}
			pcm := make([]byte, size)
			if _, err := io.ReadFull(reader, pcm); err != nil {
				return Format{}, nil, err
			}
			return format, pcm, nil
		default:
			// Skip unknown chunk, chunks are word aligned
			skip := int64(chunkSize) + int64(chunkSize&1)
			if _, err := reader.Seek(skip, io.SeekCurrent); err != nil {
				return Format{}, nil, err
			}
		}
	}
}

// Tone synthesizes a PCM16 sine beep in format
func Tone(format Format, freq float64, length time.Duration) Sound {
	frames := int(float64(format.SampleRate) * length.Seconds())
	pcm := make([]byte, 0, frames*format.Channels*2)

	fade := format.SampleRate / 50 // 20ms ramps avoid clicks
	for i := 0; i < frames; i++ {
		amp := 0.3
		if i < fade {
			amp *= float64(i) / float64(fade)
		} else if frames-i < fade {
			amp *= float64(frames-i) / float64(fade)
		}
		sample := int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(format.SampleRate)))
		for c := 0; c < format.Channels; c++ {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(sample))
		}
	}

	return Sound{Name: "tone", Format: format, PCM: pcm}
}
