package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidWAV is returned when WAV data cannot be parsed.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// DecodeWAV parses RIFF/WAVE data into a buffer. Supported sample formats are
// 16-bit PCM and 32-bit IEEE float. The parser walks chunks, so extra chunks
// (LIST, fact, cue) before or after fmt/data are tolerated.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		format    Format
		haveFmt   bool
		pcm       []byte
		bitsPer   int
		wavFormat int
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrInvalidWAV, size)
			}
			wavFormat = int(binary.LittleEndian.Uint16(data[body : body+2]))
			channels := int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			rate := int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPer = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			switch {
			case wavFormat == wavFormatPCM && bitsPer == 16:
				format = Format{SampleRate: rate, Channels: channels, Encoding: EncodingInt16}
			case wavFormat == wavFormatIEEEFloat && bitsPer == 32:
				format = Format{SampleRate: rate, Channels: channels, Encoding: EncodingFloat32}
			default:
				return nil, fmt.Errorf("%w: unsupported sample format %d/%d-bit",
					ErrInvalidWAV, wavFormat, bitsPer)
			}
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		// chunks are word-aligned
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("%w: no fmt chunk", ErrInvalidWAV)
	}
	if pcm == nil {
		return nil, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: bad fmt chunk (%s)", ErrInvalidWAV, format)
	}
	return DecodePCM(pcm, format)
}

// DecodeWAVReader reads all of r and decodes it as WAV.
func DecodeWAVReader(r io.Reader) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	return DecodeWAV(data)
}

// EncodeWAV serialises the buffer's valid frames as a RIFF/WAVE file in the
// given encoding (16-bit PCM or 32-bit IEEE float).
func EncodeWAV(b *Buffer, enc Encoding) []byte {
	pcm := EncodePCM(b, enc)
	channels := len(b.channels)
	bps := enc.BytesPerSample()

	wavFormat := wavFormatPCM
	if enc == EncodingFloat32 {
		wavFormat = wavFormatIEEEFloat
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(b.sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(b.sampleRate*channels*bps)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bps))              // block align
	binary.Write(&buf, binary.LittleEndian, uint16(bps*8))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
