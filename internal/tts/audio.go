package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MIME types reported by Decode.
const (
	MIMEWAV     = "audio/wav"
	MIMEMP3     = "audio/mpeg"
	MIMEOgg     = "audio/ogg"
	MIMEUnknown = "application/octet-stream"
)

// ErrEmptyAudio is returned when a provider returns no audio bytes.
var ErrEmptyAudio = errors.New("empty audio")

// Audio is decoded audio with its probed duration. Duration is zero when
// the format carries no readable length.
type Audio struct {
	Data     []byte
	MIME     string
	Duration time.Duration
}

// Decode decodes base64 audio (optionally a data URL) and probes its
// format and duration.
func Decode(b64 string) (*Audio, error) {
	s := strings.TrimSpace(b64)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, ErrEmptyAudio
	}

	var data []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err = enc.DecodeString(s); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	a := &Audio{Data: data, MIME: MIMEUnknown}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		a.MIME = MIMEWAV
		a.Duration, _ = probeWAV(data)
	case bytes.HasPrefix(data, []byte("OggS")):
		a.MIME = MIMEOgg
	default:
		if d, ok := probeMP3(data); ok {
			a.MIME = MIMEMP3
			a.Duration = d
		}
	}
	return a, nil
}

// EstimateDuration approximates narration length from text when the audio
// carries no readable header. Assumes about 15 characters per second.
func EstimateDuration(text string) time.Duration {
	const charsPerSecond = 15
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return time.Duration(float64(n) / charsPerSecond * float64(time.Second))
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// probeWAV reads the byte rate from the fmt chunk and the data chunk size.
func probeWAV(b []byte) (time.Duration, bool) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return 0, false
	}

	var byteRate uint32
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if body+12 <= len(b) {
				byteRate = binary.LittleEndian.Uint32(b[body+8 : body+12])
			}
		case "data":
			if byteRate == 0 {
				return 0, false
			}
			// Streamed WAVs carry a placeholder size.
			size = min(size, len(b)-body)
			return seconds(float64(size) / float64(byteRate)), true
		}
		if size < 0 {
			return 0, false
		}
		off = body + size + size%2
	}
	return 0, false
}

var (
	mp3BitratesV1 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mp3BitratesV2 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
	mp3Rates      = map[byte][3]int{
		3: {44100, 48000, 32000}, // MPEG-1
		2: {22050, 24000, 16000}, // MPEG-2
		0: {11025, 12000, 8000},  // MPEG-2.5
	}
)

type mp3Frame struct {
	mpeg1      bool
	mono       bool
	bitrate    int // kbit/s
	sampleRate int
	samples    int
}

// parseMP3Header parses a Layer III frame header.
func parseMP3Header(h []byte) (mp3Frame, bool) {
	if len(h) < 4 || h[0] != 0xFF || h[1]&0xE0 != 0xE0 {
		return mp3Frame{}, false
	}
	version := (h[1] >> 3) & 0x3
	layer := (h[1] >> 1) & 0x3
	rates, ok := mp3Rates[version]
	if !ok || layer != 1 {
		return mp3Frame{}, false
	}
	brIdx := h[2] >> 4
	srIdx := (h[2] >> 2) & 0x3
	if srIdx == 3 {
		return mp3Frame{}, false
	}

	f := mp3Frame{
		mpeg1:      version == 3,
		mono:       h[3]>>6 == 3,
		sampleRate: rates[srIdx],
		samples:    576,
	}
	if f.mpeg1 {
		f.samples = 1152
		f.bitrate = mp3BitratesV1[brIdx]
	} else {
		f.bitrate = mp3BitratesV2[brIdx]
	}
	if f.bitrate == 0 {
		return mp3Frame{}, false
	}
	return f, true
}

// probeMP3 skips an ID3v2 tag, finds the first frame and uses its Xing/Info
// frame count when present, else assumes a constant bitrate.
func probeMP3(b []byte) (time.Duration, bool) {
	off := 0
	if len(b) >= 10 && string(b[:3]) == "ID3" {
		size := int(b[6]&0x7f)<<21 | int(b[7]&0x7f)<<14 | int(b[8]&0x7f)<<7 | int(b[9]&0x7f)
		off = 10 + size
		if b[5]&0x10 != 0 {
			off += 10
		}
	}

	for ; off+4 <= len(b); off++ {
		f, ok := parseMP3Header(b[off : off+4])
		if !ok {
			continue
		}
		if frames, ok := xingFrames(b[off:], f); ok {
			return seconds(float64(frames*f.samples) / float64(f.sampleRate)), true
		}
		return seconds(float64((len(b)-off)*8) / float64(f.bitrate*1000)), true
	}
	return 0, false
}

func xingFrames(frame []byte, f mp3Frame) (int, bool) {
	side := 32
	switch {
	case f.mpeg1 && f.mono:
		side = 17
	case !f.mpeg1 && f.mono:
		side = 9
	case !f.mpeg1:
		side = 17
	}
	pos := 4 + side
	if pos+12 > len(frame) {
		return 0, false
	}
	tag := string(frame[pos : pos+4])
	if tag != "Xing" && tag != "Info" {
		return 0, false
	}
	flags := binary.BigEndian.Uint32(frame[pos+4 : pos+8])
	if flags&0x1 == 0 {
		return 0, false
	}
	return int(binary.BigEndian.Uint32(frame[pos+8 : pos+12])), true
}

// EncodeWAV wraps 8-bit mono PCM samples in a WAV container.
func EncodeWAV(samples []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36+len(samples)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16))
	_ = binary.Write(&buf, le, uint16(1)) // PCM
	_ = binary.Write(&buf, le, uint16(1)) // mono
	_ = binary.Write(&buf, le, uint32(sampleRate))
	_ = binary.Write(&buf, le, uint32(sampleRate)) // byte rate
	_ = binary.Write(&buf, le, uint16(1))          // block align
	_ = binary.Write(&buf, le, uint16(8))          // bits per sample
	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(len(samples)))
	buf.Write(samples)
	return buf.Bytes()
}

// Silent is an offline Synthesizer producing silence as long as the text
// would take to read aloud. It stands in when no provider is configured.
type Silent struct {
	SampleRate int
}

// Compile-time check that Silent implements Synthesizer.
var _ Synthesizer = Silent{}

// Synthesize returns base64 WAV silence sized by EstimateDuration.
func (s Silent) Synthesize(ctx context.Context, text, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = 8000
	}
	n := int(EstimateDuration(text).Seconds() * float64(rate))
	samples := bytes.Repeat([]byte{0x80}, n)
	return base64.StdEncoding.EncodeToString(EncodeWAV(samples, rate)), nil
}
