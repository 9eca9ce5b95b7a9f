package tts

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// mp3Frame128 is an MPEG-1 Layer III, 128 kbit/s, 44.1 kHz stereo header.
var mp3Frame128 = []byte{0xFF, 0xFB, 0x90, 0x00}

func TestDecode_WAV(t *testing.T) {
	wav := EncodeWAV(make([]byte, 8000*3), 8000)

	a, err := Decode(b64(wav))
	require.NoError(t, err)

	assert.Equal(t, MIMEWAV, a.MIME)
	assert.Equal(t, 3*time.Second, a.Duration)
	assert.Equal(t, wav, a.Data)
}

func TestDecode_DataURLAndWhitespace(t *testing.T) {
	wav := EncodeWAV(make([]byte, 4000), 8000)
	enc := b64(wav)
	in := "data:audio/wav;base64," + enc[:10] + "\n" + enc[10:]

	a, err := Decode(in)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, a.Duration)
}

func TestDecode_MP3ConstantBitrate(t *testing.T) {
	data := make([]byte, 16000)
	copy(data, mp3Frame128)

	a, err := Decode(b64(data))
	require.NoError(t, err)

	assert.Equal(t, MIMEMP3, a.MIME)
	assert.Equal(t, time.Second, a.Duration)
}

func TestDecode_MP3XingAfterID3(t *testing.T) {
	id3 := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 10}
	id3 = append(id3, make([]byte, 10)...)

	frame := make([]byte, 417)
	copy(frame, mp3Frame128)
	copy(frame[36:], "Xing")
	binary.BigEndian.PutUint32(frame[40:], 0x1)
	binary.BigEndian.PutUint32(frame[44:], 100)

	a, err := Decode(b64(append(id3, frame...)))
	require.NoError(t, err)

	secs := float64(100*1152) / 44100
	want := time.Duration(secs * float64(time.Second))
	assert.Equal(t, MIMEMP3, a.MIME)
	assert.InDelta(t, float64(want), float64(a.Duration), float64(time.Millisecond))
}

func TestDecode_UnknownAndInvalid(t *testing.T) {
	a, err := Decode(b64([]byte("OggS\x00\x02")))
	require.NoError(t, err)
	assert.Equal(t, MIMEOgg, a.MIME)
	assert.Zero(t, a.Duration)

	_, err = Decode("   ")
	assert.ErrorIs(t, err, ErrEmptyAudio)

	_, err = Decode("!!not base64!!")
	assert.Error(t, err)
}

func TestSilent_Synthesize(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz1234" // 2 s at 15 chars/s

	out, err := Silent{}.Synthesize(context.Background(), text, "any")
	require.NoError(t, err)

	a, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, MIMEWAV, a.MIME)
	assert.Equal(t, 2*time.Second, a.Duration)
	assert.Equal(t, EstimateDuration(text), a.Duration)
}

func TestEstimateDuration(t *testing.T) {
	assert.Zero(t, EstimateDuration(""))
	assert.Equal(t, 2*time.Second, EstimateDuration("abcdefghijklmnopqrstuvwxyz1234"))
}
