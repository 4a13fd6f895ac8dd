package audio_utils

import (
	"encoding/binary"
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s16le(values ...int16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func TestWavRoundTripKeepsSamples(t *testing.T) {
	pcm := s16le(0, 1000, -1000, 32767, -32768, 42)

	wavData, err := ConvertTwoByteSamplesToWav(pcm, 16000, 1)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(wavData[:4]))

	buf, err := Decode(wavData, "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, 16000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, []int{0, 1000, -1000, 32767, -32768, 42}, buf.Data)
}

func TestConvertEmptyIsNoop(t *testing.T) {
	wavData, err := ConvertTwoByteSamplesToWav(nil, 16000, 1)
	require.NoError(t, err)
	assert.Empty(t, wavData)
}

func TestDecodeL16(t *testing.T) {
	buf, err := Decode(s16le(-2, 3), L16MimeType(8000, 1))
	require.NoError(t, err)
	assert.Equal(t, []int{-2, 3}, buf.Data)
	assert.Equal(t, 8000, buf.Format.SampleRate)
}

func TestParseL16MimeType(t *testing.T) {
	rate, channels, err := ParseL16MimeType("audio/L16;rate=44100;channels=2")
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), rate)
	assert.Equal(t, uint32(2), channels)

	_, channels, err = ParseL16MimeType("audio/L16; rate=16000")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), channels)

	_, _, err = ParseL16MimeType("audio/L16")
	assert.Error(t, err)
	_, _, err = ParseL16MimeType("audio/wav")
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownAndBroken(t *testing.T) {
	_, err := Decode([]byte{1, 2}, "audio/webm;codecs=opus")
	assert.Error(t, err)
	_, err = Decode([]byte("not a wav"), "audio/wav")
	assert.Error(t, err)
	_, err = Decode(nil, "")
	assert.Error(t, err)
}

func TestIntBufferToS16LEChannelMapping(t *testing.T) {
	mono := &audio.IntBuffer{Data: []int{100, -100}, Format: &audio.Format{NumChannels: 1}, SourceBitDepth: 16}
	assert.Equal(t, s16le(100, 100, -100, -100), IntBufferToS16LE(mono, 2))

	stereo := &audio.IntBuffer{Data: []int{100, 300, -50, -150}, Format: &audio.Format{NumChannels: 2}, SourceBitDepth: 16}
	assert.Equal(t, s16le(200, -100), IntBufferToS16LE(stereo, 1))
	assert.Equal(t, s16le(100, 300, -50, -150), IntBufferToS16LE(stereo, 2))

	deep := &audio.IntBuffer{Data: []int{1 << 20}, Format: &audio.Format{NumChannels: 1}, SourceBitDepth: 24}
	assert.Equal(t, s16le(1<<12), IntBufferToS16LE(deep, 1))
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "wav", FileExtension(L16MimeType(16000, 1)))
	assert.Equal(t, "webm", FileExtension("audio/webm;codecs=opus"))
	assert.Equal(t, "mp3", FileExtension("audio/mpeg"))
	assert.Equal(t, "bin", FileExtension("Undefined: No recording data yet."))
}

func TestResample(t *testing.T) {
	buf := &audio.IntBuffer{Data: []int{1, 2, 3, 4}, Format: &audio.Format{SampleRate: 8000, NumChannels: 1}, SourceBitDepth: 16}

	up := Resample(buf, 16000)
	assert.Equal(t, 16000, up.Format.SampleRate)
	assert.Equal(t, []int{1, 1, 2, 2, 3, 3, 4, 4}, up.Data)

	down := Resample(buf, 4000)
	assert.Equal(t, []int{1, 3}, down.Data)

	assert.Same(t, buf, Resample(buf, 8000))
}
