package audio_utils

import (
	"encoding/binary"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}

// ConvertTwoByteSamplesToWav assumes S16LE encoding (or two bytes per value)
func ConvertTwoByteSamplesToWav(byteData []byte, sampleRate uint32, numChannels uint32) (result []byte, err error) {
	inputBuffer := &audio.IntBuffer{
		Data: twoByteDataToIntSlice(byteData),
		Format: &audio.Format{
			SampleRate:  int(sampleRate),
			NumChannels: int(numChannels),
		},
		SourceBitDepth: 16,
	}

	audioFormat := 1
	return EncodeToWav(inputBuffer, 16, audioFormat)
}

// EncodeToWav goes through an in-memory file, the wav encoder needs an io.WriteSeeker to finalize headers.
func EncodeToWav(inputBuffer *audio.IntBuffer, outputBitDepth int, audioFormat int) (result []byte, err error) {
	if len(inputBuffer.Data) == 0 {
		return // Nothing to do
	}

	fs := afero.NewMemMapFs()
	inMemoryFilename := "in-memory-output.wav"
	inMemoryFile, err := fs.Create(inMemoryFilename)
	if err != nil {
		err = errors.Wrap(err, "cannot create in-memory wav file")
		return
	}
	// We will call Close ourselves.

	iSampleRate := inputBuffer.Format.SampleRate
	iNumChannels := inputBuffer.Format.NumChannels
	wavEncoder := wav.NewEncoder(inMemoryFile, iSampleRate, outputBitDepth, iNumChannels, audioFormat)
	log.Trace().Int("int_data_length", len(inputBuffer.Data)).Int("sample_rate", iSampleRate).Int("source_bit_depth", inputBuffer.SourceBitDepth).Int("output_bit_depth", outputBitDepth).Int("num_channels", iNumChannels).Int("audio_format", audioFormat).Msg("encoding int stream output as a wav")
	if err = wavEncoder.Write(inputBuffer); err != nil {
		err = errors.Wrap(err, "cannot encode byte output as wav")
		return
	}

	// Close the wavEncoder to flush any remaining data and finalize the WAV file
	if err = wavEncoder.Close(); err != nil {
		err = errors.Wrap(err, "cannot finish wav encoding")
		return
	}

	// We close and re-open the file so we can properly read-all of its contents.
	dbg(inMemoryFile.Close())
	inMemoryFileReopen, err := fs.Open(inMemoryFilename)
	if err != nil {
		err = errors.Wrap(err, "cannot reopen in-memory wav file")
		return
	}
	result, err = io.ReadAll(inMemoryFileReopen)
	if err == nil && len(result) == 0 {
		err = errors.New("wav output is empty when input was not")
		return
	}
	return
}

// IntBufferToS16LE renders buf as interleaved S16LE with numChannels channels.
// Mono is duplicated into every channel, more channels than requested are averaged down.
func IntBufferToS16LE(buf *audio.IntBuffer, numChannels int) []byte {
	srcChannels := buf.Format.NumChannels
	if srcChannels <= 0 {
		srcChannels = 1
	}
	shift := 0
	if buf.SourceBitDepth > 16 {
		shift = buf.SourceBitDepth - 16
	}

	frames := len(buf.Data) / srcChannels
	out := make([]byte, 0, frames*numChannels*2)
	sample := make([]byte, 2)
	for f := 0; f < frames; f++ {
		frame := buf.Data[f*srcChannels : (f+1)*srcChannels]
		for ch := 0; ch < numChannels; ch++ {
			var value int
			switch {
			case srcChannels == numChannels:
				value = frame[ch]
			case srcChannels == 1:
				value = frame[0]
			default:
				sum := 0
				for _, v := range frame {
					sum += v
				}
				value = sum / srcChannels
			}
			value >>= shift
			binary.LittleEndian.PutUint16(sample, uint16(int16(clamp16(value))))
			out = append(out, sample...)
		}
	}
	return out
}

func clamp16(v int) int {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

func twoByteDataToIntSlice(audioData []byte) []int {
	intData := make([]int, len(audioData)/2)
	for i := 0; i+1 < len(audioData); i += 2 {
		// S16LE is signed
		intData[i/2] = int(int16(binary.LittleEndian.Uint16(audioData[i : i+2])))
	}
	return intData
}

// Resample does nearest-neighbour rate conversion, good enough for voice memos.
func Resample(buf *audio.IntBuffer, sampleRate int) *audio.IntBuffer {
	srcRate := buf.Format.SampleRate
	numChannels := buf.Format.NumChannels
	if srcRate <= 0 || sampleRate <= 0 || srcRate == sampleRate || numChannels <= 0 {
		return buf
	}
	srcFrames := len(buf.Data) / numChannels
	dstFrames := int(int64(srcFrames) * int64(sampleRate) / int64(srcRate))
	data := make([]int, 0, dstFrames*numChannels)
	for f := 0; f < dstFrames; f++ {
		src := int(int64(f) * int64(srcRate) / int64(sampleRate))
		data = append(data, buf.Data[src*numChannels:(src+1)*numChannels]...)
	}
	log.Trace().Int("from_rate", srcRate).Int("to_rate", sampleRate).Int("frames", dstFrames).Msg("resampled int buffer")
	return &audio.IntBuffer{
		Data: data,
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: numChannels,
		},
		SourceBitDepth: buf.SourceBitDepth,
	}
}
