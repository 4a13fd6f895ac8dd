package audio_utils

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/pkg/errors"
)

// L16MimeType describes raw S16 PCM the way RFC 2586 does.
func L16MimeType(sampleRate uint32, numChannels uint32) string {
	return fmt.Sprintf("audio/L16;rate=%d;channels=%d", sampleRate, numChannels)
}

// ParseL16MimeType extracts rate and channels, channels defaults to 1.
func ParseL16MimeType(mimeType string) (sampleRate uint32, numChannels uint32, err error) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "cannot parse mime type %q", mimeType)
	}
	if !strings.EqualFold(mediaType, "audio/L16") {
		return 0, 0, errors.Errorf("not raw pcm: %s", mediaType)
	}
	rate, err := strconv.ParseUint(params["rate"], 10, 32)
	if err != nil {
		return 0, 0, errors.Wrap(err, "audio/L16 needs a rate")
	}
	numChannels = 1
	if c, ok := params["channels"]; ok {
		parsed, err := strconv.ParseUint(c, 10, 32)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "invalid channels %q", c)
		}
		numChannels = uint32(parsed)
	}
	return uint32(rate), numChannels, nil
}

// FileExtension picks the extension used for takes on disk and for the transcription upload.
func FileExtension(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "bin"
	}
	switch strings.ToLower(mediaType) {
	case "audio/l16", "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	default:
		return "bin"
	}
}

// Decode turns an encoded payload into samples according to its mime type.
func Decode(data []byte, mimeType string) (*audio.IntBuffer, error) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse mime type %q", mimeType)
	}
	switch strings.ToLower(mediaType) {
	case "audio/l16":
		rate, channels, err := ParseL16MimeType(mimeType)
		if err != nil {
			return nil, err
		}
		return DecodeFromL16(data, rate, channels), nil
	case "audio/wav", "audio/x-wav", "audio/wave":
		return DecodeFromWav(data)
	case "audio/mpeg", "audio/mp3":
		return DecodeFromMp3(data)
	case "audio/flac", "audio/x-flac":
		return DecodeFromFlac(data)
	default:
		return nil, errors.Errorf("unsupported mime type %s", mediaType)
	}
}

func DecodeFromL16(data []byte, sampleRate uint32, numChannels uint32) *audio.IntBuffer {
	return &audio.IntBuffer{
		Data: twoByteDataToIntSlice(data),
		Format: &audio.Format{
			SampleRate:  int(sampleRate),
			NumChannels: int(numChannels),
		},
		SourceBitDepth: 16,
	}
}

func DecodeFromWav(data []byte) (*audio.IntBuffer, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode wav")
	}
	return buf, nil
}

// DecodeFromMp3 go-mp3 always produces S16LE stereo.
func DecodeFromMp3(data []byte) (*audio.IntBuffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode mp3")
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "cannot read mp3 stream")
	}
	return &audio.IntBuffer{
		Data: twoByteDataToIntSlice(pcm),
		Format: &audio.Format{
			SampleRate:  decoder.SampleRate(),
			NumChannels: 2,
		},
		SourceBitDepth: 16,
	}, nil
}

func DecodeFromFlac(data []byte) (*audio.IntBuffer, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode flac")
	}
	defer stream.Close()

	numChannels := int(stream.Info.NChannels)
	result := &audio.IntBuffer{
		Format: &audio.Format{
			SampleRate:  int(stream.Info.SampleRate),
			NumChannels: numChannels,
		},
		SourceBitDepth: int(stream.Info.BitsPerSample),
	}
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "cannot parse flac frame")
		}
		for i := 0; i < frame.Subframes[0].NSamples; i++ {
			for ch := 0; ch < numChannels; ch++ {
				result.Data = append(result.Data, int(frame.Subframes[ch].Samples[i]))
			}
		}
	}
	return result, nil
}
