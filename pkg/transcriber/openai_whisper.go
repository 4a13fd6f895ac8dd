package transcriber

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// maxPromptWords keeps the prompt under the 244 tokens Whisper looks at, only the tail is useful anyway.
const maxPromptWords = 150

type openAIWhisper struct {
	client   *openai.Client
	language string
}

// NewOpenAIWhisper transcribes with whisper-1, language is an ISO-639-1 hint and may be empty.
func NewOpenAIWhisper(client *openai.Client, language string) Transcriber {
	return &openAIWhisper{
		client:   client,
		language: language,
	}
}

func (o *openAIWhisper) SendAudio(ctx context.Context, input io.Reader, fileExtension string, prompt string) (result string, err error) {
	startTime := time.Now()
	req := openai.AudioRequest{
		Model:  openai.Whisper1,
		Reader: input,
		// Only the extension matters, it tells the API how to decode the upload.
		FilePath: fmt.Sprintf("take.%s", fileExtension),
		// NOTE: Giving the model the previous words improves accuracy.
		Prompt:   lastWords(prompt, maxPromptWords),
		Language: o.language,
	}

	log.Debug().Str("model", req.Model).Str("file_path", req.FilePath).Str("language", o.language).Msg("create transcription request")
	resp, err := o.client.CreateTranscription(ctx, req)
	if err != nil {
		err = errors.Wrap(err, "cannot create transcription")
		return
	}

	result = cleanTranscript(resp.Text)
	if result != resp.Text {
		log.Info().Str("original_text", resp.Text).Str("processed_text", result).Msg("transcription post-processing removed some text")
	}

	log.Debug().Str("transcription", result).Dur("time_elapsed", time.Since(startTime)).Msg("received transcription")
	return
}

// Silence tends to come back as broadcaster sign-offs, e.g. "MBC 뉴스 이덕영입니다."
var silenceHallucinations = regexp.MustCompile(`MBC 뉴스[^.]*\.?|MBC`)
var repeatedSpaces = regexp.MustCompile(`\s+`)

func cleanTranscript(text string) string {
	text = silenceHallucinations.ReplaceAllString(text, "")
	return strings.TrimSpace(repeatedSpaces.ReplaceAllString(text, " "))
}

func lastWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[len(words)-n:], " ")
}
