package transcriber

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/petrzlen/memo-golang/pkg/models"
	"github.com/petrzlen/memo-golang/pkg/takes"
)

// memoTranscript tracks what was said so far.
// A take holds everything recorded since the last stop, so a take which extends the previous one
// supersedes its transcript, and one which does not starts a new recording.
type memoTranscript struct {
	finished []string
	current  string
	previous []byte
}

// extends reports whether artifact continues the previous take, and remembers it for next time.
func (m *memoTranscript) extends(artifact models.AudioArtifact) bool {
	data := artifact.Bytes()
	continued := m.previous != nil && len(data) >= len(m.previous) && bytes.HasPrefix(data, m.previous)
	m.previous = data
	return continued
}

func (m *memoTranscript) update(transcript string, continued bool) {
	if !continued && m.current != "" {
		m.finished = append(m.finished, m.current)
	}
	m.current = transcript
}

// prompt is what came before the take being transcribed.
func (m *memoTranscript) prompt() string {
	return strings.Join(m.finished, " ")
}

func (m *memoTranscript) String() string {
	parts := m.finished
	if m.current != "" {
		parts = append(append([]string(nil), parts...), m.current)
	}
	return strings.Join(parts, " ")
}

// TranscribeTakesRoutine is intended to run for the entire lifespan of a session.
// Each take is transcribed with the earlier recordings as prompt, and written next to the audio when store is set.
// It closes out once in is drained and returns everything transcribed.
func TranscribeTakesRoutine(ctx context.Context, transcriber Transcriber, store *takes.Store, in <-chan takes.Take, out chan<- takes.Take) string {
	log.Info().Msgf("TranscribeTakesRoutine started")
	defer close(out)

	var memo memoTranscript
	for take := range in {
		take.Trace.ReceivedAt = time.Now()
		continued := memo.extends(take.Artifact)

		data, fileExtension, err := takes.Encode(take.Artifact)
		if err != nil {
			log.Error().Err(err).Str("artifact_id", take.Artifact.ID.String()).Msg("cannot encode take, skipping")
			continue
		}
		prompt := memo.prompt()
		transcript, err := transcriber.SendAudio(ctx, bytes.NewReader(data), fileExtension, prompt)
		if err != nil {
			log.Error().Err(err).Int("take_byte_length", len(data)).Msg("cannot transcribe take, skipping")
			continue
		}
		memo.update(transcript, continued)
		log.Debug().Bool("continued", continued).Str("transcript", transcript).Msg("take transcribed")

		take.Transcript = transcript
		take.Trace.ProcessedAt = time.Now()
		take.Trace.Processor = "transcribe_open_ai_whisper"
		take.Trace.Log()

		if store != nil && take.Path != "" {
			if path, err := store.SaveTranscript(take); err != nil {
				log.Error().Err(err).Msg("cannot save transcript")
			} else {
				log.Debug().Str("path", path).Msg("transcript saved")
			}
		}
		out <- take
	}

	finalTranscript := memo.String()
	log.Info().Msgf("TranscribeTakesRoutine ended with finalTranscript %s", finalTranscript)
	return finalTranscript
}
