// Package takes persists recorded takes so they survive the session.
package takes

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/petrzlen/memo-golang/pkg/audio_utils"
	"github.com/petrzlen/memo-golang/pkg/models"
)

// Take is an artifact which made it to the store, later enriched with its transcript.
type Take struct {
	Artifact   models.AudioArtifact
	Path       string
	Transcript string
	Trace      models.Trace
}

type Store struct {
	fs  afero.Fs
	dir string
}

func NewStore(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "cannot create takes dir %s", dir)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// Encode returns what gets written for the artifact, raw PCM is wrapped into a wav container.
func Encode(artifact models.AudioArtifact) (data []byte, fileExtension string, err error) {
	fileExtension = audio_utils.FileExtension(artifact.MimeType)
	rate, channels, parseErr := audio_utils.ParseL16MimeType(artifact.MimeType)
	if parseErr != nil {
		return artifact.Bytes(), fileExtension, nil
	}
	data, err = audio_utils.ConvertTwoByteSamplesToWav(artifact.Bytes(), rate, channels)
	if err != nil {
		return nil, "", errors.Wrapf(err, "cannot convert take %s to wav", artifact.ID)
	}
	return data, "wav", nil
}

// Save writes the take as <id>.<ext> and returns its path.
func (s *Store) Save(artifact models.AudioArtifact) (string, error) {
	if artifact.Len() == 0 {
		return "", errors.Errorf("refusing to save empty take %s", artifact.ID)
	}
	data, fileExtension, err := Encode(artifact)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s.%s", artifact.ID, fileExtension))
	if err := afero.WriteFile(s.fs, path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "cannot write take %s", path)
	}
	log.Debug().Str("path", path).Int("size", len(data)).Str("mime_type", artifact.MimeType).Msg("takes: saved")
	return path, nil
}

// SaveTranscript puts the transcript next to the audio file.
func (s *Store) SaveTranscript(take Take) (string, error) {
	path := strings.TrimSuffix(take.Path, filepath.Ext(take.Path)) + ".txt"
	if err := afero.WriteFile(s.fs, path, []byte(take.Transcript), 0644); err != nil {
		return "", errors.Wrapf(err, "cannot write transcript %s", path)
	}
	return path, nil
}

// List returns stored audio files, oldest first.
func (s *Store) List() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list takes dir %s", s.dir)
	}
	var files []os.FileInfo
	for _, info := range infos {
		if info.IsDir() || filepath.Ext(info.Name()) == ".txt" {
			continue
		}
		files = append(files, info)
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime().Before(files[j].ModTime())
	})
	result := make([]string, 0, len(files))
	for _, info := range files {
		result = append(result, filepath.Join(s.dir, info.Name()))
	}
	return result, nil
}

func (s *Store) Read(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

// SaveTakesRoutine is intended to run for the entire lifespan of a session, it closes out once in is drained.
func SaveTakesRoutine(store *Store, in <-chan models.AudioArtifact, out chan<- Take) {
	log.Info().Msgf("SaveTakesRoutine started")
	defer close(out)

	for artifact := range in {
		trace := models.NewTrace("session")
		trace.CreatedAt = artifact.CreatedAt
		trace.ReceivedAt = time.Now()

		path, err := store.Save(artifact)
		if err != nil {
			log.Error().Err(err).Str("artifact_id", artifact.ID.String()).Msg("cannot save take, skipping")
			continue
		}
		trace.ProcessedAt = time.Now()
		trace.Processor = "takes_store"
		out <- Take{Artifact: artifact, Path: path, Trace: trace}
	}
	log.Info().Msgf("SaveTakesRoutine finished")
}
