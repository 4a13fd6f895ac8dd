// Package app wires the coordinators, the lifecycle monitor, the session and the takes pipeline
// the same way for every host binary.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/petrzlen/memo-golang/internal/config"
	"github.com/petrzlen/memo-golang/pkg/audioio"
	"github.com/petrzlen/memo-golang/pkg/lifecycle"
	"github.com/petrzlen/memo-golang/pkg/models"
	"github.com/petrzlen/memo-golang/pkg/playback"
	"github.com/petrzlen/memo-golang/pkg/recording"
	"github.com/petrzlen/memo-golang/pkg/session"
	"github.com/petrzlen/memo-golang/pkg/settings"
	"github.com/petrzlen/memo-golang/pkg/takes"
	"github.com/petrzlen/memo-golang/pkg/transcriber"
)

const signalsBufferSize = 8

type App struct {
	Settings *settings.Registry
	Recorder *recording.Coordinator
	Player   *playback.Coordinator
	Monitor  *lifecycle.Monitor
	Session  *session.Controller
	Store    *takes.Store
	// Signals feeds the lifecycle monitor, hosts send focus and visibility changes here.
	Signals chan lifecycle.Signal

	transcriber       transcriber.Transcriber
	unbindLogLevel    func()
	processedTakes    chan takes.Take
	shutdownOnce      sync.Once
	shutdownCompleted chan struct{}
}

// New wires everything up, tr is optional and enables transcription of takes.
func New(cfg *config.AppConfig, capture audioio.CaptureDevice, speakers audioio.PlaybackDevice, fs afero.Fs, tr transcriber.Transcriber) (*App, error) {
	store, err := takes.NewStore(fs, cfg.TakesDir)
	if err != nil {
		return nil, err
	}

	registry := settings.NewDefaultRegistry()
	if err := registry.Set(settings.Debugging, settings.IntValue(cfg.Debugging)); err != nil {
		return nil, err
	}

	recorder := recording.NewCoordinator(capture, recording.WithConstraints(cfg.Constraints()))
	player := playback.NewCoordinator(speakers)
	a := &App{
		Settings:          registry,
		Recorder:          recorder,
		Player:            player,
		Monitor:           lifecycle.NewMonitor(recorder),
		Session:           session.NewController(recorder, player),
		Store:             store,
		Signals:           make(chan lifecycle.Signal, signalsBufferSize),
		transcriber:       tr,
		processedTakes:    make(chan takes.Take, session.TakesBufferSize),
		shutdownCompleted: make(chan struct{}),
	}
	a.unbindLogLevel = settings.BindLogLevel(registry)

	recorder.OnStateChange(func(state models.RecordingState) {
		log.Info().Str("recording_state", state.String()).Msg("app: recording state changed")
	})
	player.OnStateChange(func(state models.PlayingState) {
		log.Info().Str("playing_state", state.String()).Msg("app: playing state changed")
	})
	return a, nil
}

// ProcessedTakes yields every take once saved (and transcribed when enabled). Closed after shutdown.
func (a *App) ProcessedTakes() <-chan takes.Take {
	return a.processedTakes
}

// Run blocks until ctx is done, then shuts the session down and drains the takes pipeline.
func (a *App) Run(ctx context.Context) {
	log.Info().Msg("app: running")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Monitor.Run(ctx, a.Signals)
	}()
	go func() {
		defer wg.Done()
		a.takesPipeline(context.WithoutCancel(ctx))
	}()

	<-ctx.Done()
	a.Shutdown()
	wg.Wait()
	close(a.shutdownCompleted)
	log.Info().Msg("app: stopped")
}

// Done is closed once Run returned.
func (a *App) Done() <-chan struct{} {
	return a.shutdownCompleted
}

// Shutdown releases the microphone, stops playback and closes the takes channel.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Recorder.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("app: cannot stop recording")
		}
		if err := a.Player.Cancel(); err != nil {
			log.Error().Err(err).Msg("app: cannot cancel playback")
		}
		a.Session.Close()
		a.unbindLogLevel()
	})
}

func (a *App) takesPipeline(ctx context.Context) {
	defer close(a.processedTakes)

	saved := make(chan takes.Take, session.TakesBufferSize)
	go takes.SaveTakesRoutine(a.Store, a.Session.Takes(), saved)

	result := (<-chan takes.Take)(saved)
	if a.transcriber != nil {
		transcribed := make(chan takes.Take, session.TakesBufferSize)
		go transcriber.TranscribeTakesRoutine(ctx, a.transcriber, a.Store, saved, transcribed)
		result = transcribed
	}

	for take := range result {
		log.Info().Str("path", take.Path).Str("transcript", take.Transcript).Int("size", take.Artifact.Len()).Msg("app: take processed")
		select {
		case a.processedTakes <- take:
		default:
			log.Debug().Str("path", take.Path).Msg("app: nobody listens for processed takes")
		}
	}
}
