// Package hostbridge translates host JSON messages into lifecycle signals and session gestures,
// and reports the session back as snapshots.
package hostbridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/petrzlen/memo-golang/pkg/lifecycle"
	"github.com/petrzlen/memo-golang/pkg/models"
	"github.com/petrzlen/memo-golang/pkg/session"
	"github.com/petrzlen/memo-golang/pkg/settings"
)

const writerBufferSize = 32

const (
	TypeSignal   = "signal"
	TypeGesture  = "gesture"
	TypeSetting  = "setting"
	TypeSnapshot = "snapshot"
	TypeError    = "error"

	GestureRecord = "record"
	GesturePlay   = "play"
)

// Message is what the host sends, e.g. {"type":"gesture","name":"record"}.
type Message struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// Snapshot is what the host receives after every state change and on errors.
type Snapshot struct {
	Type      string `json:"type"`
	Recording string `json:"recording"`
	Playing   string `json:"playing"`
	Indicator string `json:"indicator"`
	Error     string `json:"error,omitempty"`
}

type Controller interface {
	Record(ctx context.Context) error
	Play(ctx context.Context) error
	Indicator() session.Indicator
}

type RecordingSource interface {
	State() models.RecordingState
	OnStateChange(fn func(models.RecordingState)) (unsubscribe func())
}

type PlaybackSource interface {
	State() models.PlayingState
	OnStateChange(fn func(models.PlayingState)) (unsubscribe func())
}

// Bridge implements networking.WebsocketMessageHandler for one host connection.
type Bridge struct {
	signals    chan<- lifecycle.Signal
	controller Controller
	recorder   RecordingSource
	player     PlaybackSource
	registry   *settings.Registry

	reader chan []byte

	mutex  sync.Mutex // Protects writer and closed
	writer chan []byte
	closed bool

	// Record taps toggle, so they run one after another in arrival order.
	records  chan struct{}
	gestures sync.WaitGroup
}

func NewBridge(signals chan<- lifecycle.Signal, controller Controller, recorder RecordingSource, player PlaybackSource, registry *settings.Registry) *Bridge {
	return &Bridge{
		signals:    signals,
		controller: controller,
		recorder:   recorder,
		player:     player,
		registry:   registry,
		reader:     make(chan []byte),
		writer:     make(chan []byte, writerBufferSize),
		records:    make(chan struct{}, writerBufferSize),
	}
}

func (b *Bridge) GetReader() chan<- []byte {
	return b.reader
}

func (b *Bridge) GetWriter() <-chan []byte {
	return b.writer
}

// Run handles messages until the reader is closed, then waits for in-flight gestures and closes the writer.
func (b *Bridge) Run(ctx context.Context) {
	log.Info().Msg("hostbridge: started")
	unsubscribeRecorder := b.recorder.OnStateChange(func(models.RecordingState) { b.pushSnapshot("") })
	unsubscribePlayer := b.player.OnStateChange(func(models.PlayingState) { b.pushSnapshot("") })
	b.gestures.Add(1)
	go b.recordRoutine(ctx)
	defer func() {
		unsubscribeRecorder()
		unsubscribePlayer()
		close(b.records)
		b.gestures.Wait()
		b.closeWriter()
		log.Info().Msg("hostbridge: finished")
	}()

	b.pushSnapshot("")
	for msg := range b.reader {
		if err := b.handle(ctx, msg); err != nil {
			log.Warn().Err(err).Str("message", string(msg)).Msg("hostbridge: cannot handle message")
			b.pushError(err)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errors.Wrap(err, "cannot parse message")
	}

	switch msg.Type {
	case TypeSignal:
		signal := lifecycle.Signal(msg.Name)
		if _, ok := lifecycle.IntentFor(signal); !ok {
			return errors.Errorf("unknown signal %q", msg.Name)
		}
		select {
		case b.signals <- signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	case TypeGesture:
		switch msg.Name {
		case GestureRecord:
			select {
			case b.records <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case GesturePlay:
			// Play blocks until playback ends, the reader must stay free for the toggling gesture.
			b.gestures.Add(1)
			go func() {
				defer b.gestures.Done()
				b.runGesture(ctx, GesturePlay, b.controller.Play)
			}()
		default:
			return errors.Errorf("unknown gesture %q", msg.Name)
		}
	case TypeSetting:
		if b.registry == nil {
			return errors.New("settings are not available")
		}
		if err := b.registry.SetString(msg.Name, msg.Value); err != nil {
			return err
		}
	case TypeSnapshot:
		b.pushSnapshot("")
	default:
		return errors.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

func (b *Bridge) recordRoutine(ctx context.Context) {
	defer b.gestures.Done()
	for range b.records {
		b.runGesture(ctx, GestureRecord, b.controller.Record)
	}
}

func (b *Bridge) runGesture(ctx context.Context, name string, gesture func(context.Context) error) {
	if err := gesture(ctx); err != nil {
		log.Error().Err(err).Str("gesture", name).Msg("hostbridge: gesture failed")
		b.pushError(err)
	}
}

func (b *Bridge) snapshot(errMsg string) Snapshot {
	snapshotType := TypeSnapshot
	if errMsg != "" {
		snapshotType = TypeError
	}
	return Snapshot{
		Type:      snapshotType,
		Recording: b.recorder.State().String(),
		Playing:   b.player.State().String(),
		Indicator: b.controller.Indicator().String(),
		Error:     errMsg,
	}
}

func (b *Bridge) pushError(err error) {
	b.pushSnapshot(err.Error())
}

func (b *Bridge) pushSnapshot(errMsg string) {
	payload, err := json.Marshal(b.snapshot(errMsg))
	if err != nil {
		log.Error().Err(err).Msg("hostbridge: cannot marshal snapshot")
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return
	}
	select {
	case b.writer <- payload:
	default:
		log.Warn().Msg("hostbridge: could NOT send snapshot cause writer full")
	}
}

func (b *Bridge) closeWriter() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if !b.closed {
		b.closed = true
		close(b.writer)
	}
}
