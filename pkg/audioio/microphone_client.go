// TLDR; Go itself cannot work with Microphone's well
// BUT it can bind with C-libraries which can do this with a bit of black-magic.
package audioio

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/petrzlen/memo-golang/pkg/audio_utils"
	"github.com/petrzlen/memo-golang/pkg/models"
)

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}

// chunkBufferSize is how many chunks can wait for the consumer before the audio callback blocks.
const chunkBufferSize = 16

type microphone struct{}

// NewMicrophone returns a CaptureDevice backed by miniaudio.
// Nothing is touched until Acquire, so creating it never prompts or fails.
func NewMicrophone() CaptureDevice {
	return &microphone{}
}

// Acquire inits a malgo context and a capture device, but does not start it.
// Mostly from https://github.com/gen2brain/malgo/blob/master/_examples/capture/capture.go
func (m *microphone) Acquire(ctx context.Context, constraints Constraints) (CaptureHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewDeviceAcquisitionError(models.Unknown, err)
	}

	log.Info().Msg("malgo init context (miniaudio)")
	malgoContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Msg(strings.Replace("malgo devices: "+message, "\n", "", -1))
	})
	if err != nil {
		return nil, models.NewDeviceAcquisitionError(models.Unsupported, errors.Wrap(err, "cannot init malgo context"))
	}

	if constraints.EchoCancellation || constraints.NoiseSuppression || constraints.AutoGainControl {
		log.Warn().
			Bool("echo_cancellation", constraints.EchoCancellation).
			Bool("noise_suppression", constraints.NoiseSuppression).
			Bool("auto_gain_control", constraints.AutoGainControl).
			Msg("malgo does not process captured audio, ignoring constraints")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = constraints.Channels
	deviceConfig.SampleRate = constraints.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	h := &microphoneHandle{
		malgoContext: malgoContext,
		sampleRate:   constraints.SampleRate,
		numChannels:  constraints.Channels,
		mimeType:     audio_utils.L16MimeType(constraints.SampleRate, constraints.Channels),
		chunks:       make(chan models.AudioChunk, chunkBufferSize),
	}
	h.device, err = malgo.InitDevice(malgoContext.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: h.onRecvFrames,
	})
	if err != nil {
		dbg(malgoContext.Uninit())
		malgoContext.Free()
		return nil, models.NewDeviceAcquisitionError(classifyInitError(err), errors.Wrapf(err, "cannot init malgo device with config %v", deviceConfig))
	}
	log.Debug().Str("mime_type", h.mimeType).Msg("malgo device acquired")
	return h, nil
}

// classifyInitError maps miniaudio results onto acquisition kinds, which only expose a message.
func classifyInitError(err error) models.AcquisitionErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return models.PermissionDenied
	case strings.Contains(msg, "no device"), strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		return models.NoDevice
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return models.DeviceBusy
	case strings.Contains(msg, "not supported"), strings.Contains(msg, "not implemented"), strings.Contains(msg, "no backend"):
		return models.Unsupported
	default:
		return models.Unknown
	}
}

// microphoneHandle buffers PCM from the audio callback and cuts it into chunks.
//
// The state flow is:
//  1. inactive => device initialized but not running
//  2. Start / Resume => device running, callback appends to pending
//  3. Pause => device stopped, pending kept
//  4. RequestFlush (or two seconds of audio) => pending emitted as one chunk
//  5. Release => device and context freed, chunks closed
type microphoneHandle struct {
	device       *malgo.Device
	malgoContext *malgo.AllocatedContext

	sampleRate  uint32
	numChannels uint32
	mimeType    string

	mutex          sync.Mutex // Protects everything below, and sends on chunks
	state          DeviceState
	released       bool
	pending        []byte
	recordingStart time.Time
	chunks         chan models.AudioChunk
}

func (h *microphoneHandle) onRecvFrames(_, pSample []byte, _ uint32) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.released || h.state != DeviceRecording {
		return
	}
	// Empirically, len(pSample) is 480, so for sample rate 44100 it's triggered about every 10ms.
	h.pending = append(h.pending, pSample...)

	flushByteSizeThreshold := 2 * int(h.sampleRate*h.numChannels*2) // About two seconds
	if len(h.pending) > flushByteSizeThreshold {
		h.emitLocked(false)
	}
}

// emitLocked sends out pending, even when empty, so a flush request is always answered.
func (h *microphoneHandle) emitLocked(flush bool) {
	chunk := models.AudioChunk{
		Data:     h.pending,
		MimeType: h.mimeType,
		Flush:    flush,
		Trace:    models.NewTrace("microphone_client"),
	}
	h.pending = nil
	log.Trace().Int("chunk_size", len(chunk.Data)).Msg("malgo emitting chunk")
	h.chunks <- chunk
}

func (h *microphoneHandle) Start() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.released || h.state != DeviceInactive {
		return errors.Errorf("cannot start malgo device from %s", h.state)
	}
	return h.runLocked()
}

func (h *microphoneHandle) Resume() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.released || h.state != DevicePaused {
		return errors.Errorf("cannot resume malgo device from %s", h.state)
	}
	return h.runLocked()
}

func (h *microphoneHandle) runLocked() error {
	log.Info().Msg("malgo START recording...")
	if err := h.device.Start(); err != nil {
		return errors.Wrap(err, "cannot start malgo device")
	}
	h.recordingStart = time.Now()
	h.state = DeviceRecording
	return nil
}

// Pause also works on a device which was never started, it is then armed in the paused state.
func (h *microphoneHandle) Pause() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.released {
		return errors.New("malgo device already released")
	}
	if h.state == DeviceRecording {
		log.Info().Dur("recording_duration", time.Since(h.recordingStart)).Msg("malgo PAUSE recording")
		if err := h.stopDeviceLocked(); err != nil {
			return err
		}
	}
	h.state = DevicePaused
	return nil
}

func (h *microphoneHandle) Stop() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.released || h.state == DeviceInactive {
		return nil
	}
	log.Info().Dur("recording_duration", time.Since(h.recordingStart)).Msg("malgo STOP recording")
	var err error
	if h.state == DeviceRecording {
		err = h.stopDeviceLocked()
	}
	// Since we chunk up stuff - there might be some leftovers.
	if len(h.pending) > 0 {
		h.emitLocked(false)
	}
	h.state = DeviceInactive
	return err
}

// stopDeviceLocked releases the mutex around device.Stop, which waits for an in-flight callback.
func (h *microphoneHandle) stopDeviceLocked() error {
	h.state = DevicePaused
	h.mutex.Unlock()
	err := h.device.Stop()
	h.mutex.Lock()
	if err != nil {
		return errors.Wrap(err, "cannot stop malgo device")
	}
	return nil
}

func (h *microphoneHandle) RequestFlush() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.released {
		return errors.New("malgo device already released")
	}
	h.emitLocked(true)
	return nil
}

func (h *microphoneHandle) Release() error {
	h.mutex.Lock()
	if h.released {
		h.mutex.Unlock()
		return nil
	}
	h.released = true
	h.state = DeviceInactive
	h.pending = nil
	close(h.chunks)
	h.mutex.Unlock()

	// Outside the mutex, as Uninit waits for the callback which takes it.
	h.device.Uninit()
	err := h.malgoContext.Uninit()
	h.malgoContext.Free()
	if err != nil {
		return errors.Wrap(err, "cannot uninit malgo context")
	}
	return nil
}

func (h *microphoneHandle) Chunks() <-chan models.AudioChunk {
	return h.chunks
}

func (h *microphoneHandle) State() DeviceState {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state
}

func (h *microphoneHandle) IsActive() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return !h.released
}

func (h *microphoneHandle) MimeType() string {
	return h.mimeType
}
