// Package testutil holds in-memory capture and playback devices for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/petrzlen/memo-golang/pkg/audioio"
	"github.com/petrzlen/memo-golang/pkg/models"
)

const FakeMimeType = "audio/webm;codecs=opus"

// CaptureDevice hands out CaptureHandles and records how often it was asked to.
type CaptureDevice struct {
	mutex sync.Mutex

	// AcquireErr fails every Acquire while set.
	AcquireErr error
	// AcquireGate, when set, blocks Acquire until it is closed.
	AcquireGate chan struct{}
	// RefusePauseFromInactive disables the pause-while-stopped behavior on new handles.
	RefusePauseFromInactive bool

	handles []*CaptureHandle
}

func NewCaptureDevice() *CaptureDevice {
	return &CaptureDevice{}
}

func (d *CaptureDevice) Acquire(ctx context.Context, constraints audioio.Constraints) (audioio.CaptureHandle, error) {
	d.mutex.Lock()
	gate := d.AcquireGate
	d.mutex.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.AcquireErr != nil {
		return nil, d.AcquireErr
	}
	h := &CaptureHandle{
		Constraints:             constraints,
		chunks:                  make(chan models.AudioChunk, 64),
		refusePauseFromInactive: d.RefusePauseFromInactive,
	}
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *CaptureDevice) SetAcquireErr(err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.AcquireErr = err
}

func (d *CaptureDevice) SetAcquireGate(gate chan struct{}) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.AcquireGate = gate
}

func (d *CaptureDevice) Acquired() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.handles)
}

func (d *CaptureDevice) LastHandle() *CaptureHandle {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

// CaptureHandle behaves like a browser media recorder: chunks are emitted on demand
// and RequestFlush emits whatever was queued (possibly nothing) as one chunk.
type CaptureHandle struct {
	Constraints audioio.Constraints

	mutex                   sync.Mutex
	state                   audioio.DeviceState
	released                bool
	refusePauseFromInactive bool
	chunks                  chan models.AudioChunk
	queued                  []byte
	calls                   []string
	holdFlushes             bool
	heldFlushes             int
}

func (h *CaptureHandle) record(call string) {
	h.calls = append(h.calls, call)
}

func (h *CaptureHandle) Calls() []string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *CaptureHandle) Start() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.record("start")
	if h.released || h.state != audioio.DeviceInactive {
		return errors.Errorf("cannot start from %s", h.state)
	}
	h.state = audioio.DeviceRecording
	return nil
}

func (h *CaptureHandle) Pause() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.record("pause")
	switch {
	case h.released:
		return errors.New("released")
	case h.state == audioio.DeviceInactive && h.refusePauseFromInactive:
		return errors.New("cannot pause an inactive recorder")
	}
	h.state = audioio.DevicePaused
	return nil
}

func (h *CaptureHandle) Resume() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.record("resume")
	if h.released || h.state != audioio.DevicePaused {
		return errors.Errorf("cannot resume from %s", h.state)
	}
	h.state = audioio.DeviceRecording
	return nil
}

func (h *CaptureHandle) Stop() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.record("stop")
	h.state = audioio.DeviceInactive
	return nil
}

func (h *CaptureHandle) RequestFlush() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.record("flush")
	if h.released {
		return errors.New("released")
	}
	if h.holdFlushes {
		h.heldFlushes++
		return nil
	}
	h.chunks <- models.AudioChunk{Data: h.queued, MimeType: FakeMimeType, Flush: true}
	h.queued = nil
	return nil
}

// HoldFlushes makes RequestFlush succeed without answering; releasing answers every held request in order.
func (h *CaptureHandle) HoldFlushes(hold bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.holdFlushes = hold
	if hold || h.released {
		return
	}
	for ; h.heldFlushes > 0; h.heldFlushes-- {
		h.chunks <- models.AudioChunk{Data: h.queued, MimeType: FakeMimeType, Flush: true}
		h.queued = nil
	}
}

func (h *CaptureHandle) Release() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.record("release")
	if !h.released {
		h.released = true
		h.state = audioio.DeviceInactive
		close(h.chunks)
	}
	return nil
}

// Emit delivers a chunk right away, like a timeslice elapsing.
func (h *CaptureHandle) Emit(data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.released {
		return
	}
	h.chunks <- models.AudioChunk{Data: data, MimeType: FakeMimeType, Trace: models.NewTrace("testutil")}
}

// Queue holds data back until the next RequestFlush.
func (h *CaptureHandle) Queue(data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.queued = append(h.queued, data...)
}

func (h *CaptureHandle) Chunks() <-chan models.AudioChunk {
	return h.chunks
}

func (h *CaptureHandle) State() audioio.DeviceState {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state
}

func (h *CaptureHandle) IsActive() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return !h.released
}

func (h *CaptureHandle) MimeType() string {
	return FakeMimeType
}

func (h *CaptureHandle) Released() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.released
}

// Bytes of the given size, filled with val.
func Bytes(val byte, size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = val
	}
	return buf
}
