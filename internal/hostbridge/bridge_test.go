package hostbridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrzlen/memo-golang/internal/testutil"
	"github.com/petrzlen/memo-golang/pkg/lifecycle"
	"github.com/petrzlen/memo-golang/pkg/playback"
	"github.com/petrzlen/memo-golang/pkg/recording"
	"github.com/petrzlen/memo-golang/pkg/session"
	"github.com/petrzlen/memo-golang/pkg/settings"
)

type fixture struct {
	capture    *testutil.CaptureDevice
	controller *session.Controller
	recorder   *recording.Coordinator
	player     *playback.Coordinator
	registry   *settings.Registry
	signals    chan lifecycle.Signal
	bridge     *Bridge
	done       chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		capture:  testutil.NewCaptureDevice(),
		registry: settings.NewDefaultRegistry(),
		signals:  make(chan lifecycle.Signal, 4),
		done:     make(chan struct{}),
	}
	f.recorder = recording.NewCoordinator(f.capture)
	f.player = playback.NewCoordinator(testutil.NewPlaybackDevice())
	f.controller = session.NewController(f.recorder, f.player)
	t.Cleanup(f.controller.Close)

	f.bridge = NewBridge(f.signals, f.controller, f.recorder, f.player, f.registry)
	go func() {
		f.bridge.Run(context.Background())
		close(f.done)
	}()
	return f
}

func (f *fixture) send(t *testing.T, msg Message) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	f.bridge.GetReader() <- raw
}

// next returns the next snapshot matching accept, skipping the rest.
func (f *fixture) next(t *testing.T, accept func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case raw, ok := <-f.bridge.GetWriter():
			require.True(t, ok, "writer closed")
			var s Snapshot
			require.NoError(t, json.Unmarshal(raw, &s))
			if accept(s) {
				return s
			}
		case <-timeout:
			require.FailNow(t, "no matching snapshot")
		}
	}
}

func TestInitialSnapshot(t *testing.T) {
	f := newFixture(t)
	s := f.next(t, func(Snapshot) bool { return true })
	assert.Equal(t, Snapshot{Type: TypeSnapshot, Recording: "UnInitialized", Playing: "Ready", Indicator: "neutral"}, s)
}

func TestRecordGestureReportsAlert(t *testing.T) {
	f := newFixture(t)
	f.send(t, Message{Type: TypeGesture, Name: GestureRecord})

	s := f.next(t, func(s Snapshot) bool { return s.Recording == "Recording" })
	assert.Equal(t, "alert", s.Indicator)
	assert.Equal(t, 1, f.capture.Acquired())
}

func TestQuickRecordTapsToggleInOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		f.send(t, Message{Type: TypeGesture, Name: GestureRecord})
		f.send(t, Message{Type: TypeGesture, Name: GestureRecord})

		s := f.next(t, func(s Snapshot) bool {
			require.NotEqual(t, TypeError, s.Type, s.Error)
			return s.Recording == "Paused"
		})
		assert.Equal(t, "Paused", s.Recording)
		assert.Equal(t, 1, f.capture.Acquired())
		select {
		case <-f.controller.Takes():
		case <-time.After(time.Second):
			require.FailNow(t, "second tap did not mark a take")
		}
		close(f.bridge.reader)
		<-f.done
	}
}

func TestSignalIsForwarded(t *testing.T) {
	f := newFixture(t)
	f.send(t, Message{Type: TypeSignal, Name: string(lifecycle.SignalHidden)})

	select {
	case signal := <-f.signals:
		assert.Equal(t, lifecycle.SignalHidden, signal)
	case <-time.After(time.Second):
		require.FailNow(t, "signal not forwarded")
	}
}

func TestSettingMessage(t *testing.T) {
	f := newFixture(t)
	f.send(t, Message{Type: TypeSetting, Name: settings.CentralIcon, Value: "false"})

	require.Eventually(t, func() bool {
		return !f.registry.Get(settings.CentralIcon).Value().Bool()
	}, time.Second, time.Millisecond)
}

func TestInvalidMessagesReportErrors(t *testing.T) {
	f := newFixture(t)
	for _, raw := range []string{`not json`, `{"type":"dance"}`, `{"type":"gesture","name":"jump"}`, `{"type":"signal","name":"minimized"}`} {
		f.bridge.GetReader() <- []byte(raw)
		s := f.next(t, func(s Snapshot) bool { return s.Type == TypeError })
		assert.NotEmpty(t, s.Error, raw)
	}
	assert.Empty(t, f.signals)
}

func TestClosingReaderClosesWriter(t *testing.T) {
	f := newFixture(t)
	close(f.bridge.reader)

	select {
	case <-f.done:
	case <-time.After(time.Second):
		require.FailNow(t, "bridge did not stop")
	}
	for range f.bridge.GetWriter() {
	}
}
