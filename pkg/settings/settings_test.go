package settings

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{CentralIcon, Debugging}, r.Keys())

	central := r.Get(CentralIcon)
	require.NotNil(t, central)
	assert.Equal(t, "Central icon", central.Name)
	assert.Equal(t, Bool, central.Kind())
	assert.True(t, central.Value().Bool())

	debugging := r.Get(Debugging)
	require.NotNil(t, debugging)
	assert.Equal(t, 1, debugging.Value().Int())
	assert.NotEmpty(t, debugging.Description)
}

func TestSetNotifiesWithFromAndTo(t *testing.T) {
	r := NewDefaultRegistry()
	var events []ChangeEvent
	r.Get(Debugging).OnChange(func(e ChangeEvent) { events = append(events, e) })

	require.NoError(t, r.Set(Debugging, IntValue(2)))
	require.NoError(t, r.SetString(Debugging, "0"))

	require.Len(t, events, 2)
	assert.Equal(t, ChangeEvent{Name: "Debugging level", From: IntValue(1), To: IntValue(2)}, events[0])
	assert.Equal(t, IntValue(0), events[1].To)
}

func TestSetRejectsKindChangeAndUnknownKeys(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Error(t, r.Set(CentralIcon, IntValue(1)))
	assert.True(t, r.Get(CentralIcon).Value().Bool())

	assert.ErrorIs(t, r.Set("nope", BoolValue(true)), ErrUnknownSetting)
	assert.ErrorIs(t, r.SetString("nope", "true"), ErrUnknownSetting)
	assert.Error(t, r.SetString(CentralIcon, "maybe"))
}

func TestParseAndString(t *testing.T) {
	v, err := Parse(Real, "0.25")
	require.NoError(t, err)
	assert.Equal(t, 0.25, v.Real())
	assert.Equal(t, "0.25", v.String())

	v, err = Parse(Bool, "false")
	require.NoError(t, err)
	assert.Equal(t, "false", v.String())

	_, err = Parse(Int, "one")
	assert.Error(t, err)
}

func TestBindLogLevelFollowsDebugging(t *testing.T) {
	previous := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(previous) })

	r := NewDefaultRegistry()
	unsubscribe := BindLogLevel(r)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	require.NoError(t, r.Set(Debugging, IntValue(2)))
	assert.Equal(t, zerolog.TraceLevel, zerolog.GlobalLevel())

	require.NoError(t, r.Set(Debugging, IntValue(0)))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	unsubscribe()
	require.NoError(t, r.Set(Debugging, IntValue(2)))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
