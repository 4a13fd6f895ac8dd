// Package settings is an in-memory registry of named, described, observable values.
package settings

import (
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/petrzlen/memo-golang/pkg/events"
)

const (
	CentralIcon = "centralIcon"
	Debugging   = "debugging"
)

var ErrUnknownSetting = errors.New("unknown setting")

type Kind int

const (
	Bool Kind = iota
	Int
	Real
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Real:
		return "real"
	default:
		return "bool"
	}
}

// Value is a tagged variant over the supported kinds.
type Value struct {
	kind Kind
	b    bool
	i    int
	f    float64
}

func BoolValue(b bool) Value       { return Value{kind: Bool, b: b} }
func IntValue(i int) Value         { return Value{kind: Int, i: i} }
func RealValue(f float64) Value    { return Value{kind: Real, f: f} }
func (v Value) Kind() Kind         { return v.kind }
func (v Value) Bool() bool         { return v.b }
func (v Value) Int() int           { return v.i }
func (v Value) Real() float64      { return v.f }
func (v Value) Equal(o Value) bool { return v == o }

func (v Value) String() string {
	switch v.kind {
	case Int:
		return strconv.Itoa(v.i)
	case Real:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return strconv.FormatBool(v.b)
	}
}

// Parse reads s as a value of the given kind.
func Parse(kind Kind, s string) (Value, error) {
	switch kind {
	case Int:
		i, err := strconv.Atoi(s)
		if err != nil {
			return Value{}, errors.Wrapf(err, "cannot parse %q as int", s)
		}
		return IntValue(i), nil
	case Real:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, errors.Wrapf(err, "cannot parse %q as real", s)
		}
		return RealValue(f), nil
	default:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, errors.Wrapf(err, "cannot parse %q as bool", s)
		}
		return BoolValue(b), nil
	}
}

type ChangeEvent struct {
	Name string
	From Value
	To   Value
}

type Setting struct {
	Name        string
	Description string

	mutex    sync.RWMutex
	value    Value
	onChange events.Emitter[ChangeEvent]
}

func NewSetting(name, description string, initial Value) *Setting {
	return &Setting{Name: name, Description: description, value: initial}
}

func (s *Setting) Value() Value {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.value
}

func (s *Setting) Kind() Kind {
	return s.Value().Kind()
}

// Set replaces the value and notifies subscribers. The kind can not change.
func (s *Setting) Set(v Value) error {
	s.mutex.Lock()
	if v.kind != s.value.kind {
		s.mutex.Unlock()
		return errors.Errorf("setting %q holds %s, got %s", s.Name, s.value.kind, v.kind)
	}
	from := s.value
	s.value = v
	s.mutex.Unlock()

	s.onChange.Emit(ChangeEvent{Name: s.Name, From: from, To: v})
	return nil
}

func (s *Setting) OnChange(fn func(ChangeEvent)) (unsubscribe func()) {
	return s.onChange.Subscribe(fn)
}

type Registry struct {
	mutex    sync.RWMutex
	settings map[string]*Setting
}

func NewRegistry() *Registry {
	return &Registry{settings: make(map[string]*Setting)}
}

// NewDefaultRegistry holds the settings a voice memo client ships with.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CentralIcon, NewSetting(
		"Central icon",
		"Show the record and play icons in the centre (otherwise they will be displayed at the top left)",
		BoolValue(true)))
	r.Register(Debugging, NewSetting(
		"Debugging level",
		"Debugging level: 0 = none, 1 = normal, 2 = specific.",
		IntValue(1)))

	for _, key := range r.Keys() {
		key := key
		r.Get(key).OnChange(func(e ChangeEvent) {
			log.Debug().Str("setting", key).Str("from", e.From.String()).Str("to", e.To.String()).Msg("setting changed")
		})
	}
	return r
}

func (r *Registry) Register(key string, s *Setting) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.settings[key] = s
}

// Get returns nil for unknown keys.
func (r *Registry) Get(key string) *Setting {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.settings[key]
}

func (r *Registry) Set(key string, v Value) error {
	s := r.Get(key)
	if s == nil {
		return errors.Wrap(ErrUnknownSetting, key)
	}
	return s.Set(v)
}

// SetString parses s according to the kind of the setting.
func (r *Registry) SetString(key string, s string) error {
	setting := r.Get(key)
	if setting == nil {
		return errors.Wrap(ErrUnknownSetting, key)
	}
	v, err := Parse(setting.Kind(), s)
	if err != nil {
		return err
	}
	return setting.Set(v)
}

func (r *Registry) Keys() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	keys := make([]string, 0, len(r.settings))
	for k := range r.settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LevelForDebugging maps the debugging setting onto a zerolog level.
func LevelForDebugging(debugging int) zerolog.Level {
	switch {
	case debugging <= 0:
		return zerolog.InfoLevel
	case debugging == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// BindLogLevel applies the debugging setting to the global zerolog level, now and on every change.
func BindLogLevel(r *Registry) (unsubscribe func()) {
	s := r.Get(Debugging)
	if s == nil {
		return func() {}
	}
	zerolog.SetGlobalLevel(LevelForDebugging(s.Value().Int()))
	return s.OnChange(func(e ChangeEvent) {
		zerolog.SetGlobalLevel(LevelForDebugging(e.To.Int()))
	})
}
