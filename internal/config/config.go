package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/petrzlen/memo-golang/pkg/audioio"
)

// AppConfig is everything a host binary needs to wire a session.
type AppConfig struct {
	SampleRate       uint32 `mapstructure:"sample_rate" validate:"required,min=8000,max=192000"`
	Channels         uint32 `mapstructure:"channels" validate:"required,min=1,max=2"`
	EchoCancellation bool   `mapstructure:"echo_cancellation"`
	NoiseSuppression bool   `mapstructure:"noise_suppression"`
	AutoGainControl  bool   `mapstructure:"auto_gain_control"`

	OutputSampleRate int `mapstructure:"output_sample_rate" validate:"required,min=8000,max=192000"`
	OutputChannels   int `mapstructure:"output_channels" validate:"required,min=1,max=2"`

	Debugging  int    `mapstructure:"debugging" validate:"min=0,max=2"`
	TakesDir   string `mapstructure:"takes_dir" validate:"required"`
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`

	// OpenAIAPIKey enables transcription of takes when set.
	OpenAIAPIKey          string `mapstructure:"open_ai_api_key"`
	TranscriptionLanguage string `mapstructure:"transcription_language" validate:"omitempty,len=2"`
}

func (c *AppConfig) Constraints() audioio.Constraints {
	return audioio.Constraints{
		SampleRate:       c.SampleRate,
		Channels:         c.Channels,
		EchoCancellation: c.EchoCancellation,
		NoiseSuppression: c.NoiseSuppression,
		AutoGainControl:  c.AutoGainControl,
	}
}

// InitConfig loads .env (or ENV_PATH) into the process environment and binds viper to it.
func InitConfig() *viper.Viper {
	path := os.Getenv("ENV_PATH")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("no env file, reading from env variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefault(v)
	return v
}

// keeping watch on https://github.com/spf13/viper/issues/188, AutomaticEnv only sees keys with a default.
func setDefault(v *viper.Viper) {
	defaults := audioio.DefaultConstraints()
	v.SetDefault("SAMPLE_RATE", defaults.SampleRate)
	v.SetDefault("CHANNELS", defaults.Channels)
	v.SetDefault("ECHO_CANCELLATION", defaults.EchoCancellation)
	v.SetDefault("NOISE_SUPPRESSION", defaults.NoiseSuppression)
	v.SetDefault("AUTO_GAIN_CONTROL", defaults.AutoGainControl)

	v.SetDefault("OUTPUT_SAMPLE_RATE", 16000)
	v.SetDefault("OUTPUT_CHANNELS", 1)

	v.SetDefault("DEBUGGING", 1)
	v.SetDefault("TAKES_DIR", "output")
	v.SetDefault("LISTEN_ADDR", ":8081")

	v.SetDefault("OPEN_AI_API_KEY", "")
	v.SetDefault("TRANSCRIPTION_LANGUAGE", "")
}

func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal config")
	}

	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &config, nil
}

func Load() (*AppConfig, error) {
	return GetApplicationConfig(InitConfig())
}
