package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/afero"

	"github.com/petrzlen/memo-golang/internal/app"
	"github.com/petrzlen/memo-golang/internal/config"
	"github.com/petrzlen/memo-golang/internal/utils"
	"github.com/petrzlen/memo-golang/pkg/audioio"
	"github.com/petrzlen/memo-golang/pkg/lifecycle"
	"github.com/petrzlen/memo-golang/pkg/settings"
	"github.com/petrzlen/memo-golang/pkg/transcriber"
)

const usage = `r = record / mark take, p = play / stop, f = gained focus, b = background, s = status, set <key> <value>, q = quit`

func setupSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		log.Info().Msgf("Received signal: %v", sig)
		cancel()
	}()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.SetupZerolog(settings.LevelForDebugging(1))
		utils.Ftl(err, "cannot load config")
	}
	utils.SetupZerolog(settings.LevelForDebugging(cfg.Debugging))

	speakers, err := audioio.NewSpeakers(cfg.OutputSampleRate, cfg.OutputChannels)
	utils.Ftl(err, "cannot init speakers")

	var tr transcriber.Transcriber
	if cfg.OpenAIAPIKey != "" {
		tr = transcriber.NewOpenAIWhisper(openai.NewClient(cfg.OpenAIAPIKey), cfg.TranscriptionLanguage)
	} else {
		log.Info().Msg("OPEN_AI_API_KEY not set, takes will not be transcribed")
	}

	a, err := app.New(cfg, audioio.NewMicrophone(), speakers, afero.NewOsFs(), tr)
	utils.Ftl(err, "cannot wire app")

	ctx, cancel := context.WithCancel(context.Background())
	setupSignalHandler(cancel)
	go a.Run(ctx)

	// The terminal having focus is the closest thing to the app being in the foreground.
	a.Signals <- lifecycle.SignalGainedFocus

	go keyboardRoutine(ctx, a, cancel)
	<-a.Done()
}

// keyboardRoutine reads commands line by line, gestures run in the background as Play blocks until playback ends.
func keyboardRoutine(ctx context.Context, a *app.App, cancel context.CancelFunc) {
	fmt.Println(usage)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "r":
			go gesture(ctx, "record", a.Session.Record)
		case "p":
			go gesture(ctx, "play", a.Session.Play)
		case "f":
			a.Signals <- lifecycle.SignalGainedFocus
		case "b":
			a.Signals <- lifecycle.SignalLostFocus
		case "s":
			fmt.Printf("%s, playing: %s, indicator: %s\n", a.Recorder.String(), a.Player.State(), a.Session.Indicator())
		case "set":
			if len(fields) != 3 {
				fmt.Println("usage: set <key> <value>, keys:", strings.Join(a.Settings.Keys(), ", "))
				continue
			}
			if err := a.Settings.SetString(fields[1], fields[2]); err != nil {
				log.Error().Err(err).Msg("cannot change setting")
			}
		case "q":
			cancel()
			return
		default:
			fmt.Println(usage)
		}
	}
	utils.Dbg(scanner.Err())
	cancel()
}

func gesture(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		log.Error().Err(err).Str("gesture", name).Msg("gesture failed")
	}
}
