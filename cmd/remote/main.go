package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/afero"

	"github.com/petrzlen/memo-golang/internal/app"
	"github.com/petrzlen/memo-golang/internal/config"
	"github.com/petrzlen/memo-golang/internal/hostbridge"
	"github.com/petrzlen/memo-golang/internal/networking"
	"github.com/petrzlen/memo-golang/internal/utils"
	"github.com/petrzlen/memo-golang/pkg/audioio"
	"github.com/petrzlen/memo-golang/pkg/settings"
	"github.com/petrzlen/memo-golang/pkg/transcriber"
)

// The remote host is a shell (e.g. a web page or a mobile wrapper) which forwards its
// lifecycle signals and button taps over a websocket, while the audio stays on this machine.
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
	}

	a, err := app.New(cfg, audioio.NewMicrophone(), speakers, afero.NewOsFs(), tr)
	utils.Ftl(err, "cannot wire app")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go a.Run(ctx)

	http.HandleFunc("/ws", networking.NewWebsocketHandlerFunc(func(*http.Request) networking.WebsocketMessageHandler {
		bridge := hostbridge.NewBridge(a.Signals, a.Session, a.Recorder, a.Player, a.Settings)
		go bridge.Run(ctx)
		return bridge
	}))
	server := &http.Server{Addr: cfg.ListenAddr}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		utils.Dbg(server.Shutdown(shutdownCtx))
	}()

	log.Info().Str("listen_addr", cfg.ListenAddr).Msg("remote host listening on /ws")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		utils.Ftl(err, "cannot serve")
	}
	<-a.Done()
}
