package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/engaging-workplace/clarity/internal/apiclient"
	"github.com/engaging-workplace/clarity/internal/config"
	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/rtc"
	"github.com/engaging-workplace/clarity/internal/script"
	"github.com/engaging-workplace/clarity/internal/session"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

const help = "commands: p = pause/resume, s = start again, q = quit"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		observability.InitLogger("info", false)
		log.Fatal().Err(err).Msg("load config")
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.Component("main")

	sc, err := script.Load(cfg.ScriptPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load interview script")
	}

	api := apiclient.New(cfg.ServerURL, nil)
	recorder := rtc.NewRecorder(cfg.RecordDir)
	dialer := rtc.NewDialer(rtc.Options{
		BaseURL: cfg.RealtimeBaseURL,
		Model:   cfg.RealtimeModel,
		Source: func() (rtc.AudioSource, error) {
			return rtc.OpenSource(cfg.InputAudio)
		},
		Sink: func() (rtc.Sink, error) {
			rec, err := recorder.Open()
			if err != nil {
				return nil, err
			}
			logger.Info().Str("path", rec.Path()).Msg("recording agent audio")
			return rec, nil
		},
	})

	agent := sc.AgentName
	if agent == "" {
		agent = "Clarity"
	}

	ended := make(chan struct{}, 1)
	ctrl, err := session.NewController(session.Config{
		Script:            sc,
		Credentials:       api,
		Dialer:            dialer,
		Logger:            api,
		SilenceDurationMS: cfg.VADSilenceDurationMS,
		ConnectTimeout:    cfg.ParsedConnectTimeout(),
		OnStateChange: func(s session.State) {
			fmt.Printf("[%s]\n", s)
			if s == session.StateIdle {
				select {
				case ended <- struct{}{}:
				default:
				}
			}
		},
		OnTranscript: func(rec transcript.Record) {
			label := "You"
			if rec.Speaker == transcript.SpeakerAgent {
				label = agent
			}
			fmt.Printf("%s: %s\n", label, session.DisplayText(rec.Transcript))
		},
		OnProgress: func(progress, total int) {
			fmt.Printf("progress %d/%d\n", progress, total)
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build session controller")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := func() {
		if err := ctrl.Start(ctx); err != nil {
			fmt.Printf("could not start interview: %v\n", err)
			return
		}
		fmt.Println(help)
	}
	start()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(strings.ToLower(scanner.Text()))
		}
		close(lines)
	}()

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-ended:
			if ctx.Err() == nil {
				fmt.Println("interview ended; s to start again, q to quit")
			}
		case line, ok := <-lines:
			if !ok {
				running = false
				break
			}
			switch line {
			case "p":
				togglePause(ctrl)
			case "s":
				start()
			case "q":
				running = false
			case "":
			default:
				fmt.Println(help)
			}
		}
	}

	if err := ctrl.Stop(); err != nil {
		logger.Warn().Err(err).Msg("close transport")
	}
	ctrl.Wait()
}

func togglePause(ctrl *session.Controller) {
	err := ctrl.Pause()
	if errors.Is(err, session.ErrNotActive) {
		err = ctrl.Resume()
	}
	if err != nil {
		fmt.Printf("cannot pause or resume: %v\n", err)
	}
}
