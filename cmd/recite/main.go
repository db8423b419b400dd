// Command recite follows a reader through a known reference text: it streams
// microphone PCM from stdin to a speech recognition provider, aligns the
// transcript against the reference, and prints cursor movements as they
// happen. A Prometheus metrics endpoint is exposed when configured.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mushafapp/recite/internal/config"
	"github.com/mushafapp/recite/internal/observe"
	"github.com/mushafapp/recite/internal/textnorm"
	"github.com/mushafapp/recite/internal/tracker"
	"github.com/mushafapp/recite/pkg/speech"
	"github.com/mushafapp/recite/pkg/speech/deepgram"
	"github.com/mushafapp/recite/pkg/speech/mock"
	"github.com/mushafapp/recite/pkg/speech/whisper"
)

// audioChunkBytes is the stdin read size: 100 ms of 16 kHz mono 16-bit PCM.
const audioChunkBytes = 3200

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	textPath := flag.String("text", "", "path to the reference text file to follow")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recite: %v\n", err)
		return 1
	}
	if *textPath == "" {
		fmt.Fprintln(os.Stderr, "recite: -text is required")
		return 1
	}
	referenceText, err := os.ReadFile(*textPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recite: read reference text: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Slog(),
	}))
	slog.SetDefault(logger)

	slog.Info("recite starting",
		"config", *configPath,
		"text", *textPath,
		"provider", cfg.Provider.Name,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Speech provider ───────────────────────────────────────────────────────
	provider, cleanup, err := buildProvider(cfg.Provider)
	if err != nil {
		slog.Error("failed to build speech provider", "err", err)
		return 1
	}
	defer cleanup()

	// ── Normalizer ────────────────────────────────────────────────────────────
	norm := buildNormalizer(cfg.Normalizer)

	// ── Tracker ───────────────────────────────────────────────────────────────
	t := tracker.New(provider, norm, trackerConfig(cfg))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := t.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		printEvents(ctx, t)
		return nil
	})

	g.Go(func() error {
		streamAudio(ctx, t)
		return nil
	})

	// ── Metrics endpoint ──────────────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	t.Start(string(referenceText))
	slog.Info("following reference text, press Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("final reading position", "cursor", t.Cursor())
	return 0
}

// buildProvider constructs the configured speech provider. The returned
// cleanup releases provider-held resources (the whisper model).
func buildProvider(entry config.ProviderEntry) (speech.Provider, func(), error) {
	noop := func() {}
	switch entry.Name {
	case "deepgram":
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Locale != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Locale))
		}
		if entry.SampleRate > 0 {
			opts = append(opts, deepgram.WithSampleRate(entry.SampleRate))
		}
		p, err := deepgram.New(entry.APIKey, opts...)
		return p, noop, err

	case "whisper":
		var opts []whisper.Option
		if entry.Locale != "" {
			opts = append(opts, whisper.WithLanguage(entry.Locale))
		}
		if entry.SampleRate > 0 {
			opts = append(opts, whisper.WithSampleRate(entry.SampleRate))
		}
		p, err := whisper.New(entry.ModelPath, opts...)
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			if err := p.Close(); err != nil {
				slog.Warn("whisper provider close error", "err", err)
			}
		}
		return p, cleanup, nil

	case "mock":
		return &mock.Provider{}, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown provider %q; valid values: %v", entry.Name, config.ValidProviderNames)
	}
}

// buildNormalizer applies configured fold-table overrides over the built-in
// Arabic table.
func buildNormalizer(nc config.NormalizerConfig) *textnorm.Normalizer {
	if len(nc.Folds) == 0 {
		return textnorm.New()
	}
	folds := textnorm.DefaultArabicFolds()
	for src, dst := range nc.Folds {
		srcRunes := []rune(src)
		if len(srcRunes) != 1 {
			continue
		}
		if dst == "" {
			folds[srcRunes[0]] = rune(0)
			continue
		}
		folds[srcRunes[0]] = []rune(dst)[0]
	}
	return textnorm.New(textnorm.WithFolds(folds))
}

// trackerConfig maps the YAML configuration onto a tracker.Config.
func trackerConfig(cfg *config.Config) tracker.Config {
	t := cfg.Tracker
	return tracker.Config{
		Locale:            cfg.Provider.Locale,
		SampleRate:        cfg.Provider.SampleRate,
		Channels:          cfg.Provider.Channels,
		WindowCapacity:    t.WindowCapacity,
		SpeakingThreshold: t.SpeakingThreshold,
		LevelHistory:      t.LevelHistory,
		RetryBaseDelay:    time.Duration(t.RetryBaseDelayMs) * time.Millisecond,
		RetryMaxDelay:     time.Duration(t.RetryMaxDelayMs) * time.Millisecond,
		FormatRetryDelay:  time.Duration(t.FormatRetryDelayMs) * time.Millisecond,
		DeviceSettleDelay: time.Duration(t.DeviceSettleDelayMs) * time.Millisecond,
		MaxRetries:        t.MaxRetries,
		Align:             cfg.Aligner.ToAlign(),
	}
}

// printEvents consumes tracker events until ctx ends, printing cursor
// movements and state transitions.
func printEvents(ctx context.Context, t *tracker.Tracker) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.Events():
			switch ev.Kind {
			case tracker.EventCursor:
				fmt.Printf("cursor %d (%s)\n", ev.Cursor, ev.Phase)
			case tracker.EventState:
				if ev.Err != nil {
					slog.Error("tracker state changed", "state", ev.State, "err", ev.Err)
				} else {
					slog.Info("tracker state changed", "state", ev.State)
				}
			}
		}
	}
}

// streamAudio reads raw PCM from stdin in fixed chunks and forwards it to
// the tracker, feeding the amplitude sampler along the way. Returns on EOF
// or context cancellation.
func streamAudio(ctx context.Context, t *tracker.Tracker) {
	r := bufio.NewReader(os.Stdin)
	buf := make([]byte, audioChunkBytes)
	for ctx.Err() == nil {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.AddSample(rms(chunk))
			if err := t.SendAudio(chunk); err != nil && !errors.Is(err, tracker.ErrNotListening) {
				slog.Debug("audio delivery failed", "err", err)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Warn("stdin read error", "err", err)
			}
			return
		}
	}
}

// rms computes the normalised root-mean-square level of a 16-bit LE PCM
// chunk for the speaking detector.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
