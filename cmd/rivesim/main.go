package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/host/v3"

	"github.com/coreman2200/rivesched/internal/app"
	"github.com/coreman2200/rivesched/internal/config"
	"github.com/coreman2200/rivesched/internal/diagnostics"
	"github.com/coreman2200/rivesched/internal/emitter"
	"github.com/coreman2200/rivesched/internal/engine/sim"
	"github.com/coreman2200/rivesched/internal/events"
	"github.com/coreman2200/rivesched/internal/frame"
	"github.com/coreman2200/rivesched/internal/surface"
	"github.com/coreman2200/rivesched/internal/ws"
)

func main() {
	// ---- Flags (override config.yaml when set) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		addr       = flag.String("addr", "", "HTTP listen address")
		fps        = flag.Int("fps", 0, "target frames per second")
		assets     = flag.String("assets", "", "folder holding .riv files")
		scene      = flag.String("scene", "", "scene file to load")
		artboard   = flag.String("artboard", "", "artboard to draw")
		kind       = flag.String("surface", "", "surface: none | console | spi | auto")
		broker     = flag.String("mqtt", "", "MQTT broker host:port")
		hidden     = flag.Bool("hidden", false, "start with the scene hidden")
		calibrate  = flag.String("calibrate", "", "run a surface pattern and exit: sweep | channels | rows")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Config ----
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", *configPath).Msg("no config file; using defaults and flags")
		cfg = config.Default()
	case err != nil:
		log.Fatal().Err(err).Str("path", *configPath).Msg("config invalid")
	}
	if *addr != "" {
		cfg.HTTP = *addr
	}
	if *fps > 0 {
		cfg.FPS = *fps
	}
	if *assets != "" {
		cfg.Assets = *assets
	}
	if *scene != "" {
		cfg.Scene.File = *scene
	}
	if *artboard != "" {
		cfg.Scene.Artboard = *artboard
	}
	if *kind != "" {
		cfg.Surface.Kind = *kind
	}
	if *broker != "" {
		if cfg.MQTT == nil {
			cfg.MQTT = &emitter.Config{}
		}
		cfg.MQTT.Broker = *broker
	}
	if *hidden {
		cfg.Scene.Hidden = true
	}

	// ---- Surface ----
	if _, err := host.Init(); err != nil {
		log.Warn().Err(err).Msg("periph host init failed; SPI surfaces unavailable")
	}
	strip, err := surface.Open(cfg.Surface, surface.WithLogger(log.With().Str("component", "surface").Logger()))
	if err != nil {
		log.Warn().Err(err).Str("surface", cfg.Surface.Kind).Msg("surface open failed; rendering without output")
		strip = nil
	}

	if *calibrate != "" {
		runCalibration(strip, *calibrate)
		return
	}

	// ---- Core ----
	bus := events.NewBus()
	opts := []app.Option{app.WithBus(bus)}
	if strip != nil {
		opts = append(opts, app.WithPresenter(strip))
	}
	core, err := app.New(cfg, sim.New(), frame.NewTickerSource(cfg.FPS), opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("scene setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := core.Open(ctx); err != nil {
		log.Error().Err(err).Str("file", cfg.Scene.File).Msg("scene failed to load; serving diagnostics only")
	}

	// ---- MQTT (optional) ----
	var em *emitter.Emitter
	if cfg.MQTT != nil && cfg.MQTT.Broker != "" {
		broker := cfg.MQTT.Broker
		em, err = emitter.New(*cfg.MQTT, core, emitter.OnLost(func(err error) {
			bus.Publish(events.Diagnosed("mqtt", diagnostics.EmitterDown(broker, err)))
		}))
		if err != nil {
			log.Warn().Err(err).Msg("mqtt disabled")
			em = nil
		} else if err := em.Connect(ctx); err != nil {
			log.Warn().Err(err).Str("broker", broker).Msg("mqtt connect failed; retrying in background")
		}
		if em != nil {
			sub := bus.Subscribe("mqtt", 256, nil)
			go em.Run(ctx, sub)
		}
	}

	// ---- HTTP routes ----
	health := func() map[string]any {
		h := core.Health()
		if strip != nil {
			h["surface"] = strip.Stats()
		}
		if em != nil {
			h["mqtt"] = em.Stats()
		}
		return h
	}
	hub := ws.NewHub(bus, core, ws.WithHealth(health))
	mux := http.NewServeMux()
	hub.Routes(mux)

	srv := &http.Server{
		Addr:         cfg.HTTP,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP).Str("surface", cfg.Surface.Kind).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdown)
	if em != nil {
		em.Disconnect()
	}
	core.Close()
	if strip != nil {
		if err := strip.Halt(); err != nil {
			log.Warn().Err(err).Msg("surface halt")
		}
	}
}

func runCalibration(strip *surface.Strip, name string) {
	if strip == nil {
		log.Fatal().Msg("calibration needs a surface")
	}
	p, err := surface.ParsePattern(name)
	if err != nil {
		log.Fatal().Err(err).Msg("calibration")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := strip.Calibrate(ctx, p, 250*time.Millisecond); err != nil {
		log.Warn().Err(err).Msg("calibration stopped")
	}
	_ = strip.Halt()
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}
