// Command playoutd wires a PlayoutEngine to a minimal HTTP control surface
// and a Prometheus metrics endpoint. Per spec §6, the engine itself has no
// opinion about CLI flags, environment variables, or RPC framing; this is
// the outer process shell that supplies them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/playout/clock"
	"github.com/zsiec/playout/decoder"
	"github.com/zsiec/playout/engine"
	"github.com/zsiec/playout/media"
	"github.com/zsiec/playout/telemetry"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	apiAddr := envOr("API_ADDR", ":4450")
	metricsAddr := envOr("METRICS_ADDR", ":4451")
	ringCapacity := envOrInt("RING_CAPACITY", 64)
	timebaseDen := envOrInt("TIMEBASE_DEN", 90000)

	registry := decoder.NewRegistry()
	registry.Register("synthetic", func(asset string) (decoder.Port, error) {
		return decoder.NewSynthetic(decoder.SyntheticConfig{AssetURI: asset}), nil
	})
	registry.Register("file", func(asset string) (decoder.Port, error) {
		return decoder.NewReisen(decoder.ReisenConfig{
			Filename:    asset,
			TimebaseNum: 1,
			TimebaseDen: int64(timebaseDen),
		}), nil
	})

	hooks := telemetry.NewPrometheus(nil)

	eng := engine.NewEngine(engine.EngineConfig{
		RingCapacity: ringCapacity,
		TimebaseNum:  1,
		TimebaseDen:  int64(timebaseDen),
		Clock:        clock.NewSystem(),
		Hooks:        hooks,
		NewPort:      registry.Build,
		// Handing emitted frames to an encoder/muxer is outside this
		// engine's scope; the sink here only logs, which is enough to
		// exercise pacing and the domain API end to end.
		Sink: engine.SinkFunc(func(f media.Frame) error {
			slog.Debug("frame emitted", "pts", f.PTS)
			return nil
		}),
		Log: slog.Default(),
	})
	defer eng.Shutdown()

	a := &app{engine: eng}

	g, ctx := errgroup.WithContext(ctx)

	apiSrv := &http.Server{Addr: apiAddr, Handler: a.apiHandler()}
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(hooks.Registry(), promhttp.HandlerOpts{})}

	slog.Info("playoutd starting", "version", version, "api", apiAddr, "metrics", metricsAddr)

	g.Go(func() error {
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return apiSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	engine *engine.PlayoutEngine
}

func (a *app) apiHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/channels/{id}/start", a.handleStart)
	mux.HandleFunc("POST /api/channels/{id}/stop", a.handleStop)
	mux.HandleFunc("POST /api/channels/{id}/preview", a.handlePreview)
	mux.HandleFunc("POST /api/channels/{id}/switch", a.handleSwitch)
	mux.HandleFunc("POST /api/channels/{id}/plan", a.handlePlan)
	return mux
}

func (a *app) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := parseChannelID(w, r)
	if !ok {
		return
	}
	var body struct {
		Asset string `json:"asset"`
		Plan  string `json:"plan"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := a.engine.StartChannel(r.Context(), id, body.Asset, body.Plan)
	writeResult(w, res, err)
}

func (a *app) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := parseChannelID(w, r)
	if !ok {
		return
	}
	res, err := a.engine.StopChannel(id)
	writeResult(w, res, err)
}

func (a *app) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := parseChannelID(w, r)
	if !ok {
		return
	}
	var body struct {
		Asset string `json:"asset"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := a.engine.LoadPreview(r.Context(), id, body.Asset)
	writeResult(w, res, err)
}

func (a *app) handleSwitch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseChannelID(w, r)
	if !ok {
		return
	}
	res, err := a.engine.SwitchToLive(id)
	writeResult(w, res, err)
}

func (a *app) handlePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := parseChannelID(w, r)
	if !ok {
		return
	}
	var body struct {
		Plan string `json:"plan"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	res, err := a.engine.UpdatePlan(id, body.Plan)
	writeResult(w, res, err)
}

func parseChannelID(w http.ResponseWriter, r *http.Request) (int32, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 32)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return 0, false
	}
	return int32(id), true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeResult(w http.ResponseWriter, result any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch engine.KindOf(err) {
		case engine.KindNotFound:
			status = http.StatusNotFound
		case engine.KindAlreadyExists:
			status = http.StatusConflict
		case engine.KindInvalidArgument, engine.KindBadState:
			status = http.StatusBadRequest
		case engine.KindNotReady:
			status = http.StatusTooEarly
		case engine.KindTimeout:
			status = http.StatusGatewayTimeout
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
