package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubenschmidt/interview-assistant/internal/asr"
	"github.com/hubenschmidt/interview-assistant/internal/audio"
	"github.com/hubenschmidt/interview-assistant/internal/ipc"
	"github.com/hubenschmidt/interview-assistant/internal/knowledge"
	"github.com/hubenschmidt/interview-assistant/internal/logging"
	"github.com/hubenschmidt/interview-assistant/internal/mcpserver"
	"github.com/hubenschmidt/interview-assistant/internal/models"
	"github.com/hubenschmidt/interview-assistant/internal/orchestrator"
	"github.com/hubenschmidt/interview-assistant/internal/pipeline"
	"github.com/hubenschmidt/interview-assistant/internal/state"
	"github.com/hubenschmidt/interview-assistant/internal/store"
	"github.com/hubenschmidt/interview-assistant/internal/ws"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, warnings, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logs, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logs.Close()
	slog.SetDefault(logs.Logger)
	for _, w := range warnings {
		slog.Warn("config warning", "field", w.Field, "message", w.Message)
	}
	if logs.Path != "" {
		slog.Info("logging to file", "path", logs.Path)
	}

	// Persistence is optional; without it dbReady stays false.
	var db *store.Store
	var recorder *store.Recorder
	var orchStore orchestrator.Store
	var tracer pipeline.Tracer
	if cfg.Store.Path != "" {
		db, err = store.Open(cfg.Store.Path)
		if err != nil {
			slog.Error("open store", "path", cfg.Store.Path, "error", err)
		} else {
			defer db.Close()
			recorder = store.NewRecorder(db, slog.Default())
			defer recorder.Close()
			orchStore, tracer = db, recorder
		}
	}

	bundle, err := knowledge.Load(cfg.Knowledge.Dir)
	if err != nil {
		slog.Warn("load knowledge", "dir", cfg.Knowledge.Dir, "error", err)
	}

	llmHTTP := pipeline.NewPooledHTTPClient(cfg.LLM.PoolSize, cfg.LLM.Timeout())
	llmRouter := newLLMRouter(cfg.LLM, llmHTTP)
	chat, err := llmRouter.Route(cfg.LLM.Provider)
	if err != nil {
		slog.Error("llm provider", "error", err)
		os.Exit(1)
	}
	engine := pipeline.NewEngine(chat, pipeline.EngineConfig{
		Draft:     pipeline.StageConfig{Model: cfg.LLM.Draft.Model, Temperature: cfg.LLM.Draft.Temperature},
		Refine:    pipeline.StageConfig{Model: cfg.LLM.Refine.Model, Temperature: cfg.LLM.Refine.Temperature},
		TopP:      cfg.LLM.TopP,
		MaxTokens: cfg.LLM.MaxTokens,
		Tracer:    tracer,
	})
	var probe func(context.Context) error
	if cfg.LLM.Probe {
		probe = func(ctx context.Context) error { return pipeline.Probe(ctx, chat, cfg.LLM.Draft.Model) }
	}

	dialer, err := newDialer(cfg.ASR)
	if err != nil {
		slog.Error("asr transport", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(orchestrator.Config{
		Dialer:     dialer,
		Session:    asr.Config{ReadyTimeout: cfg.ASR.ReadyTimeout()},
		Engine:     engine,
		Store:      orchStore,
		Probe:      probe,
		Chunker:    audio.ChunkerConfig{TargetSampleRate: cfg.Audio.TargetSampleRate, ChunkDurationMs: cfg.Audio.ChunkDurationMs},
		ChunkQueue: cfg.Audio.ChunkQueue,
	})

	hub := newStatusHub()
	orch.Subscribe(func(ev orchestrator.Event) {
		if snap, ok := ev.Payload.(state.Snapshot); ok && ev.Channel == ipc.StatusSnapshot {
			hub.publish(snap)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = orch.Run(ctx)
	}()

	bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
	orch.Boot(bootCtx, bundle)
	bootCancel()

	if cfg.Audio.Capture == "pulse" {
		capture, err := audio.StartCapture(ctx, audio.CaptureConfig{
			Source:     cfg.Audio.CaptureSource,
			SampleRate: cfg.Audio.CaptureRate,
		}, func(channels [][]float32, rate int) { orch.PushAudio(channels, rate) })
		if err != nil {
			slog.Error("pulse capture", "error", err)
		} else {
			defer capture.Stop()
		}
	}

	if cfg.ASR.AutoStart {
		go func() {
			opts := asr.StartOptions{Language: cfg.ASR.Language, SampleRate: cfg.Audio.TargetSampleRate}
			if err := orch.StartASR(ctx, opts); err != nil {
				slog.Warn("asr auto start", "error", err)
			}
		}()
	}

	wsHandler := ws.NewHandler(ws.HandlerConfig{
		Orchestrator:  orch,
		MaxConcurrent: cfg.Server.MaxClients,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cfg:       cfg,
		orch:      orch,
		db:        db,
		hub:       hub,
		wsHandler: wsHandler,
		mcp:       mcpserver.New(orch, version).Handler(),
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{Addr: addr, Handler: mux}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		orch.StopASR(shutdownCtx)

		if cfg.LLM.Provider == "ollama" {
			slog.Info("unloading ollama models")
			if err := models.UnloadAllLLMs(shutdownCtx, cfg.LLM.BaseURL); err != nil {
				slog.Warn("ollama unload", "error", err)
			}
		}

		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway starting", "addr", addr, "version", version,
		"asr_transport", cfg.ASR.Transport, "llm_provider", cfg.LLM.Provider, "max_clients", cfg.Server.MaxClients)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		stop()
		<-loopDone
		os.Exit(1)
	}

	<-shutdownDone
	<-loopDone
	slog.Info("gateway stopped")
}
