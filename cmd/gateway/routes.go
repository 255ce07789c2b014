package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/interview-assistant/internal/asr"
	"github.com/hubenschmidt/interview-assistant/internal/config"
	"github.com/hubenschmidt/interview-assistant/internal/mcpserver"
	"github.com/hubenschmidt/interview-assistant/internal/mode"
	"github.com/hubenschmidt/interview-assistant/internal/models"
	"github.com/hubenschmidt/interview-assistant/internal/orchestrator"
	"github.com/hubenschmidt/interview-assistant/internal/store"
)

// defaultTranscriptLimit is how many transcripts are returned when the
// caller omits the ?limit= query parameter.
const defaultTranscriptLimit = 20

type deps struct {
	cfg       config.Config
	orch      *orchestrator.Orchestrator
	db        *store.Store
	hub       *statusHub
	wsHandler http.Handler
	mcp       http.Handler
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/ipc", d.wsHandler)
	mux.Handle(mcpserver.EndpointPath, d.mcp)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("GET /api/status", d.handleStatus)
	mux.HandleFunc("GET /api/status/stream", d.handleStatusStream)
	mux.HandleFunc("POST /api/mode", d.handleMode)
	mux.HandleFunc("GET /api/deck", d.handleDeck)
	mux.HandleFunc("POST /api/deck/{index}", d.handleHotkey)
	mux.HandleFunc("POST /api/asr/start", d.handleASRStart)
	mux.HandleFunc("POST /api/asr/stop", d.handleASRStop)
	mux.HandleFunc("GET /api/models", d.handleModels)
	mux.HandleFunc("POST /api/models/preload", d.handlePreload)
	mux.HandleFunc("POST /api/models/unload", d.handleUnload)
	registerTranscriptRoutes(mux, d.db)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (d deps) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.orch.RequestStatus())
}

func (d deps) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := d.hub.subscribe()
	defer d.hub.unsubscribe(ch)

	data, err := json.Marshal(d.orch.RequestStatus())
	if err == nil {
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	slog.Info("status/stream client connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			slog.Info("status/stream client disconnected", "remote", r.RemoteAddr)
			return
		case msg := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (d deps) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m, err := mode.Parse(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d.orch.OverrideMode(m)
	writeJSON(w, d.orch.RequestStatus())
}

func (d deps) handleDeck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.orch.Deck())
}

func (d deps) handleHotkey(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "index must be an integer", http.StatusBadRequest)
		return
	}
	sg, ok := d.orch.SendHotkey(index)
	if !ok {
		http.Error(w, "no suggestion at that index", http.StatusNotFound)
		return
	}
	writeJSON(w, sg)
}

func (d deps) handleASRStart(w http.ResponseWriter, r *http.Request) {
	opts := asr.StartOptions{Language: d.cfg.ASR.Language, SampleRate: d.cfg.Audio.TargetSampleRate}
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	slog.Info("asr start requested", "language", opts.Language, "sample_rate", opts.SampleRate)
	if err := d.orch.StartASR(r.Context(), opts); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, d.orch.RequestStatus())
}

func (d deps) handleASRStop(w http.ResponseWriter, r *http.Request) {
	slog.Info("asr stop requested")
	d.orch.StopASR(r.Context())
	writeJSON(w, d.orch.RequestStatus())
}

func (d deps) handleModels(w http.ResponseWriter, r *http.Request) {
	llm := d.cfg.LLM
	resp := map[string]any{
		"llm": map[string]any{
			"provider": llm.Provider,
			"draft":    llm.Draft.Model,
			"refine":   llm.Refine.Model,
		},
		"asr": map[string]any{
			"transport": d.cfg.ASR.Transport,
			"models":    models.ListASRModels(d.cfg.ASR.ModelDir, d.cfg.ASR.Process.Model),
		},
	}
	if llm.Provider == "ollama" {
		installed, err := models.ListLLMModels(r.Context(), llm.BaseURL)
		if err != nil {
			slog.Error("list llm models", "error", err)
			installed = []string{llm.Draft.Model, llm.Refine.Model}
		}
		loaded, _ := models.ListLoadedLLMs(r.Context(), llm.BaseURL)
		loadedNames := make([]string, 0, len(loaded))
		for _, m := range loaded {
			loadedNames = append(loadedNames, m.Name)
		}
		resp["llm"].(map[string]any)["models"] = installed
		resp["llm"].(map[string]any)["loaded"] = loadedNames
	}
	writeJSON(w, resp)
}

func (d deps) handlePreload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	slog.Info("preloading llm model", "model", req.Model)
	if err := models.PreloadLLM(r.Context(), d.cfg.LLM.BaseURL, req.Model); err != nil {
		slog.Error("preload model", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("model preloaded", "model", req.Model)
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleUnload evicts one model, or every loaded model when none is named.
func (d deps) handleUnload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var err error
	if req.Model == "" {
		slog.Info("unloading all llm models")
		err = models.UnloadAllLLMs(r.Context(), d.cfg.LLM.BaseURL)
	} else {
		slog.Info("unloading llm model", "model", req.Model)
		err = models.UnloadLLM(r.Context(), d.cfg.LLM.BaseURL, req.Model)
	}
	if err != nil {
		slog.Error("unload model", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func registerTranscriptRoutes(mux *http.ServeMux, db *store.Store) {
	mux.HandleFunc("GET /api/transcripts", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "persistence disabled", http.StatusNotFound)
			return
		}
		segments, err := db.RecentTranscripts(r.Context(), queryInt(r, "limit", defaultTranscriptLimit))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"transcripts": segments})
	})

	mux.HandleFunc("GET /api/transcripts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "persistence disabled", http.StatusNotFound)
			return
		}
		id := r.PathValue("id")
		seg, err := db.Transcript(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if seg == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		suggestions, err := db.Suggestions(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		runs, err := db.RunsForTranscript(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"transcript": seg, "suggestions": suggestions, "runs": runs})
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
