package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/interview-assistant/internal/asr"
	"github.com/hubenschmidt/interview-assistant/internal/audio"
	"github.com/hubenschmidt/interview-assistant/internal/ipc"
)

func main() {
	gateway := flag.String("gateway", "ws://localhost:8080/ws/ipc", "gateway IPC WebSocket URL")
	concurrency := flag.Int("concurrency", 4, "number of concurrent audio clients")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	audioDir := flag.String("audio-dir", "/samples", "directory with sample .wav files")
	startASR := flag.Bool("start-asr", true, "send asr/start before streaming")
	wait := flag.Duration("wait", 20*time.Second, "how long to wait for a suggestion after audio ends")
	flag.Parse()

	clips := loadClips(*audioDir)
	if len(clips) == 0 {
		fmt.Fprintf(os.Stderr, "no wav files in %s, generating synthetic audio\n", *audioDir)
	}

	fmt.Printf("Load test: %d concurrent clients for %s\n", *concurrency, *duration)
	fmt.Printf("Gateway: %s | clips: %d\n\n", *gateway, len(clips))

	var mu sync.Mutex
	var results []runResult
	var wg sync.WaitGroup

	deadline := time.Now().Add(*duration)

	for i := range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for time.Now().Before(deadline) {
				r := runClient(*gateway, i == 0 && *startASR, pickClip(clips), *wait)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	printSummary(results)
}

type runResult struct {
	success      bool
	finalMs      float64
	suggestionMs float64
	llmMs        float64
	err          string
}

// runClient streams one clip in real time and measures how long after the
// last frame the first final transcript and the first deck arrive.
func runClient(gateway string, startASR bool, c clip, wait time.Duration) runResult {
	conn, _, err := websocket.DefaultDialer.Dial(gateway, nil)
	if err != nil {
		return runResult{err: fmt.Sprintf("dial: %v", err)}
	}
	defer conn.Close()

	hello, _ := json.Marshal(ipc.Hello{Client: "loadtest", SampleRate: c.rate, Codec: string(audio.CodecPCM16)})
	if err = conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return runResult{err: fmt.Sprintf("send hello: %v", err)}
	}
	if startASR {
		cmd, _ := ipc.Encode(ipc.ASRStart, asr.StartOptions{SampleRate: 16000})
		if err = conn.WriteMessage(websocket.TextMessage, cmd); err != nil {
			return runResult{err: fmt.Sprintf("send asr/start: %v", err)}
		}
	}

	events := make(chan ipc.Message, 64)
	done := make(chan struct{})
	defer close(done)
	go readEvents(conn, events, done)

	frame := max(c.rate/50, 1) // 20ms
	for i := 0; i < len(c.samples); i += frame {
		end := min(i+frame, len(c.samples))
		if err = conn.WriteMessage(websocket.BinaryMessage, audio.EncodePCM16(c.samples[i:end])); err != nil {
			return runResult{err: fmt.Sprintf("send audio: %v", err)}
		}
		time.Sleep(20 * time.Millisecond)
	}
	sent := time.Now()

	var r runResult
	timeout := time.After(wait)
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return runResult{err: "connection closed"}
			}
			switch msg.Channel {
			case ipc.TranscriptFinal:
				if r.finalMs == 0 {
					r.finalMs = msSince(sent)
				}
			case ipc.AutosuggestResult:
				var res struct {
					LatencyMs float64 `json:"latencyMs"`
				}
				json.Unmarshal(msg.Payload, &res)
				r.suggestionMs = msSince(sent)
				r.llmMs = res.LatencyMs
				r.success = true
				return r
			case ipc.Error:
				return runResult{err: string(msg.Payload)}
			}
		case <-timeout:
			if r.finalMs > 0 {
				return runResult{err: "final transcript but no suggestion"}
			}
			return runResult{err: "no final transcript"}
		}
	}
}

func readEvents(conn *websocket.Conn, out chan<- ipc.Message, done <-chan struct{}) {
	defer close(out)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var msg ipc.Message
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		select {
		case out <- msg:
		case <-done:
			return
		}
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

func pickClip(clips []clip) clip {
	if len(clips) > 0 {
		return clips[rand.Intn(len(clips))]
	}
	return clip{rate: 16000, samples: generateSyntheticAudio(3*time.Second, 16000)}
}

func generateSyntheticAudio(dur time.Duration, sampleRate int) []float32 {
	numSamples := int(dur.Seconds()) * sampleRate
	out := make([]float32, numSamples)

	for i := range numSamples {
		t := float64(i) / float64(sampleRate)
		// 440Hz tone with light noise so the recognizer sees energy
		out[i] = float32(math.Sin(2*math.Pi*440*t)*0.3 + (rand.Float64()-0.5)*0.05)
	}
	return out
}

func loadClips(dir string) []clip {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var clips []clip
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".wav" {
			continue
		}
		c, err := readWAV(filepath.Join(dir, e.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", e.Name(), err)
			continue
		}
		clips = append(clips, c)
	}
	return clips
}

func printSummary(results []runResult) {
	var succeeded, failed int
	var finalAll, suggAll, llmAll []float64
	errs := map[string]int{}

	for _, r := range results {
		if !r.success {
			failed++
			errs[r.err]++
			continue
		}
		succeeded++
		if r.finalMs > 0 {
			finalAll = append(finalAll, r.finalMs)
		}
		suggAll = append(suggAll, r.suggestionMs)
		llmAll = append(llmAll, r.llmMs)
	}

	fmt.Printf("\n=== Load Test Results ===\n")
	fmt.Printf("Runs completed: %d\n", succeeded)
	fmt.Printf("Runs failed:    %d\n", failed)
	for msg, n := range errs {
		fmt.Printf("  %4d  %s\n", n, msg)
	}

	if len(suggAll) == 0 {
		fmt.Println("No successful runs to report metrics")
		return
	}

	fmt.Printf("\n%-10s %8s %8s %8s\n", "Stage", "p50", "p95", "p99")
	printRow("Final", finalAll)
	printRow("LLM", llmAll)
	printRow("Suggest", suggAll)
}

func printRow(name string, data []float64) {
	if len(data) == 0 {
		return
	}
	fmt.Printf("%-10s %6.0fms %6.0fms %6.0fms\n", name, percentile(data, 50), percentile(data, 95), percentile(data, 99))
}

func percentile(data []float64, pct float64) float64 {
	sort.Float64s(data)
	idx := int(math.Ceil(pct/100*float64(len(data)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(data) {
		idx = len(data) - 1
	}
	return data[idx]
}
