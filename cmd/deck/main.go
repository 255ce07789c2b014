// Command deck is a terminal viewer for the suggestion deck. It connects to
// the gateway's IPC WebSocket and renders status, the live caption and the
// current suggestions.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	url := flag.String("gateway", "ws://localhost:8080/ws/ipc", "gateway IPC WebSocket URL")
	flag.Parse()

	p := tea.NewProgram(newModel(*url), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "deck: %v\n", err)
		os.Exit(1)
	}
}
