package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// frame is the envelope shakegestured sends on /ws.
type frame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type gestureData struct {
	ID         string  `json:"id"`
	Action     string  `json:"action"`
	Outcome    string  `json:"outcome"`
	GuardHeld  bool    `json:"guard_held"`
	Error      string  `json:"error"`
	DurationMS float64 `json:"duration_ms"`
}

type configData struct {
	Enabled bool   `json:"enabled"`
	Action  string `json:"action"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws", "shakegestured report stream URL")
		raw   = flag.Bool("raw", false, "Print frames as indented JSON instead of one-line summaries")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				printRaw(message)
				continue
			}
			fmt.Println(formatFrame(message))
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func printRaw(message []byte) {
	var v any
	if err := json.Unmarshal(message, &v); err != nil {
		fmt.Printf("[TEXT] %s\n", message)
		return
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("%s\n\n", pretty)
}

// formatFrame renders one report stream frame as a single line.
func formatFrame(message []byte) string {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		return fmt.Sprintf("[TEXT] %s", message)
	}

	ts := "--:--:--.---"
	if f.Ts != nil {
		ts = f.Ts.Local().Format("15:04:05.000")
	}

	switch f.Type {
	case "gesture_dispatched":
		var g gestureData
		if err := json.Unmarshal(f.Data, &g); err != nil {
			break
		}
		line := fmt.Sprintf("%s [GESTURE] %-20s %-9s %6.1fms", ts, g.Action, g.Outcome, g.DurationMS)
		if g.GuardHeld {
			line += " guard"
		}
		if g.Error != "" {
			line += " error=" + g.Error
		}
		return line

	case "config_changed":
		var c struct {
			Old configData `json:"old"`
			New configData `json:"new"`
		}
		if err := json.Unmarshal(f.Data, &c); err != nil {
			break
		}
		return fmt.Sprintf("%s [CONFIG] %s -> %s", ts, describeConfig(c.Old), describeConfig(c.New))

	case "state_init":
		var s struct {
			Config configData `json:"config"`
			State  string     `json:"state"`
		}
		if err := json.Unmarshal(f.Data, &s); err != nil {
			break
		}
		return fmt.Sprintf("%s [INIT] %s, dispatcher %s", ts, describeConfig(s.Config), s.State)
	}

	return fmt.Sprintf("%s [%s] %s", ts, f.Type, string(f.Data))
}

func describeConfig(c configData) string {
	if !c.Enabled {
		return "disabled (" + c.Action + ")"
	}
	return "enabled " + c.Action
}
