// calliope-say submits speak/stop requests to a running callioped and
// prints the playback status events it publishes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/calliope-labs/calliope-speak/internal/protocol"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

func main() {
	var (
		servers  string
		voice    string
		sendStop bool
		timeout  time.Duration
	)

	flag.StringVar(&servers, "servers", "nats://localhost:4222", "Comma-separated NATS server URLs")
	flag.StringVar(&voice, "voice", "", "Voice to synthesize with")
	flag.BoolVar(&sendStop, "stop", false, "Stop the current playback instead of speaking")
	flag.DurationVar(&timeout, "timeout", 60*time.Second, "How long to wait for playback to finish")
	flag.Parse()

	conn, err := nats.Connect(servers, nats.Name("calliope-say"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to NATS: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if sendStop {
		data, _ := json.Marshal(protocol.StopRequest{Timestamp: time.Now().UTC()})
		if err := conn.Publish(protocol.SubjectSpeakStop, data); err != nil {
			fmt.Fprintf(os.Stderr, "publish stop: %v\n", err)
			os.Exit(1)
		}
		conn.Flush()
		fmt.Println("stop requested")
		return
	}

	text := strings.Join(flag.Args(), " ")
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: calliope-say [flags] <text to speak>")
		os.Exit(2)
	}

	utteranceID := uuid.NewString()
	statuses := make(chan protocol.PlaybackStatus, 64)
	sub, err := conn.Subscribe(protocol.SubjectStatusPrefix+".>", func(msg *nats.Msg) {
		var status protocol.PlaybackStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			return
		}
		if status.UtteranceID == utteranceID {
			statuses <- status
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "subscribe status: %v\n", err)
		os.Exit(1)
	}
	defer sub.Drain()

	data, err := json.Marshal(protocol.SpeakRequest{UtteranceID: utteranceID, Text: text, Voice: voice})
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal request: %v\n", err)
		os.Exit(1)
	}
	if err := conn.Publish(protocol.SubjectSpeakRequest, data); err != nil {
		fmt.Fprintf(os.Stderr, "publish speak: %v\n", err)
		os.Exit(1)
	}
	conn.Flush()

	deadline := time.After(timeout)
	for {
		select {
		case status := <-statuses:
			printStatus(status)
			switch status.State {
			case "completed":
				return
			case "canceled", "failed", "rejected":
				os.Exit(1)
			}
		case <-deadline:
			fmt.Fprintln(os.Stderr, "timed out waiting for playback to finish")
			os.Exit(1)
		}
	}
}

func printStatus(status protocol.PlaybackStatus) {
	switch status.State {
	case "progress":
		fmt.Printf("... %d bytes\n", status.Bytes)
	case "word_boundary":
		fmt.Printf("word: %s\n", status.Detail)
	default:
		if status.Detail != "" {
			fmt.Printf("%s: %s\n", status.State, status.Detail)
		} else {
			fmt.Println(status.State)
		}
	}
}
