// Command replay runs a recorded detection log through the tracker
// offline and prints the tracks of every frame as JSON lines.
//
// Each input line is {"t_ms": <offset>, "detections": [...]}.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"github.com/banshee-data/overlay/internal/config"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
)

func main() {
	inPath := flag.String("in", "-", "detection log (JSON lines), - for stdin")
	configPath := flag.String("config", "", "tuning config JSON file")
	summary := flag.Bool("summary", true, "print tracker metrics to stderr when done")
	flag.Parse()

	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		tuning = tuning.Merge(loaded)
	}

	var in io.Reader = os.Stdin
	if *inPath != "-" {
		f, err := os.Open(*inPath)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	sum, err := Replay(in, os.Stdout, l3tracks.TrackerConfigFromTuning(tuning))
	if err != nil {
		log.Fatalf("replay failed after %d frames: %v", sum.Frames, err)
	}
	if *summary {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			log.Printf("write summary: %v", err)
		}
	}
}
