// Command overlay runs the detection overlay daemon: it reads frames from a
// camera (or a synthetic source in dev mode), tracks the detections and
// serves the tracks over gRPC and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/overlay/internal/config"
	"github.com/banshee-data/overlay/internal/db"
	"github.com/banshee-data/overlay/internal/monitoring"
	"github.com/banshee-data/overlay/internal/overlay/debug"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
	"github.com/banshee-data/overlay/internal/overlay/l2detect/yolo"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
	"github.com/banshee-data/overlay/internal/overlay/monitor"
	"github.com/banshee-data/overlay/internal/overlay/pipeline"
	"github.com/banshee-data/overlay/internal/overlay/storage/sqlite"
	"github.com/banshee-data/overlay/internal/overlay/visualiser"
	"github.com/banshee-data/overlay/internal/timeutil"
	"github.com/banshee-data/overlay/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", visualiser.DefaultConfig().ListenAddr, "gRPC track stream listen address (empty disables)")
	dbFile      = flag.String("db", "overlay.db", "Path to the SQLite database file (empty disables persistence)")
	configFile  = flag.String("config", "", "Tuning config JSON file (defaults when empty)")
	source      = flag.String("source", "0", "Capture source: camera index, file or stream URL")
	modelPath   = flag.String("model", "", "YOLO ONNX model path (overrides model_path in the config)")
	devMode     = flag.Bool("dev", false, "Use the synthetic detector instead of a camera and model")
	logLevel    = flag.String("log-level", "ops", "Pipeline log level: quiet, ops, diag or trace")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			err := db.RunMigrateCommand(flag.Args()[1:], *dbFile, os.Stdout)
			if errors.Is(err, db.ErrUsage) {
				os.Exit(2)
			}
			if err != nil {
				log.Fatalf("migrate: %v", err)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
			usage()
			os.Exit(2)
		}
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags]\n       %s [-db path] migrate <up|down|status>\n\nFlags:\n", os.Args[0], os.Args[0])
	flag.PrintDefaults()
}

func run() error {
	log.Printf("%s", version.String())

	tuning := config.DefaultTuningConfig()
	if *configFile != "" {
		loaded, err := config.LoadTuningConfig(*configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		tuning = tuning.Merge(loaded)
		log.Printf("loaded tuning config from %s", *configFile)
	}
	store := config.NewStore(tuning)

	level, err := pipeline.ParseLogLevel(*logLevel)
	if err != nil {
		return err
	}
	pipeline.SetLogOutput(os.Stderr, level)

	clock := timeutil.RealClock{}
	src, det, err := openDetector(tuning)
	if err != nil {
		return err
	}
	defer src.Close()
	defer det.Close()

	collector := debug.NewCollector()
	tracker := l3tracks.NewTracker(clock)
	tracker.SetDebugCollector(collector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	// stopRecorder runs after the pipeline has returned so the last frame's
	// removals and the flushed live tracks are written.
	stopRecorder := func() {}
	webCfg := monitor.WebServerConfig{
		Address:   *listen,
		Tracker:   tracker,
		Tuning:    store,
		Collector: collector,
	}

	if *dbFile != "" {
		database, err := db.NewDB(*dbFile)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()

		sessions := sqlite.NewSessionStore(database.DB, clock)
		sess, err := sessions.Start(ctx, sourceName(), effectiveModelPath(tuning), tuning)
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		log.Printf("session %s started", sess.ID)
		defer func() {
			if err := sessions.End(context.Background(), sess.ID); err != nil {
				log.Printf("end session: %v", err)
			}
		}()

		tracks := sqlite.NewTrackStore(database.DB)
		rec := sqlite.NewRecorder(sqlite.RecorderConfig{Store: tracks, SessionID: sess.ID})
		tracker.SetRemovalHook(rec.Hook)
		recCtx, recCancel := context.WithCancel(context.Background())
		stopRecorder = func() {
			recCancel()
			<-rec.Done()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Run(recCtx); err != nil {
				log.Printf("recorder error: %v", err)
			}
			log.Print("recorder routine terminated")
		}()

		webCfg.DB = database
		webCfg.Sessions = sessions
		webCfg.Tracks = tracks
		webCfg.Recorder = rec
		webCfg.SessionID = sess.ID
	}

	trails := monitor.NewTrailPlotter(0, 0)
	publishers := []pipeline.Publisher{trails}
	webCfg.Trails = trails

	if *grpcListen != "" {
		pubCfg := visualiser.DefaultConfig()
		pubCfg.ListenAddr = *grpcListen
		stream := visualiser.NewPublisher(pubCfg)
		if err := stream.Start(); err != nil {
			return fmt.Errorf("start track stream: %w", err)
		}
		defer stream.Stop()
		publishers = append(publishers, stream)
		webCfg.Stream = stream
	}

	frames := &monitoring.FrameStats{}
	webCfg.Frames = frames
	runner, err := pipeline.NewRunner(pipeline.Config{
		Source:     src,
		Detector:   det,
		Tracker:    tracker,
		Tuning:     store,
		Clock:      clock,
		Stats:      frames,
		Publishers: publishers,
	})
	if err != nil {
		return err
	}

	ws, err := monitor.NewWebServer(webCfg)
	if err != nil {
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil {
			log.Printf("pipeline stopped: %v", err)
		}
		log.Print("pipeline routine terminated")
		// A finished source (end of a video file) stops the daemon.
		stop()
		log.Printf("flushed %d live tracks", tracker.Flush())
		stopRecorder()
	}()

	wg.Wait()
	log.Printf("frames: %+v", frames.Snapshot())
	return nil
}

// openDetector returns the frame source and detector for the run mode.
func openDetector(tuning *config.TuningConfig) (l2detect.FrameSource, l2detect.Detector, error) {
	if *devMode {
		log.Print("dev mode: using synthetic detections")
		src := &l2detect.TickerSource{Interval: tuning.GetFrameInterval()}
		if src.Interval <= 0 {
			src.Interval = 33 * time.Millisecond
		}
		return src, l2detect.NewSyntheticDetector(time.Now().UnixNano()), nil
	}

	cfg := yolo.DefaultConfig()
	cfg.ModelPath = effectiveModelPath(tuning)
	// The runner keeps this in step with /api/params from the first frame.
	cfg.ConfidenceThresh = float32(l3tracks.TrackerConfigFromTuning(tuning).DetectorFloor())
	cfg.NMSThresh = float32(tuning.GetNMSThreshold())
	cfg.InputSize = tuning.GetInputSize()

	det, err := yolo.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("load detector: %w", err)
	}
	src, err := yolo.OpenCapture(*source, time.Now)
	if err != nil {
		det.Close()
		return nil, nil, fmt.Errorf("open capture %q: %w", *source, err)
	}
	log.Printf("capturing from %s with model %s", *source, cfg.ModelPath)
	return src, det, nil
}

func sourceName() string {
	if *devMode {
		return "synthetic"
	}
	return *source
}

func effectiveModelPath(tuning *config.TuningConfig) string {
	switch {
	case *devMode:
		return ""
	case *modelPath != "":
		return *modelPath
	}
	return tuning.GetModelPath()
}
