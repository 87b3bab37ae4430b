package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/drowsy"
	"github.com/loykin/drowsy/pkg/client"
)

const shutdownTimeout = 5 * time.Second

// runServe blocks until ctx is cancelled, then shuts the daemon down in order:
// HTTP server, event stream, session, history.
func runServe(ctx context.Context, f ServeFlags) error {
	cfg, err := drowsy.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if f.Listen != "" {
		cfg.Server.Listen = f.Listen
	}
	log := drowsy.NewLogger(cfg)
	slog.SetDefault(log)

	var opts []drowsy.SessionOption
	var httpOpts []drowsy.HTTPOption
	if cfg.Metrics.Enabled {
		if err := drowsy.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "err", err)
		} else {
			opts = append(opts, drowsy.WithMetrics())
			httpOpts = append(httpOpts, drowsy.WithMetricsEndpoint())
		}
	}
	if cfg.Log.LogEvents {
		opts = append(opts, drowsy.WithEventLogging())
	}

	hub := drowsy.NewEventHub(log)
	httpOpts = append(httpOpts, drowsy.WithEventStream(hub))

	id := newSessionID()
	var recorder *drowsy.HistoryRecorder
	var sink drowsy.HistorySink
	if cfg.History.Enabled {
		sink, err = drowsy.NewHistorySink(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		recorder = drowsy.NewHistoryRecorder(id, sink, drowsy.HistoryRecorderOptions{
			QueueSize: cfg.History.QueueSize,
			Logger:    log,
		})
		opts = append(opts, drowsy.WithSubscribers(recorder))
	}
	opts = append(opts,
		drowsy.WithSessionID(id),
		drowsy.WithLogger(log),
		drowsy.WithSubscribers(hub))

	sess, err := drowsy.NewSession(cfg.Detector, opts...)
	if err != nil {
		closeSink(sink)
		return err
	}

	srv, err := drowsy.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, sess, httpOpts...)
	if err != nil {
		_ = sess.Close()
		closeSink(sink)
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("drowsyd started",
		"session", sess.ID(), "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath,
		"metrics", cfg.Metrics.Enabled, "history", cfg.History.Enabled)

	<-ctx.Done()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	if err := srv.Shutdown(sctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	hub.Close()
	_ = sess.Close()
	if recorder != nil {
		if err := recorder.Close(sctx); err != nil {
			errs = append(errs, fmt.Errorf("history flush: %w", err))
		}
		sent, failed, dropped := recorder.Stats()
		log.Info("history flushed", "sent", sent, "failed", failed, "dropped", dropped)
	}
	closeSink(sink)
	return errors.Join(errs...)
}

// runReplay feeds a JSONL frame file through a session whose clock follows the
// frame timestamps and prints the resulting events as JSON lines.
func runReplay(f ReplayFlags, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := drowsy.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log := cfg.Log.Logger().NewSloggerTo(stderr)

	in := stdin
	if f.Input != "-" {
		file, err := os.Open(filepath.Clean(f.Input))
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = file.Close() }()
		in = file
	}

	var now time.Time
	enc := json.NewEncoder(stdout)
	var printErr error
	printer := drowsy.SubscriberFunc(func(e drowsy.Event) error {
		if !f.All && !isClassification(e.Kind()) {
			return nil
		}
		if err := enc.Encode(drowsy.Wrap(e)); err != nil && printErr == nil {
			printErr = err
		}
		return nil
	})
	sess, err := drowsy.NewSession(cfg.Detector,
		drowsy.WithClock(drowsy.ClockFunc(func() time.Time { return now })),
		drowsy.WithLogger(log),
		drowsy.WithSubscribers(printer))
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var fr drowsy.Frame
		if err := json.Unmarshal(raw, &fr); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		sample, err := fr.Sample()
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		now = sample.Timestamp
		if err := sess.HandleFrame(sample); err != nil {
			if errors.Is(err, drowsy.ErrStaleFrame) {
				log.Warn("skipping stale frame", "line", line, "err", err)
				continue
			}
			return fmt.Errorf("line %d: %w", line, err)
		}
		if printErr != nil {
			return fmt.Errorf("write output: %w", printErr)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	st := sess.Status()
	log.Info("replay finished",
		"lines", line, "frames", st.FramesProcessed, "dropped", st.FramesDropped,
		"stale", st.FramesStale, "state", string(st.State), "perclos", st.PERCLOS)
	return nil
}

func isClassification(k drowsy.EventKind) bool {
	return k == drowsy.KindAwake || k == drowsy.KindLikelyDrowsy || k == drowsy.KindDrowsy
}

// effectiveConfig is the printable form of the loaded configuration.
type effectiveConfig struct {
	EnvFiles []string `json:"env_files,omitempty"`
	Detector struct {
		EyeOpenProbabilityThreshold  float64 `json:"eye_open_probability_threshold"`
		SlowEyelidClosureMinDuration string  `json:"slow_eyelid_closure_min_duration"`
		DrowsyThreshold              float64 `json:"drowsy_threshold"`
		LikelyDrowsyThreshold        float64 `json:"likely_drowsy_threshold"`
		TimeWindow                   string  `json:"time_window"`
	} `json:"detector"`
	Log     any `json:"log"`
	Server  any `json:"server"`
	Metrics any `json:"metrics"`
	History any `json:"history"`
}

func runCheckConfig(f CheckConfigFlags, out io.Writer) error {
	cfg, err := drowsy.LoadConfig(f.ConfigPath)
	if err != nil {
		return err
	}
	var ec effectiveConfig
	ec.EnvFiles = cfg.EnvFiles
	ec.Detector.EyeOpenProbabilityThreshold = cfg.Detector.EyeOpenProbabilityThreshold
	ec.Detector.SlowEyelidClosureMinDuration = cfg.Detector.SlowEyelidClosureMinDuration.String()
	ec.Detector.DrowsyThreshold = cfg.Detector.DrowsyThreshold
	ec.Detector.LikelyDrowsyThreshold = cfg.Detector.LikelyDrowsyThreshold
	ec.Detector.TimeWindow = cfg.Detector.TimeWindow.String()
	ec.Log = cfg.Log
	ec.Server = cfg.Server
	ec.Metrics = cfg.Metrics
	ec.History = cfg.History
	return printJSON(out, ec)
}

func runStatus(ctx context.Context, f StatusFlags, out io.Writer) error {
	apiURL := f.APIUrl
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080/api"
	}
	c := client.New(client.Config{BaseURL: apiURL, Timeout: f.APITimeout})
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", apiURL, err)
	}
	return printJSON(out, st)
}
