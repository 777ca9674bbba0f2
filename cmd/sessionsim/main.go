package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/MarvinCayosa/applift-session"
	"github.com/fatih/color"
)

// CLI configuration
type CLIConfig struct {
	ScenarioFile string
	ConfigFile   string
	QueuePath    string
	OutDir       string
	Timeout      time.Duration
	Verbose      bool
	JSON         bool
}

func main() {
	config := parseFlags()

	if config.ScenarioFile == "" {
		color.Red("Error: scenario file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.ScenarioFile); os.IsNotExist(err) {
		color.Red("Error: scenario file '%s' not found", config.ScenarioFile)
		os.Exit(1)
	}

	logger := setupLogger(config.Verbose, config.JSON)

	color.Blue("Loading scenario from: %s", config.ScenarioFile)
	scenario, err := LoadScenario(config.ScenarioFile)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}
	color.Cyan("Scenario: %s (%s)", scenario.Name, scenario.Exercise)

	reliability := session.DefaultConfig()
	if config.ConfigFile != "" {
		reliability, err = session.LoadConfigFile(config.ConfigFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	finalState, err := runScenario(ctx, scenario, reliability, config, logger)
	if err != nil {
		color.Red("Scenario failed: %v", err)
		os.Exit(1)
	}

	color.Green("Final state: %s", finalState)
	if scenario.FinalState != "" && string(finalState) != scenario.FinalState {
		color.Red("Expected final state %q, got %q", scenario.FinalState, finalState)
		os.Exit(1)
	}
	color.Green("Scenario %q passed", scenario.Name)
}

func runScenario(ctx context.Context, scenario *Scenario, reliability *session.Config, config CLIConfig, logger *slog.Logger) (session.State, error) {
	network := newNetwork()

	heartbeatURL, stopStub, err := startHeartbeatStub(network)
	if err != nil {
		return "", fmt.Errorf("failed to start heartbeat stub: %w", err)
	}
	defer stopStub()

	probe, err := session.NewConnectivityProbe(session.ProbeOptions{
		Endpoint:         heartbeatURL,
		Interval:         reliability.HeartbeatInterval,
		Timeout:          reliability.HeartbeatTimeout,
		FailureThreshold: reliability.FailureThreshold,
		Logger:           logger,
	})
	if err != nil {
		return "", err
	}

	var queue session.JobQueue
	if config.QueuePath != "" {
		sqliteQueue, err := session.NewSQLiteJobQueue(config.QueuePath)
		if err != nil {
			return "", err
		}
		defer sqliteQueue.Close()
		queue = sqliteQueue
		color.Blue("Queue: %s", config.QueuePath)
	} else {
		queue = session.NewMemoryJobQueue()
	}

	var objects session.ObjectStore = session.NewMemoryObjectStore()
	if config.OutDir != "" {
		fileObjects, err := session.NewFileObjectStore(config.OutDir)
		if err != nil {
			return "", err
		}
		objects = fileObjects
		color.Blue("Objects: %s", config.OutDir)
	}

	detector := newSimDetector()
	callbacks := session.NewCallbackChain(&consoleCallbacks{})
	if config.OutDir != "" {
		callbacks.Add(session.NewEventLogCallbacks(
			session.NewFileEventLogger(config.OutDir)))
	}

	countdown, err := scenario.CountdownDuration(reliability.ResumeCountdown)
	if err != nil {
		return "", fmt.Errorf("invalid countdown: %w", err)
	}

	recorder, err := session.NewRecorder(session.RecorderOptions{
		Exercise:   scenario.Exercise,
		Detector:   detector,
		Classifier: &simClassifier{net: network},
		Objects:    &gatedObjectStore{net: network, inner: objects},
		Metadata:   &gatedMetadataStore{net: network, inner: session.NewMemoryMetadataStore()},
		Queue:      queue,
		Probe:      probe,
		LinkReconnect: func(ctx context.Context) error {
			return nil
		},
		ResumeCountdown:  countdown,
		SetCompleteGuard: reliability.SetCompleteGuard,
		Logger:           logger,
		Callbacks:        callbacks,
	})
	if err != nil {
		return "", err
	}
	defer recorder.Stop()
	color.Cyan("Session: %s", recorder.SessionID())

	for i, step := range scenario.Steps {
		if err := runStep(ctx, step, recorder, detector, network, probe); err != nil {
			return recorder.State(), fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
	}

	// Give async completion work a moment to settle before reading the
	// final state.
	time.Sleep(200 * time.Millisecond)
	return recorder.State(), nil
}

func runStep(ctx context.Context, step *Step, recorder *session.Recorder, detector *simDetector, network *network, probe *session.ConnectivityProbe) error {
	switch step.Action {
	case "start":
		return recorder.Start(ctx)
	case "samples":
		count := step.Count
		if count <= 0 {
			count = 50
		}
		samples := make([]float64, count)
		detector.feedSamples(count)
		recorder.AppendSamples(samples, samples)
		recorder.AppendChart(samples[:count/5+1])
		return nil
	case "rep":
		rep, err := recorder.RecordRep(ctx, step.Peak, step.Valley)
		if err != nil {
			return err
		}
		color.White("  rep %d recorded (set %d)", rep.RepNumber, rep.SetNumber)
		return nil
	case "start_set":
		detector.startSet(step.Set)
		return nil
	case "set_complete":
		return recorder.CompleteSet(ctx, step.Set)
	case "offline":
		network.up.Store(false)
		probe.SetConnected(false)
		return nil
	case "online":
		network.up.Store(true)
		probe.SetConnected(true)
		return nil
	case "link_drop":
		recorder.Link().SetConnected(false)
		return nil
	case "link_restore":
		recorder.Link().SetConnected(true)
		return nil
	case "reconnect":
		return recorder.Link().AttemptReconnect(ctx)
	case "cancel":
		return recorder.RequestCancel()
	case "keep":
		return recorder.KeepSession()
	case "discard":
		return recorder.Discard(ctx)
	case "complete":
		return recorder.CompleteWorkout(ctx)
	case "wait":
		duration, err := step.WaitDuration(500 * time.Millisecond)
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(duration):
			return nil
		}
	case "expect":
		if state := recorder.State(); string(state) != step.State {
			return fmt.Errorf("expected state %q, got %q", step.State, state)
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

// consoleCallbacks prints transitions as the scenario drives them.
type consoleCallbacks struct {
	session.BaseSessionCallbacks
}

func (c *consoleCallbacks) AfterTransition(ctx context.Context, event *session.TransitionEvent) {
	color.Magenta("  %s: %s -> %s", event.Event, event.From, event.To)
}

func (c *consoleCallbacks) OnRollback(ctx context.Context, event *session.RollbackEvent) {
	if event.Checkpoint != nil {
		color.Yellow("  rollback to rep %d", event.Checkpoint.RepCount)
	}
}

func parseFlags() CLIConfig {
	var config CLIConfig
	flag.StringVar(&config.ScenarioFile, "file", "", "Path to the scenario YAML file")
	flag.StringVar(&config.ScenarioFile, "f", "", "Path to the scenario YAML file (shorthand)")
	flag.StringVar(&config.ConfigFile, "config", "", "Path to a reliability config YAML file")
	flag.StringVar(&config.QueuePath, "queue", "", "SQLite queue database path (default: in-memory)")
	flag.StringVar(&config.OutDir, "out", "", "Directory for uploaded objects and event logs")
	flag.DurationVar(&config.Timeout, "timeout", time.Minute, "Scenario timeout")
	flag.BoolVar(&config.Verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&config.JSON, "json", false, "Log in JSON format")
	flag.Parse()
	if config.ScenarioFile == "" && flag.NArg() > 0 {
		config.ScenarioFile = flag.Arg(0)
	}
	return config
}

func setupLogger(verbose, json bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if json {
		return session.NewJSONLoggerAt(level)
	}
	return session.NewLoggerAt(level)
}
