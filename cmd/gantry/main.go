package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gantry-ci/gantry/internal/argutil"
	"github.com/gantry-ci/gantry/internal/config"
	"github.com/gantry-ci/gantry/internal/engine"
	"github.com/gantry-ci/gantry/internal/events"
	"github.com/gantry-ci/gantry/internal/logger"
	"github.com/gantry-ci/gantry/internal/metrics"
	gitremote "github.com/gantry-ci/gantry/internal/remote"
	"github.com/gantry-ci/gantry/internal/secrets"
	"github.com/gantry-ci/gantry/internal/tracing"
	gantrylog "github.com/gantry-ci/gantry/pkg/gantry/v1/log"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/remote"
)

const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitUsageError      = 2
	ExitSigIntBase      = 128
	ExitSigInt          = ExitSigIntBase + int(syscall.SIGINT)
	ExitSigTerm         = ExitSigIntBase + int(syscall.SIGTERM)
	DefaultLogLevel     = "info"
	DefaultLogFmt       = "text"
	DefaultEnv          = "dev"
	DefaultMetricsPath  = "gantry-metrics.prom"
	DefaultEventBusSize = 256
	TokenEnvVar         = "GANTRY_TOKEN"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// stringList collects a repeatable flag value.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		printVersion()
		os.Exit(ExitSuccess)
	}
	os.Exit(run(os.Args[1:]))
}

func printVersion() {
	fmt.Printf("gantry version %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	fmt.Printf("built: %s\n", buildDate)
	fmt.Printf("go version: %s\n", runtime.Version())
	fmt.Printf("os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func run(args []string) int {
	flags := flag.NewFlagSet("gantry", flag.ExitOnError)
	phaseArg := flags.String("phase", "", "Pipeline phase to run: build, test, deploy, validate-env, heal, detect-repo, policy, full (required)")
	envArg := flags.String("env", DefaultEnv, "Target environment (dev, staging, prod)")
	configRoot := flags.String("config-root", ".", "Directory searched for environment configuration files")
	repoRoot := flags.String("repo-root", ".", "Repository root the phase operates on")
	dryRun := flags.Bool("dry-run", false, "Report intended actions without executing external commands")
	prNumber := flags.Int("pr", 0, "Pull request number for status publication (0 disables)")
	repoArg := flags.String("repo", "", "Repository as owner/name for pull request operations")
	token := flags.String("token", "", "Hosting API token (falls back to "+TokenEnvVar+" environment variable)")
	branch := flags.String("branch", "", "Target branch for policy checks (defaults to configured default_branch)")
	logLevel := flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	logFormat := flags.String("log-format", DefaultLogFmt, "Log format (text, json)")
	metricsPath := flags.String("metrics-path", DefaultMetricsPath, "File to export text-format metrics to under CI")
	versionFlag := flags.Bool("version", false, "Print version information and exit")
	var overridePairs stringList
	flags.Var(&overridePairs, "set", "Configuration override as key=value (repeatable; highest precedence)")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -phase <phase> [flags...]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Runs one phase of the pipeline governance engine against a repository.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return ExitUsageError
	}

	if *versionFlag {
		printVersion()
		return ExitSuccess
	}

	if *phaseArg == "" {
		fmt.Fprintln(os.Stderr, "Error: -phase flag is required")
		flags.Usage()
		return ExitUsageError
	}
	if *logFormat != "text" && *logFormat != "json" {
		fmt.Fprintln(os.Stderr, "Error: -log-format must be 'text' or 'json'")
		return ExitUsageError
	}

	phase, err := engine.ParsePhase(*phaseArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsageError
	}
	env, err := config.ParseEnvironment(*envArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsageError
	}
	overrides, err := argutil.ParseOverrides(overridePairs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsageError
	}

	var repoRef remote.RepoRef
	if *repoArg != "" {
		repoRef, err = remote.ParseRepoRef(*repoArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitUsageError
		}
	}
	apiToken := *token
	if apiToken == "" {
		apiToken = os.Getenv(TokenEnvVar)
	}

	var logWriter io.Writer = os.Stderr
	log := logger.NewLogger(*logLevel, *logFormat, logWriter)
	log = log.With("gantry_version", version)

	log.Infof("Gantry v%s starting phase %s (env %s)...", version, phase, env)
	if *dryRun {
		log.Infof("Dry run mode enabled.")
	}

	eventBus := events.NewChannelEventBus(DefaultEventBusSize, log)
	defer eventBus.Close()

	tracerProvider, err := tracing.NewProviderFromEnv(context.Background())
	if err != nil {
		log.Warnf("Failed to initialize tracing from environment: %v. Using NoOp tracer.", err)
		tracerProvider, _ = tracing.NewNoOpProvider()
	}

	metricsProvider := metrics.NewPrometheusRegistryProvider()
	pipelineMetrics := metrics.NewPipelineMetrics(metricsProvider.Registry())

	tracker := secrets.NewTracker()
	if apiToken != "" {
		tracker.Add(apiToken)
	}

	var remoteClient remote.Client
	if apiToken != "" && repoRef.Owner != "" {
		remoteClient = gitremote.NewGitHubClient(context.Background(), apiToken)
	} else if *prNumber > 0 {
		log.Warnf("Pull request %d given without -repo and a token; status publication disabled.", *prNumber)
	}

	// Metric updates ride the event path synchronously; downstream
	// subscribers still see every event through the channel bus.
	bus := events.NewMetricsEventListener(eventBus, pipelineMetrics, log)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	defer close(sigChan)

	var receivedSignal os.Signal
	var sigMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			sigMu.Lock()
			receivedSignal = sig
			sigMu.Unlock()
			cancelRun()
		case <-runCtx.Done():
		}
	}()
	defer wg.Wait()

	eng := engine.New(engine.Options{
		Log:             log,
		Bus:             bus,
		Remote:          remoteClient,
		Tracker:         tracker,
		MetricsGatherer: metricsProvider.Registry(),
		MetricsPath:     *metricsPath,
	})

	summary, runErr := eng.Run(runCtx, &engine.RunArgs{
		Phase:      phase,
		Env:        env,
		ConfigRoot: *configRoot,
		RepoRoot:   *repoRoot,
		DryRun:     *dryRun,
		Overrides:  overrides,
		PR:         *prNumber,
		Repo:       repoRef,
		Token:      apiToken,
		Branch:     *branch,
	})

	// Release the signal goroutine now: the deferred wg.Wait runs before
	// the deferred cancelRun, so without this the exit path would block
	// forever on a run that never received a signal.
	cancelRun()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if shutdownErr := tracerProvider.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warnf("Error shutting down tracer provider: %v", shutdownErr)
	}

	printSummary(log, tracker, phase, summary, runErr)

	sigMu.Lock()
	finalSignal := receivedSignal
	sigMu.Unlock()
	return determineExitCode(summary, runErr, finalSignal, log)
}

func printSummary(log gantrylog.Logger, tracker *secrets.Tracker, phase engine.Phase, summary *engine.Summary, runErr error) {
	if summary == nil {
		log.Warnf("Run finished before any step was recorded.")
		if runErr != nil {
			log.Errorf("Boot failure: %s", tracker.Scrub(runErr.Error()))
		}
		return
	}

	statusLine := fmt.Sprintf("Phase '%s' finished. Status: %s", phase, summary.Overall)
	detailLine := fmt.Sprintf("Duration: %v. Steps recorded: %d",
		summary.TotalDuration.Truncate(time.Millisecond), len(summary.Records))

	if summary.Overall == engine.StatusPass && runErr == nil {
		log.Infof("%s. %s", statusLine, detailLine)
		return
	}
	log.Errorf("%s. %s", statusLine, detailLine)
	for _, rec := range summary.Records {
		if rec.Status != engine.StatusPass {
			log.Errorf("  - %s '%s': %s", rec.Kind, rec.Name, rec.Detail)
		}
	}
	if runErr != nil {
		log.Errorf("Run error: %s", tracker.Scrub(runErr.Error()))
	}
}

func determineExitCode(summary *engine.Summary, runErr error, sig os.Signal, log gantrylog.Logger) int {
	if sig != nil {
		switch sig {
		case syscall.SIGINT:
			log.Warnf("Run interrupted by signal: SIGINT")
			return ExitSigInt
		case syscall.SIGTERM:
			log.Warnf("Run terminated by signal: SIGTERM")
			return ExitSigTerm
		default:
			log.Warnf("Run terminated by signal: %v", sig)
			return ExitFailure
		}
	}
	if runErr != nil {
		return ExitFailure
	}
	if summary != nil && summary.Overall == engine.StatusFail {
		log.Errorf("Run finished but reported overall status as fail.")
		return ExitFailure
	}
	return ExitSuccess
}
