package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-ai-diagnostics/pkg/classify"
	"github.com/opscart/k8s-ai-diagnostics/pkg/cluster"
	"github.com/opscart/k8s-ai-diagnostics/pkg/config"
	"github.com/opscart/k8s-ai-diagnostics/pkg/detect"
	"github.com/opscart/k8s-ai-diagnostics/pkg/events"
	"github.com/opscart/k8s-ai-diagnostics/pkg/executor"
	"github.com/opscart/k8s-ai-diagnostics/pkg/learner"
	"github.com/opscart/k8s-ai-diagnostics/pkg/log"
	"github.com/opscart/k8s-ai-diagnostics/pkg/memory"
	"github.com/opscart/k8s-ai-diagnostics/pkg/metrics"
	"github.com/opscart/k8s-ai-diagnostics/pkg/monitor"
	"github.com/opscart/k8s-ai-diagnostics/pkg/planner"
	"github.com/opscart/k8s-ai-diagnostics/pkg/reason"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Autonomous remediation agent for Kubernetes workloads",
	Long: `The agent continuously observes workload health in one namespace,
plans corrective actions, applies them without human approval, and
remembers which actions worked so recurring failures are fixed in a
single shot.`,
	Version: Version,
	RunE:    runMonitor,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"k8s-ai-diagnostics agent %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.Flags()
	flags.StringP("namespace", "n", config.DefaultNamespace, "Kubernetes namespace to monitor")
	flags.IntP("interval", "i", int(config.DefaultInterval/time.Second), "Monitoring interval in seconds")
	flags.BoolP("fresh", "f", false, "Start with fresh pattern memory")
	flags.Bool("no-auto", false, "Disable auto-remediation (observe and plan only)")
	flags.String("kubeconfig", "", "Path to kubeconfig (defaults to in-cluster config or ~/.kube/config)")
	flags.String("data-dir", "", "Directory holding the pattern database")
	flags.String("config", "", "Path to YAML config file")
	flags.String("metrics-addr", "", "Address to serve Prometheus metrics on (disabled when empty)")

	rootCmd.AddCommand(memoryCmd)
}

// resolveConfig layers flags over the config file over defaults.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("namespace") {
		cfg.Namespace, _ = flags.GetString("namespace")
	}
	if flags.Changed("interval") {
		seconds, _ := flags.GetInt("interval")
		cfg.Interval = config.Duration(time.Duration(seconds) * time.Second)
	}
	if flags.Changed("kubeconfig") {
		cfg.Kubeconfig, _ = flags.GetString("kubeconfig")
	}
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if noAuto, _ := flags.GetBool("no-auto"); noAuto {
		cfg.AutoRemediate = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	fresh, _ := cmd.Flags().GetBool("fresh")

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	accessor, err := cluster.NewAccessor(cfg.Kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to connect to cluster: %w", err)
	}

	store, err := memory.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open pattern memory: %w", err)
	}
	defer store.Close()

	var reasoner detect.Detector
	if cfg.Reasoner.Enabled {
		r := reason.NewReasoner(cfg.Reasoner, cfg.ReasonerAPIKey())
		r.HistoryFor = func(fingerprint string) []string {
			pattern, found, err := store.Lookup(fingerprint)
			if err != nil || !found {
				return nil
			}
			return []string{fmt.Sprintf("%s tried %d times, %d succeeded",
				pattern.Action, pattern.TotalCount, pattern.SuccessCount)}
		}
		reasoner = r
	} else {
		log.Warn("external reasoning disabled, unmatched issues will be skipped")
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go logEvents(broker.Subscribe())

	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr)
		logger := log.WithComponent("metrics")
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	mon := monitor.New(
		monitor.Options{
			Namespace:     cfg.Namespace,
			Interval:      cfg.Interval.Std(),
			AutoRemediate: cfg.AutoRemediate,
			Fresh:         fresh,
		},
		accessor,
		classify.NewClassifier(accessor, cfg.LogTail),
		planner.NewPlanner(store, detect.Detectors(), reasoner),
		executor.NewExecutor(accessor),
		learner.NewLearner(store, broker),
		store,
		broker,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := mon.Run(ctx); err != nil {
		return err
	}

	printSummary(mon.Stats())
	return nil
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for event := range sub {
		logger.Debug().
			Str("type", string(event.Type)).
			Fields(map[string]interface{}{"meta": event.Metadata}).
			Msg(event.Message)
	}
}

func printSummary(stats monitor.SessionStats) {
	fmt.Println()
	fmt.Println("Session summary")
	fmt.Printf("  Iterations:        %d\n", stats.Iterations)
	fmt.Printf("  Issues observed:   %d\n", stats.IssuesObserved)
	fmt.Printf("  Attempts:          %d\n", stats.Attempts)
	fmt.Printf("  Successes:         %d\n", stats.Successes)
	fmt.Printf("  Success rate:      %.1f%%\n", stats.SuccessRate()*100)
	fmt.Printf("  Patterns learned:  %d\n", stats.PatternsLearned)
}
