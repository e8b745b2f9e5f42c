package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nexuscortex/internal/config"
	"nexuscortex/internal/intent"
	"nexuscortex/internal/kernel"
	"nexuscortex/internal/logging"
	"nexuscortex/internal/memory"
	"nexuscortex/internal/monitor"
	"nexuscortex/internal/planner"
	"nexuscortex/internal/telemetry"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Nexus Cortex - event-driven ambient cognitive kernel",
	Long: `Nexus Cortex is a quiet ambient companion kernel.

It runs a discrete-time reactor over a single shared cognitive state:
perception decays into latents, a local planner proposes intents, and a
crystallization gate decides if and when a thought becomes speech.
Silence is the default output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKernel(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kernel version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("nexus cortex 0.3.0")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "nexus.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runKernel(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	semantic, err := memory.OpenSqliteSemantic(cfg.SemanticStorePath)
	if err != nil {
		return err
	}
	defer semantic.Close()

	recorder := telemetry.NewRecorder()
	pipeline := memory.NewPipeline(
		memory.NewInMemoryEpisodic(),
		semantic,
		memory.Tunables{
			EpisodicTTLTicks: cfg.EpisodicTTLTicks,
			RequireConsent:   cfg.MemoryConsent,
		},
		recorder,
	)

	reactor := kernel.NewReactor(
		[]kernel.Sidecar{
			monitor.New(),
			intent.NewManager(cfg.DissolutionThreshold, recorder),
			pipeline,
		},
		pipeline,
		kernel.GateTunables{
			QuiescenceMinTicks:    cfg.QuiescenceMinTicks,
			SoftCommitMinAgeTicks: cfg.SoftCommitMinAgeTicks,
			TickMs:                cfg.TickMs,
		},
		kernel.PresenceTunables{AttentiveWindowTicks: cfg.AttentiveWindowTicks},
	)

	outbox := make(chan kernel.UIEvent, 64)
	driver := kernel.NewDriver(kernel.DriverConfig{
		Reactor:  reactor,
		Consent:  pipeline,
		Recorder: recorder,
		Logger:   log.Named("kernel"),
		Interval: time.Duration(cfg.TickMs) * time.Millisecond,
		Outbox:   outbox,
		Realizer: consoleRealizer{},
	})

	driver.SetPlanner(planner.NewClient(planner.Options{
		BaseURL: cfg.PlannerURL,
		Timeout: time.Duration(cfg.PlannerTimeoutMs) * time.Millisecond,
		Logger:  log,
	}, driver.Submit))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return driver.Run(ctx) })
	g.Go(func() error { return consumeOutbox(ctx, outbox) })
	g.Go(func() error { return readStdin(ctx, driver, log.Named("ui")) })

	if watcher, werr := config.NewWatcher(configPath, func(config.Config) {
		// Wiring-level fields need a restart; reloads only confirm the
		// file still parses so edits fail fast.
	}, log); werr == nil {
		g.Go(func() error { return watcher.Run(ctx) })
	} else {
		log.Debug("config watcher unavailable", zap.Error(werr))
	}

	log.Info("nexus cortex running",
		zap.Uint64("tick_ms", cfg.TickMs),
		zap.String("planner", cfg.PlannerURL))

	return g.Wait()
}

// consoleRealizer voices committed speech on stdout.
type consoleRealizer struct{}

func (consoleRealizer) Speak(id kernel.OutputId, text string) {
	if text != "" {
		fmt.Printf("\n[%s] %s\n", id, text)
	}
}

// consumeOutbox renders UI events for the terminal shell.
func consumeOutbox(ctx context.Context, outbox <-chan kernel.UIEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-outbox:
			switch ev.Kind {
			case kernel.UIPresenceUpdate:
				fmt.Printf("· presence: %s\n", ev.Presence)
			case kernel.UIOutputEvent:
				if ev.Output != nil && ev.Output.Content != "" {
					fmt.Printf("» (%s) %s\n", ev.Output.Status, ev.Output.Content)
				}
			case kernel.UIAskMemoryConsent:
				fmt.Printf("? remember this about you? reply 'yes %s' or 'no %s'\n",
					ev.ConsentKey, ev.ConsentKey)
			case kernel.UIContextSnapshot:
				for _, item := range ev.Context {
					fmt.Printf("  [%s] %s\n", item.Role, item.Content)
				}
			case kernel.UIAccessDenied:
				fmt.Println("· suspended; resume to attach")
			}
		}
	}
}

// readStdin is the text adapter: each line becomes an input event. Control
// lines (suspend/resume/mic/attach, consent replies) become UiCommands.
func readStdin(ctx context.Context, driver *kernel.Driver, log *zap.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			submitLine(driver, strings.TrimSpace(line), log)
		}
	}
}

func submitLine(driver *kernel.Driver, line string, log *zap.Logger) {
	if line == "" {
		return
	}

	var cmd *kernel.UiCommand
	switch {
	case line == "/suspend":
		cmd = &kernel.UiCommand{Kind: kernel.UiSuspend}
	case line == "/resume":
		cmd = &kernel.UiCommand{Kind: kernel.UiResume}
	case line == "/mic on":
		cmd = &kernel.UiCommand{Kind: kernel.UiToggleMic, MicOn: true}
	case line == "/mic off":
		cmd = &kernel.UiCommand{Kind: kernel.UiToggleMic, MicOn: false}
	case line == "/attach":
		cmd = &kernel.UiCommand{Kind: kernel.UiAttach}
	case strings.HasPrefix(line, "yes "):
		cmd = &kernel.UiCommand{
			Kind:       kernel.UiConsentResolved,
			ConsentKey: strings.TrimSpace(strings.TrimPrefix(line, "yes ")),
			Consent:    kernel.ConsentGranted,
		}
	case strings.HasPrefix(line, "no "):
		cmd = &kernel.UiCommand{
			Kind:       kernel.UiConsentResolved,
			ConsentKey: strings.TrimSpace(strings.TrimPrefix(line, "no ")),
			Consent:    kernel.ConsentDeclined,
		}
	}

	var ev kernel.Event
	if cmd != nil {
		ev = kernel.Event{Ui: cmd}
	} else {
		ev = kernel.Event{Input: &kernel.InputEvent{
			Source:  "stdin",
			Content: kernel.TextContent(line),
		}}
	}
	if !driver.Submit(ev) {
		log.Warn("input dropped")
	}
}
