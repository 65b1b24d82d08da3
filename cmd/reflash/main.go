package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/franksops/reflash/config"
	"github.com/franksops/reflash/dispatch"
	"github.com/franksops/reflash/engine"
	"github.com/franksops/reflash/logging"
	"github.com/franksops/reflash/probe"
	"github.com/franksops/reflash/provider"
	"github.com/franksops/reflash/store"
	"github.com/franksops/reflash/system"
	"github.com/franksops/reflash/ui"
)

// Process exit codes.
const (
	exitShutdown = 0
	exitFatal    = 1
	exitOperator = 2
)

const journalFile = "journal.db"

// exitError carries a process exit code out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitShutdown
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "reflash: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "reflash: %v\n", err)
	return exitFatal
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "reflash",
		Short:         "Kiosk disk imaging utility",
		Long:          "Load a disk image onto the target device, or archive the device to an image, from a network depot or local media.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := runKiosk(cmd.Context(), configPath)
			if code == exitShutdown && err == nil {
				return nil
			}
			return &exitError{code: code, err: err}
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML configuration")

	history := &cobra.Command{
		Use:   "history",
		Short: "List the transfers journaled since boot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := store.NewBoltStore(filepath.Join(cfg.StateDir, journalFile))
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := st.ListJobs()
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), jobs)
		},
	}
	root.AddCommand(history)
	return root
}

// runKiosk wires the components and loops the menu. The returned code is
// the process exit code.
func runKiosk(ctx context.Context, configPath string) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return exitFatal, err
	}

	logFile, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return exitFatal, fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	logging.Configure(logging.Config{Level: cfg.LogLevel, Output: logFile, Service: "reflash"})
	log := logging.WithComponent("main")

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		log.Error().Err(err).Str(logging.FieldPath, cfg.StateDir).Msg("create state directory")
		return exitFatal, fmt.Errorf("create state directory: %w", err)
	}
	journal, err := store.NewBoltStore(filepath.Join(cfg.StateDir, journalFile))
	if err != nil {
		log.Error().Err(err).Msg("open journal")
		return exitFatal, err
	}
	defer journal.Close()

	prober := probe.NewProber(cfg, probe.CommandPinger{}, probe.SystemMounter{})
	caps := prober.Probe(ctx)
	log.Info().Str(logging.FieldCaps, caps.String()).Msg("environment probed")
	if ctx.Err() != nil {
		return exitShutdown, nil
	}
	if err := probe.Assess(caps, cfg.RequireNetwork); err != nil {
		log.Error().Err(err).Str(logging.FieldCaps, caps.String()).Msg("environment unusable")
		return exitFatal, err
	}

	files := provider.NewLocalProvider(nil)
	tracker := engine.NewJobTracker(journal, engine.DefaultCheckpointConfig)
	executor := engine.NewExecutor(caps, engine.NewCommandLauncher(cfg), files,
		engine.WithTracker(tracker),
		engine.WithTimeouts(cfg.SettleTimeout, cfg.KillGrace))

	presenter := ui.NewPresenter(banner(cfg, caps))
	d := dispatch.New(cfg, caps, executor, files, presenter, system.Rebooter{})

	err = d.Run(ctx)
	switch {
	case ctx.Err() != nil:
		log.Info().Msg("shutdown on signal")
		return exitShutdown, nil
	case err != nil:
		log.Error().Err(err).Msg("menu failed")
		return exitFatal, err
	}
	return exitOperator, nil
}

func banner(cfg config.Config, caps probe.Capabilities) string {
	return fmt.Sprintf("target %s | depot %s | %s", cfg.TargetDevice, cfg.DepotSource(), caps)
}

func printHistory(w io.Writer, jobs []*store.JobRecord) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "no transfers recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDIRECTION\tMEDIUM\tSTATE\tPERCENT\tSOURCE\tTARGET\tERROR")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
			j.CreatedAt.Local().Format(time.DateTime), j.Direction, j.Medium, j.State,
			j.Percent, j.SourcePath, j.TargetPath, j.Error)
	}
	return tw.Flush()
}
