package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"
	"unicode"

	"github.com/nathantp/psrs/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// State shared by every command, filled in before any of them runs
type cliState struct {
	cfgPath string
	cfg     *config.Config
	logger  *logrus.Logger

	// Persistent overrides, only applied when set on the command line
	procs          int
	transport      string
	localWorkers   int
	lockstep       bool
	verbose        bool
	connectTimeout time.Duration
}

func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

// Load the config file and apply any flags the user actually set on top
func (self *cliState) load(cmd *cobra.Command) error {
	cfg, err := config.Load(self.cfgPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("procs") {
		cfg.Procs = self.procs
	}
	if flags.Changed("transport") {
		cfg.Transport = self.transport
	}
	if flags.Changed("workers") {
		cfg.LocalWorkers = self.localWorkers
	}
	if flags.Changed("lockstep") {
		cfg.Lockstep = self.lockstep
	}
	if flags.Changed("verbose") {
		cfg.Verbose = self.verbose
	}
	if flags.Changed("connect-timeout") {
		cfg.ConnectTimeout = self.connectTimeout
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	self.cfg = cfg
	self.logger = newLogger(cfg.Verbose)
	return nil
}

// Accept runs_dir and runsDir style spellings for runs-dir, matching the keys
// used in the config file
func normalizeFlag(f *pflag.FlagSet, name string) pflag.NormalizedName {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_':
			b.WriteRune('-')
		case unicode.IsUpper(r) && i > 0:
			b.WriteRune('-')
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return pflag.NormalizedName(b.String())
}

func newRootCmd() *cobra.Command {
	state := &cliState{}

	root := &cobra.Command{
		Use:           "psrs",
		Short:         "Parallel Sorting by Regular Sampling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load(cmd)
		},
	}

	root.SetGlobalNormalizationFunc(normalizeFlag)

	pf := root.PersistentFlags()
	pf.StringVar(&state.cfgPath, "config", config.DefaultPath, "YAML config file")
	pf.IntVarP(&state.procs, "procs", "p", 4, "Number of ranks")
	pf.StringVar(&state.transport, "transport", config.TransportLocal, "Rank transport: local or websocket")
	pf.IntVar(&state.localWorkers, "workers", 1, "Goroutines per rank for the local sort")
	pf.BoolVar(&state.lockstep, "lockstep", false, "Synchronize ranks after every local phase")
	pf.BoolVarP(&state.verbose, "verbose", "v", false, "Log every phase of every rank")
	pf.DurationVar(&state.connectTimeout, "connect-timeout", 10*time.Second, "Bound on establishing the websocket mesh")

	root.AddCommand(
		newSortCmd(state),
		newGenCmd(state),
		newCheckCmd(state),
		newBenchCmd(state),
		newWorkerCmd(state),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error occurred: %v\n", err)
		os.Exit(1)
	}
}
