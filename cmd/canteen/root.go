package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/searchktools/canteen/app"
	"github.com/searchktools/canteen/config"
	"github.com/searchktools/canteen/core"
	"github.com/searchktools/canteen/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "canteen",
		Short:         "A single-threaded, event-driven HTTP/1.x server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRoutesCmd(), newVersionCmd())
	return root
}

type serveFlags struct {
	configPath  string
	addr        string
	capacity    int
	logLevel    string
	logFormat   string
	idleTimeout time.Duration
	stats       bool
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server with the demo routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			if err := registerDemoRoutes(a.Engine()); err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&f.addr, "addr", "", "Listen address (default from config, :8080)")
	flags.IntVar(&f.capacity, "capacity", core.DefaultCapacity, "Maximum simultaneous connections")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	flags.DurationVar(&f.idleTimeout, "idle-timeout", 0, "Close connections idle this long (0 disables)")
	flags.BoolVar(&f.stats, "stats", false, "Serve engine statistics at the configured stats path")
	return cmd
}

// load reads the config file and applies the flags the user set
// explicitly, which win over the file and the environment.
func (f *serveFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = f.addr
	}
	if flags.Changed("capacity") {
		cfg.Capacity = f.capacity
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if flags.Changed("idle-timeout") {
		cfg.IdleTimeout = f.idleTimeout
	}
	if flags.Changed("stats") {
		cfg.Stats.Enabled = f.stats
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the demo route table in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := core.NewEngine(core.WithLogger(logging.Nop()))
			if err := registerDemoRoutes(e); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHODS\tPATH")
			for _, r := range e.Routes().Routes() {
				fmt.Fprintf(w, "%s\t%s\n", strings.Join(r.Methods, ","), r.Path)
			}
			return w.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "canteen %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
