package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanthalf/zyncoder/config"
	"github.com/wanthalf/zyncoder/logging"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigPath string
	Verbose    bool

	// Overrides applied on top of the config file when set.
	Chip     string
	Consumer string
	Pins     []int
	Timeout  time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "zyncoder",
		Short: "Run callbacks on GPIO edge events",
		Long: `zyncoder claims GPIO input lines for edge detection and runs the
configured actions (log, OSC, MIDI) every time one of them changes state.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Verbose {
				logging.SetAllLevels(slog.LevelDebug)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (defaults are used when empty)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging for every category")
	cmd.PersistentFlags().StringVar(&opts.Chip, "chip", "", "GPIO chip name (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Consumer, "consumer", "", "consumer tag for claimed lines (overrides config)")
	cmd.PersistentFlags().IntSliceVar(&opts.Pins, "pins", nil, "pins to monitor with the log action (overrides config)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 0, "event wait timeout (overrides config)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newPinsCommand(opts))

	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return nil, err
		}
	}
	o.override(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *rootOptions) override(cfg *config.Config) {
	if o.Chip != "" {
		cfg.Chip = o.Chip
	}
	if o.Consumer != "" {
		cfg.Consumer = o.Consumer
	}
	if o.Timeout > 0 {
		cfg.WaitTimeout = o.Timeout
	}
	if len(o.Pins) > 0 {
		cfg.Pins = config.PinsFromList(o.Pins)
	}
}

func newPinsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "pins",
		Short:        "Print the resolved pin table",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "chip\t%s\tconsumer\t%s\ttimeout\t%s\n", cfg.Chip, cfg.Consumer, cfg.WaitTimeout)
			fmt.Fprintln(w, "PIN\tPULL\tDEBOUNCE\tACTIONS\tOSC\tMIDI")
			for _, p := range cfg.Pins {
				pull := p.Pull
				if pull == "" {
					pull = "none"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\tch %d cc %d\n",
					p.Pin, pull, p.Debounce, p.Actions, p.OSCAddress, p.MIDIChannel, p.MIDIController)
			}
			return w.Flush()
		},
	}
}
