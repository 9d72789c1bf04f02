package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hypebeast/go-osc/osc"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/wanthalf/zyncoder/binder"
	"github.com/wanthalf/zyncoder/callbacks"
	"github.com/wanthalf/zyncoder/config"
	"github.com/wanthalf/zyncoder/devices/gpio"
	"github.com/wanthalf/zyncoder/logging"
)

// ErrNoMIDIDriver means a pin uses the midi action but the binary was built
// without a MIDI driver. Build with -tags midicat.
var ErrNoMIDIDriver = errors.New("no MIDI driver compiled in (build with -tags midicat)")

type runOptions struct {
	*rootOptions
	Watch      bool
	LogControl string
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor the configured pins until interrupted",
		Long: `Claim every configured pin for both-edge detection, register its actions
and dispatch edge events until SIGINT or SIGTERM.

Example:
  zyncoder run
  zyncoder run --pins 17,27 -v
  zyncoder run --config /etc/zyncoder.yaml --watch`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload pins when the config file changes (requires --config)")
	cmd.Flags().StringVar(&opts.LogControl, "log-control", "", "OSC address for runtime log level control, e.g. "+logging.DefaultControlAddr)

	return cmd
}

func run(ctx context.Context, opts *runOptions) error {
	log := logging.Get(logging.APP)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Watch && opts.ConfigPath == "" {
		return errors.New("--watch needs --config")
	}

	if addr := firstNonEmpty(opts.LogControl, cfg.LogControl); addr != "" {
		go func() {
			if err := logging.ServeLevelControl(addr); err != nil {
				logging.Get(logging.META).Error("OSC log level control stopped", "addr", addr, "err", err)
			}
		}()
	}

	chip, err := gpio.Open(cfg.Chip, cfg.Consumer)
	if err != nil {
		return err
	}
	defer chip.Close()

	out, closeOut, err := openOutputs(cfg)
	if err != nil {
		return err
	}
	defer closeOut()

	disp := callbacks.New(chip,
		callbacks.WithWaitTimeout(cfg.WaitTimeout),
		callbacks.WithFatalCallbacks(cfg.FatalCallbacks),
	)
	pins := binder.New(chip, disp, out)
	if err := pins.Apply(cfg.Pins); err != nil {
		log.Warn("Some pins could not be registered", "err", err)
	}
	defer pins.ReleaseAll()

	if err := disp.Start(); err != nil {
		return err
	}
	defer disp.Stop()

	reloads := make(chan *config.Config)
	if opts.Watch {
		go func() {
			err := config.Watch(ctx, opts.ConfigPath, func(next *config.Config) {
				select {
				case reloads <- next:
				case <-ctx.Done():
				}
			})
			if err != nil {
				log.Error("Config watch stopped", "err", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down")
			return nil
		case next := <-reloads:
			if err := pins.Reconfigure(next.Pins); err != nil {
				log.Warn("Config reload partially applied", "err", err)
			}
		case <-disp.Done():
			if disp.Running() {
				// a callback restarted the loop
				continue
			}
			return disp.Err()
		}
	}
}

// openOutputs connects the OSC and MIDI destinations the pins need.
func openOutputs(cfg *config.Config) (binder.Outputs, func(), error) {
	var out binder.Outputs
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Uses(config.ActionOSC) {
		out.OSC = osc.NewClient(cfg.OSC.Host, cfg.OSC.Port)
		logging.Get(logging.APP).Info("Sending edge actions over OSC", "host", cfg.OSC.Host, "port", cfg.OSC.Port)
	}
	if cfg.Uses(config.ActionMIDI) {
		if drivers.Get() == nil {
			return out, closeAll, ErrNoMIDIDriver
		}
		port, err := midi.FindOutPort(cfg.MIDI.OutPort)
		if err != nil {
			return out, closeAll, fmt.Errorf("midi out port %q: %w", cfg.MIDI.OutPort, err)
		}
		if err := port.Open(); err != nil {
			return out, closeAll, fmt.Errorf("open midi out port %q: %w", cfg.MIDI.OutPort, err)
		}
		closers = append(closers, func() {
			port.Close()
			midi.CloseDriver()
		})
		out.MIDI = port
		logging.Get(logging.APP).Info("Sending edge actions over MIDI", "port", port.String())
	}
	return out, closeAll, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
