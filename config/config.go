// Package config loads the pin map and runtime settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wanthalf/zyncoder/callbacks"
	"github.com/wanthalf/zyncoder/devices/gpio"
)

var ErrInvalid = errors.New("config: invalid")

// DefaultPins are the header pins monitored when none are configured.
var DefaultPins = []int{17, 27, 5, 6}

const (
	ActionLog  = "log"
	ActionOSC  = "osc"
	ActionMIDI = "midi"
)

type Config struct {
	Chip           string        `yaml:"chip"`
	Consumer       string        `yaml:"consumer"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`
	FatalCallbacks bool          `yaml:"fatal_callbacks"`
	// LogControl is the OSC listen address for runtime log levels; empty disables it.
	LogControl string     `yaml:"log_control"`
	OSC        OSCConfig  `yaml:"osc"`
	MIDI       MIDIConfig `yaml:"midi"`
	Pins       []Pin      `yaml:"pins"`
}

type OSCConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MIDIConfig struct {
	OutPort string `yaml:"out_port"`
}

type Pin struct {
	Pin      int           `yaml:"pin"`
	Pull     string        `yaml:"pull"`
	Debounce time.Duration `yaml:"debounce"`
	Actions  []string      `yaml:"actions"`

	OSCAddress     string `yaml:"osc_address"`
	MIDIChannel    uint8  `yaml:"midi_channel"`
	MIDIController uint8  `yaml:"midi_controller"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	c := &Config{
		Chip:        gpio.DefaultChip,
		Consumer:    gpio.DefaultConsumer,
		WaitTimeout: callbacks.DefaultWaitTimeout,
		Pins:        PinsFromList(DefaultPins),
	}
	return c
}

// PinsFromList returns pins that only log their edges.
func PinsFromList(pins []int) []Pin {
	c := Config{Pins: make([]Pin, 0, len(pins))}
	for _, p := range pins {
		c.Pins = append(c.Pins, Pin{Pin: p})
	}
	c.fillDefaults()
	return c.Pins
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a YAML document over the defaults and validates the result.
func Read(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) fillDefaults() {
	for i := range c.Pins {
		p := &c.Pins[i]
		if len(p.Actions) == 0 {
			p.Actions = []string{ActionLog}
		}
		if p.OSCAddress == "" {
			p.OSCAddress = fmt.Sprintf("/zyncoder/pin/%d", p.Pin)
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Chip == "" {
		errs = append(errs, errors.New("chip is required"))
	}
	if c.WaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("wait_timeout must be positive, got %s", c.WaitTimeout))
	}
	seen := map[int]bool{}
	for _, p := range c.Pins {
		if p.Pin < 0 || p.Pin >= callbacks.NumPins {
			errs = append(errs, fmt.Errorf("pin %d out of range [0, %d)", p.Pin, callbacks.NumPins))
		}
		if seen[p.Pin] {
			errs = append(errs, fmt.Errorf("pin %d configured twice", p.Pin))
		}
		seen[p.Pin] = true
		if _, err := gpio.ParsePull(p.Pull); err != nil {
			errs = append(errs, fmt.Errorf("pin %d: %w", p.Pin, err))
		}
		if p.Debounce < 0 {
			errs = append(errs, fmt.Errorf("pin %d: negative debounce", p.Pin))
		}
		if p.MIDIChannel > 15 {
			errs = append(errs, fmt.Errorf("pin %d: midi_channel %d out of range", p.Pin, p.MIDIChannel))
		}
		if p.MIDIController > 127 {
			errs = append(errs, fmt.Errorf("pin %d: midi_controller %d out of range", p.Pin, p.MIDIController))
		}
		for _, a := range p.Actions {
			switch a {
			case ActionLog:
			case ActionOSC:
				if c.OSC.Host == "" || c.OSC.Port == 0 {
					errs = append(errs, fmt.Errorf("pin %d: osc action needs osc.host and osc.port", p.Pin))
				}
			case ActionMIDI:
				if c.MIDI.OutPort == "" {
					errs = append(errs, fmt.Errorf("pin %d: midi action needs midi.out_port", p.Pin))
				}
			default:
				errs = append(errs, fmt.Errorf("pin %d: unknown action %q", p.Pin, a))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Uses reports whether any pin has the given action.
func (c *Config) Uses(action string) bool {
	for _, p := range c.Pins {
		for _, a := range p.Actions {
			if a == action {
				return true
			}
		}
	}
	return false
}
