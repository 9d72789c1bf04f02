package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanthalf/zyncoder/config"
)

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zyncoder.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chip: gpiochip4\npins: [{pin: 23, pull: up}]\n"), 0o644))

	opts := &rootOptions{
		ConfigPath: path,
		Consumer:   "test",
		Pins:       []int{2, 3},
		Timeout:    50 * time.Millisecond,
	}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "gpiochip4", cfg.Chip)
	assert.Equal(t, "test", cfg.Consumer)
	assert.Equal(t, 50*time.Millisecond, cfg.WaitTimeout)
	assert.Equal(t, config.PinsFromList([]int{2, 3}), cfg.Pins)
}

func TestLoadConfigRejectsBadOverride(t *testing.T) {
	opts := &rootOptions{Pins: []int{99}}
	_, err := opts.loadConfig()
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestPinsCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"pins", "--pins", "17,27"})

	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "gpiochip0")
	assert.Contains(t, text, "/zyncoder/pin/17")
	assert.Contains(t, text, "/zyncoder/pin/27")
	assert.NotContains(t, text, "/zyncoder/pin/5")
}

func TestRunRequiresConfigForWatch(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--watch"})

	assert.ErrorContains(t, cmd.Execute(), "--watch needs --config")
}

func TestOpenOutputsWithoutMIDIDriver(t *testing.T) {
	cfg := config.Default()
	cfg.MIDI.OutPort = "zynmidirouter"
	cfg.Pins = []config.Pin{{Pin: 17, Actions: []string{config.ActionMIDI}}}
	require.NoError(t, cfg.Validate())

	_, closeOut, err := openOutputs(cfg)
	defer closeOut()

	assert.ErrorIs(t, err, ErrNoMIDIDriver)
}

func TestOpenOutputsLogOnly(t *testing.T) {
	out, closeOut, err := openOutputs(config.Default())
	defer closeOut()

	require.NoError(t, err)
	assert.Nil(t, out.OSC)
	assert.Nil(t, out.MIDI)
}
