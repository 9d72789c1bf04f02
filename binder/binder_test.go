package binder

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	midi "gitlab.com/gomidi/midi/v2"

	"github.com/wanthalf/zyncoder/callbacks"
	"github.com/wanthalf/zyncoder/config"
	devtest "github.com/wanthalf/zyncoder/devices/devicestesting"
)

func newTestBinder(t *testing.T, out Outputs) (*Binder, *callbacks.Dispatcher, *devtest.MockProvider) {
	t.Helper()
	provider := devtest.NewMockProvider()
	disp := callbacks.New(provider, callbacks.WithWaitTimeout(10*time.Millisecond))
	t.Cleanup(disp.Stop)
	return New(provider, disp, out), disp, provider
}

func TestApplyRegistersEveryPin(t *testing.T) {
	b, disp, provider := newTestBinder(t, Outputs{})

	require.NoError(t, b.Apply(config.Default().Pins))

	assert.Equal(t, []int{5, 6, 17, 27}, b.Pins())
	assert.Equal(t, []int{5, 6, 17, 27}, provider.Held())
	tbl := disp.Table()
	assert.Equal(t, 4, tbl.Len())
	assert.Equal(t, 2, provider.RequestOptions(17))
}

func TestApplySkipsPinsThatFail(t *testing.T) {
	b, disp, provider := newTestBinder(t, Outputs{})
	provider.SetRequestError(27, errors.New("busy"))

	err := b.Apply(config.PinsFromList([]int{17, 27}))

	assert.ErrorContains(t, err, "busy")
	assert.Equal(t, []int{17}, b.Pins())
	assert.True(t, disp.Entry(27).Unused())
	assert.False(t, disp.Entry(17).Unused())
}

func TestApplyMissingOutput(t *testing.T) {
	b, _, provider := newTestBinder(t, Outputs{})
	pin := config.Pin{Pin: 4, Actions: []string{config.ActionMIDI}}

	assert.ErrorContains(t, b.Apply([]config.Pin{pin}), "no MIDI out port")
	assert.Empty(t, provider.Held())
}

func TestApplyUnbindsHeldPinWhenOutputMissing(t *testing.T) {
	b, disp, provider := newTestBinder(t, Outputs{})
	require.NoError(t, b.Apply(config.PinsFromList([]int{17})))

	err := b.Apply([]config.Pin{{Pin: 17, Actions: []string{config.ActionMIDI}}})

	assert.ErrorContains(t, err, "no MIDI out port")
	assert.Empty(t, b.Pins())
	assert.Empty(t, provider.Held())
	assert.True(t, disp.Entry(17).Unused())
}

func TestApplyDropsRemovedPins(t *testing.T) {
	b, disp, provider := newTestBinder(t, Outputs{})
	require.NoError(t, b.Apply(config.PinsFromList([]int{17, 27})))
	require.NoError(t, b.Apply(config.PinsFromList([]int{27, 22})))

	assert.Equal(t, []int{22, 27}, b.Pins())
	assert.Equal(t, []int{22, 27}, provider.Held())
	assert.True(t, disp.Entry(17).Unused())
}

func TestApplyRerequestsChangedLine(t *testing.T) {
	b, _, provider := newTestBinder(t, Outputs{})
	require.NoError(t, b.Apply([]config.Pin{{Pin: 17, Actions: []string{config.ActionLog}}}))

	provider.SimulateEdge(17, true)
	require.NoError(t, b.Apply([]config.Pin{{Pin: 17, Pull: "up", Actions: []string{config.ActionLog}}}))

	assert.Equal(t, []int{17}, provider.Held())
	assert.Zero(t, provider.Pending(17), "release drops pending events")
}

func TestReconfigureRestartsRunningLoop(t *testing.T) {
	port := devtest.NewMockMIDIPort()
	b, disp, provider := newTestBinder(t, Outputs{MIDI: port})
	require.NoError(t, b.Apply(config.PinsFromList([]int{17})))
	require.NoError(t, disp.Start())

	pins := []config.Pin{{Pin: 22, Actions: []string{config.ActionMIDI}, MIDIController: 7}}
	require.NoError(t, b.Reconfigure(pins))
	assert.True(t, disp.Running())
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]int{22}, provider.LastWaitSet())
	}, time.Second, time.Millisecond)

	provider.SimulateEdge(22, true)
	assert.Eventually(t, func() bool { return len(port.GetSentMessages()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, midi.ControlChange(0, 7, 127), port.GetSentMessages()[0])
}

func TestReleaseAll(t *testing.T) {
	b, disp, provider := newTestBinder(t, Outputs{})
	require.NoError(t, b.Apply(config.Default().Pins))
	b.ReleaseAll()

	assert.Empty(t, b.Pins())
	assert.Empty(t, provider.Held())
	tbl := disp.Table()
	assert.Zero(t, tbl.Len())
}

func TestCallbackForChainsActions(t *testing.T) {
	client := &devtest.MockOscClient{}
	port := devtest.NewMockMIDIPort()
	pin := config.Pin{
		Pin:            5,
		Actions:        []string{config.ActionLog, config.ActionOSC, config.ActionMIDI},
		OSCAddress:     "/zyncoder/pin/5",
		MIDIChannel:    1,
		MIDIController: 20,
	}

	cb, err := CallbackFor(pin, Outputs{OSC: client, MIDI: port})
	require.NoError(t, err)
	require.NoError(t, cb())

	require.Len(t, client.GetSentMessages(), 1)
	assert.Equal(t, "/zyncoder/pin/5", client.GetSentMessages()[0].Address)
	assert.Equal(t, []midi.Message{midi.ControlChange(1, 20, 127)}, port.GetSentMessages())
}

func TestCallbackForUnknownAction(t *testing.T) {
	_, err := CallbackFor(config.Pin{Pin: 1, Actions: []string{"dance"}}, Outputs{})
	assert.ErrorContains(t, err, `unknown action "dance"`)
}
