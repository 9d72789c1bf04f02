package actions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	midi "gitlab.com/gomidi/midi/v2"

	"github.com/wanthalf/zyncoder/callbacks"
	devtest "github.com/wanthalf/zyncoder/devices/devicestesting"
)

func TestOSCSendsPin(t *testing.T) {
	client := &devtest.MockOscClient{}
	cb := OSC(client, "/zyncoder/pin/17", 17)

	require.NoError(t, cb())
	require.NoError(t, cb())

	sent := client.GetSentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "/zyncoder/pin/17", sent[0].Address)
	assert.Equal(t, []interface{}{int32(17)}, sent[0].Arguments)
}

func TestOSCPropagatesSendError(t *testing.T) {
	client := &devtest.MockOscClient{}
	client.SetError(true)
	assert.Error(t, OSC(client, "/x", 1)())
}

func TestMIDIToggle(t *testing.T) {
	port := devtest.NewMockMIDIPort()
	cb := MIDIToggle(port, 0, 20)

	for i := 0; i < 3; i++ {
		require.NoError(t, cb())
	}

	assert.Equal(t, []midi.Message{
		midi.ControlChange(0, 20, 127),
		midi.ControlChange(0, 20, 0),
		midi.ControlChange(0, 20, 127),
	}, port.GetSentMessages())
}

func TestMIDIToggleSendError(t *testing.T) {
	port := devtest.NewMockMIDIPort()
	port.SetError(true)
	assert.Error(t, MIDIToggle(port, 1, 1)())
}

func TestChainRunsEveryAction(t *testing.T) {
	tracker := devtest.NewCallbackTracker(t)
	failing := func() error { return errors.New("unplugged") }

	cb := Chain(tracker.Callback(), failing, tracker.Callback())
	err := cb()

	assert.ErrorContains(t, err, "action 1: unplugged")
	tracker.AssertCalled(2)
}

func TestChainEmpty(t *testing.T) {
	assert.NoError(t, Chain()())
}

func TestLogNeverFails(t *testing.T) {
	var cb callbacks.Callback = Log(17)
	assert.NoError(t, cb())
}
