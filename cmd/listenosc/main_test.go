package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelMessage(t *testing.T) {
	msg, err := levelMessage("GPIO", "debug")
	require.NoError(t, err)
	assert.Equal(t, "/meta/logging/gpio/level", msg.Address)
	assert.Equal(t, []interface{}{int32(-4)}, msg.Arguments)

	msg, err = levelMessage("app", "warn+2")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(6)}, msg.Arguments)

	_, err = levelMessage("nope", "info")
	assert.Error(t, err)
	_, err = levelMessage("app", "loud")
	assert.Error(t, err)
}

func TestPrinterCountsPinEdges(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "")

	p.Dispatch(osc.NewMessage("/zyncoder/pin/17", int32(17)))
	bundle := osc.NewBundle(time.Now())
	require.NoError(t, bundle.Append(osc.NewMessage("/zyncoder/pin/17", int32(17))))
	require.NoError(t, bundle.Append(osc.NewMessage("/other")))
	p.Dispatch(bundle)

	out := buf.String()
	assert.Contains(t, out, "pin 17 edge #1")
	assert.Contains(t, out, "pin 17 edge #2")
	assert.Contains(t, out, "Received OSC message: /other")
}

func TestPrinterPrefix(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "/zyncoder/pin/27")

	p.Dispatch(osc.NewMessage("/zyncoder/pin/17", int32(17)))
	p.Dispatch(osc.NewMessage("/zyncoder/pin/27", int32(27)))

	assert.NotContains(t, buf.String(), "pin 17")
	assert.Contains(t, buf.String(), "pin 27 edge #1")
}

func TestPinOf(t *testing.T) {
	pin, ok := pinOf("/zyncoder/pin/5")
	assert.True(t, ok)
	assert.Equal(t, 5, pin)

	_, ok = pinOf("/zyncoder/pin/x")
	assert.False(t, ok)
	_, ok = pinOf("/meta/logging/app/level")
	assert.False(t, ok)
}
