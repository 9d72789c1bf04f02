//go:build midicat

package main

// midicatdrv panics at init when the midicat binary is not on PATH, so it is
// only linked into builds that ask for it.
import _ "gitlab.com/gomidi/midi/v2/drivers/midicatdrv"
