// listenosc prints the OSC messages zyncoder sends for pin edges, and can
// adjust a running zyncoder's log levels over its level-control address.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/hypebeast/go-osc/osc"
	"github.com/spf13/cobra"

	"github.com/wanthalf/zyncoder/logging"
)

const pinPrefix = "/zyncoder/pin/"

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		port   int
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "listenosc",
		Short: "Print zyncoder OSC messages",
		Example: `  listenosc --port 9000
  listenosc --port 9000 --prefix /zyncoder/pin/17
  listenosc level localhost:9085 gpio debug`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == 0 {
				return fmt.Errorf("--port is required")
			}
			addr := "0.0.0.0:" + strconv.Itoa(port)
			server := &osc.Server{
				Addr:       addr,
				Dispatcher: newPrinter(cmd.OutOrStdout(), prefix),
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening for OSC messages on %s (UDP)...\n", addr)
			return server.ListenAndServe()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "UDP port to listen on")
	cmd.Flags().StringVar(&prefix, "prefix", "", "only print addresses starting with this prefix")
	cmd.AddCommand(newLevelCommand())
	return cmd
}

func newLevelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "level <host:port> <category> <level>",
		Short: "Set a log category level on a running zyncoder",
		Long: `Sends /meta/logging/<category>/level to the given address. The level is a
slog level name such as debug, info, warn+2 or error.`,
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := levelMessage(args[1], args[2])
			if err != nil {
				return err
			}
			host, portStr, ok := strings.Cut(args[0], ":")
			if !ok {
				return fmt.Errorf("address %q: expected host:port", args[0])
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("address %q: %w", args[0], err)
			}
			return osc.NewClient(host, port).Send(msg)
		},
	}
}

// levelMessage builds the level-control message understood by
// logging.HandleOSCSetCategoryLevel.
func levelMessage(category, level string) (*osc.Message, error) {
	cat, err := logging.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return osc.NewMessage("/meta/logging/"+string(cat)+"/level", int32(lvl)), nil
}

// printer writes every received message and keeps a per-pin edge count.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
	counts map[int]int
}

func newPrinter(w io.Writer, prefix string) *printer {
	return &printer{w: w, prefix: prefix, counts: map[int]int{}}
}

func (p *printer) Dispatch(packet osc.Packet) {
	switch pkt := packet.(type) {
	case *osc.Message:
		p.print(pkt)
	case *osc.Bundle:
		for _, m := range pkt.Messages {
			p.print(m)
		}
		for _, b := range pkt.Bundles {
			p.Dispatch(b)
		}
	}
}

func (p *printer) print(msg *osc.Message) {
	if !strings.HasPrefix(msg.Address, p.prefix) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pin, ok := pinOf(msg.Address); ok {
		p.counts[pin]++
		fmt.Fprintf(p.w, "pin %d edge #%d: %s %v\n", pin, p.counts[pin], msg.Address, msg.Arguments)
		return
	}
	fmt.Fprintf(p.w, "Received OSC message: %s %v\n", msg.Address, msg.Arguments)
}

func pinOf(address string) (int, bool) {
	rest, ok := strings.CutPrefix(address, pinPrefix)
	if !ok {
		return 0, false
	}
	pin, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return pin, true
}
