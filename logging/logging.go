package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/hypebeast/go-osc/osc"
)

type LogCategory string

const (
	META     LogCategory = "meta" // For logs about logging
	GPIO     LogCategory = "gpio"
	DISPATCH LogCategory = "dispatch"
	CONFIG   LogCategory = "config"
	APP      LogCategory = "app" // For application-specific logs (i.e. edge actions)
)

func strToLogCategory(s string) (LogCategory, bool) {
	switch s {
	case "meta":
		return META, true
	case "gpio":
		return GPIO, true
	case "dispatch":
		return DISPATCH, true
	case "config":
		return CONFIG, true
	case "app":
		return APP, true
	default:
		return "", false
	}
}

// ParseCategory returns the category named s, case-insensitively.
func ParseCategory(s string) (LogCategory, error) {
	cat, ok := strToLogCategory(strings.ToLower(s))
	if !ok {
		return "", fmt.Errorf("unknown log category %q", s)
	}
	return cat, nil
}

// DefaultControlAddr is where ServeLevelControl listens unless told otherwise.
const DefaultControlAddr = "0.0.0.0:9085"

// Dispatcher is a custom osc.Dispatcher, implementing the osc.Dispatcher interface
type Dispatcher struct{}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Dispatch dispatches OSC packets. Implements the Dispatcher interface.
func (s *Dispatcher) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	default:
		return

	case *osc.Message:
		HandleOSCSetCategoryLevel(p)

	case *osc.Bundle:
		for _, m := range p.Messages {
			HandleOSCSetCategoryLevel(m)
		}
	}
}

// Internal state for loggers per category
var (
	mu               sync.RWMutex
	loggers          = map[LogCategory]*slog.Logger{}
	categoryLvls     = map[LogCategory]*slog.LevelVar{}
	defaultLogLevels = map[LogCategory]slog.Level{
		META:     slog.LevelInfo,
		GPIO:     slog.LevelWarn,
		DISPATCH: slog.LevelInfo,
		CONFIG:   slog.LevelInfo,
		APP:      slog.LevelInfo,
	}
)

var (
	outMu  sync.RWMutex
	output io.Writer = os.Stderr
)

// sharedOutput is the writer behind every category handler. It forwards to
// whatever SetOutput last installed.
type sharedOutput struct{}

func (sharedOutput) Write(p []byte) (int, error) {
	outMu.RLock()
	defer outMu.RUnlock()
	return output.Write(p)
}

// SetOutput redirects every category logger, including ones already handed
// out by Get, to w.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	output = w
}

// Get returns a slog.Logger that always has the "category" attribute set.
// Each category gets its own logger instance.
func Get(category LogCategory) *slog.Logger {
	mu.RLock()
	l, ok := loggers[category]
	mu.RUnlock()
	if ok {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	// Double-check after locking
	if l, ok := loggers[category]; ok {
		return l
	}
	catLogger := newLogger(category, levelVar(category))
	loggers[category] = catLogger
	return catLogger
}

// levelVar must be called with mu held for writing.
func levelVar(category LogCategory) *slog.LevelVar {
	lvlVar, ok := categoryLvls[category]
	if !ok {
		lvlVar = new(slog.LevelVar)
		lvlVar.Set(defaultLogLevels[category])
		categoryLvls[category] = lvlVar
	}
	return lvlVar
}

func newLogger(category LogCategory, lvl *slog.LevelVar) *slog.Logger {
	handler := slog.NewTextHandler(sharedOutput{}, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler).With("category", category)
}

func SetCategoryLevel(category LogCategory, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	levelVar(category).Set(level)
}

// SetAllLevels sets the same level on every known category.
func SetAllLevels(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	for cat := range defaultLogLevels {
		levelVar(cat).Set(level)
	}
}

// CategoryLevel reports the current level of a category.
func CategoryLevel(category LogCategory) slog.Level {
	mu.Lock()
	defer mu.Unlock()
	return levelVar(category).Level()
}

func splitOscPath(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}

// OSC handler for runtime config
//
// Routes:
// /meta/logging/{category}/level as int where -4 is Debug, 0 is Info, 4 is Warn, 8 is Error
func HandleOSCSetCategoryLevel(msg *osc.Message) {
	pathSegs := splitOscPath(msg.Address)

	if len(pathSegs) != 4 || pathSegs[0] != "meta" || pathSegs[1] != "logging" || pathSegs[3] != "level" {
		return
	}
	cat, ok := strToLogCategory(pathSegs[2])
	if !ok {
		Get(META).Info("Unrecognized log category in OSC message", "category", pathSegs[2])
		return
	}
	if len(msg.Arguments) == 0 {
		Get(META).Error("Missing level in OSC message", "address", msg.Address)
		return
	}
	level, ok := msg.Arguments[0].(int32)
	if !ok {
		Get(META).Error("Invalid level type in OSC message", "expected", "int32", "got", fmt.Sprintf("%T", msg.Arguments[0]))
		return
	}
	Get(META).Info("Setting category level via OSC",
		"category", cat,
		"level", level)
	SetCategoryLevel(cat, slog.Level(level))
}

// ServeLevelControl listens for OSC level-control messages on addr. It blocks
// until the server fails.
func ServeLevelControl(addr string) error {
	Get(META).Info("Starting OSC log level control", "addr", addr)
	server := &osc.Server{
		Addr:       addr,
		Dispatcher: NewDispatcher(),
	}
	return server.ListenAndServe()
}
