package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/gattprov/internal/ble"
	"github.com/vitaminmoo/gattprov/internal/config"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/stack/sim"
	"github.com/vitaminmoo/gattprov/internal/store"
)

// CLI is the root command structure for gattprov.
type CLI struct {
	Verbose   bool            `short:"v" help:"Enable verbose debug output"`
	LogFormat string          `name:"log-format" enum:"text,json" default:"text" env:"GATTPROV_LOG_FORMAT" help:"Log format (${enum})"`
	Config    kong.ConfigFlag `help:"Load flag values from a JSON file"`
	Store     string          `type:"path" env:"GATTPROV_STORE" help:"Record store directory (default ~/.gattprov/records)"`

	// Default command
	Provision ProvisionCmd `cmd:"" default:"withargs" help:"Register the attribute table (default)"`

	Plan    PlanCmd    `cmd:"" help:"Print the UUIDs and handles a run would produce"`
	Tui     TuiCmd     `cmd:"" help:"Provision with a live progress view"`
	Records RecordsCmd `cmd:"" help:"Saved provisioning records"`

	out io.Writer
	log *logrus.Logger
}

// Stdout returns where command output goes.
func (c *CLI) Stdout() io.Writer {
	if c.out == nil {
		return os.Stdout
	}
	return c.out
}

// SetOutput redirects command output.
func (c *CLI) SetOutput(w io.Writer) { c.out = w }

// Logger returns the process logger.
func (c *CLI) Logger() *logrus.Logger {
	if c.log == nil {
		return config.Log
	}
	return c.log
}

// SetLogger replaces the process logger.
func (c *CLI) SetLogger(log *logrus.Logger) { c.log = log }

// AfterApply configures logging once flags are parsed.
func (c *CLI) AfterApply() error {
	if c.log != nil {
		return nil
	}
	return config.SetupLogging(c.Verbose, c.LogFormat)
}

func (c *CLI) openStore() (*store.Store, error) {
	var (
		s   *store.Store
		err error
	)
	if c.Store != "" {
		s, err = store.Open(c.Store)
	} else {
		s, err = store.OpenDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// newStack builds the backend named by the settings.
func newStack(backend string, log logrus.FieldLogger) (stack.Stack, error) {
	switch backend {
	case "", config.BackendSim:
		return sim.New(sim.WithLogger(log)), nil
	case config.BackendHost:
		return ble.NewPeripheral(ble.DefaultRadio(), log), nil
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}
