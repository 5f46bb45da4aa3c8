package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/config"
	"github.com/vitaminmoo/gattprov/internal/dispatch"
	"github.com/vitaminmoo/gattprov/internal/handles"
	"github.com/vitaminmoo/gattprov/internal/provision"
	"github.com/vitaminmoo/gattprov/internal/store"
	"github.com/vitaminmoo/gattprov/internal/tui"
	"github.com/vitaminmoo/gattprov/internal/util"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

// --- Provision Command ---

type ProvisionCmd struct {
	Settings config.Provisioning `embed:""`

	Save   bool   `help:"Save the table to the record store"`
	Format string `enum:"table,json" default:"table" help:"Output format (${enum})"`
	Hold   bool   `help:"Keep the stack up after provisioning until interrupted (always on for the host backend)"`
}

// Validate rejects bad settings at parse time.
func (c *ProvisionCmd) Validate() error { return c.Settings.Validate() }

func (c *ProvisionCmd) Run(globals *CLI, ctx context.Context) error {
	log := globals.Logger()
	cfg, err := c.Settings.ProvisionConfig()
	if err != nil {
		return err
	}
	m, err := provision.New(cfg, log)
	if err != nil {
		return err
	}
	st, err := newStack(c.Settings.Backend, log)
	if err != nil {
		return err
	}
	defer st.Close()

	d := dispatch.New(st, m, log, dispatch.Options{StepTimeout: c.Settings.StepTimeout})
	res, err := d.Run(ctx)
	if err != nil {
		return fmt.Errorf("provisioning stopped after %d of %d characteristics: %w", m.Cursor(), cfg.Chars, err)
	}

	if err := writeResult(globals.Stdout(), res, c.Format); err != nil {
		return err
	}

	if c.Save {
		hash, isNew, err := saveResult(globals, res, c.Settings.Backend, "provision")
		if err != nil {
			return err
		}
		if isNew {
			log.WithField("hash", store.ShortHash(hash)).Info("saved record")
		} else {
			log.WithField("hash", store.ShortHash(hash)).Info("record already stored, added run")
		}
	}

	if c.Hold || c.Settings.Backend == config.BackendHost {
		log.Info("serving; interrupt to stop")
		<-ctx.Done()
	}
	return nil
}

// --- Plan Command ---

type PlanCmd struct {
	Settings config.Provisioning `embed:""`

	Format string `enum:"table,json" default:"table" help:"Output format (${enum})"`
	Advert bool   `help:"Also dump the advertising payload"`
}

func (c *PlanCmd) Validate() error { return c.Settings.Validate() }

func (c *PlanCmd) Run(globals *CLI) error {
	cfg, err := c.Settings.ProvisionConfig()
	if err != nil {
		return err
	}
	w := globals.Stdout()
	if err := writeResult(w, plan(cfg), c.Format); err != nil {
		return err
	}
	if c.Advert {
		payload, err := cfg.Advertising.Bytes()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nAdvertising payload (%d bytes):\n", len(payload))
		util.HexDump(w, payload)
		fmt.Fprintf(w, "Preferred connection interval: %s to %s\n",
			advert.IntervalDuration(cfg.Advertising.MinInterval),
			advert.IntervalDuration(cfg.Advertising.MaxInterval))
	}
	return nil
}

// plan computes the table a run with no mismatches would produce.
func plan(cfg provision.Config) provision.Result {
	res := provision.Result{
		Name:          cfg.DeviceName,
		ServiceUUID:   cfg.BaseUUID,
		ServiceHandle: handles.FirstService,
		Policy:        cfg.Policy,
	}
	ids := uuidgen.Sequence(cfg.BaseUUID, cfg.Chars)
	for _, e := range handles.Layout(cfg.Chars) {
		res.Characteristics = append(res.Characteristics, provision.Characteristic{
			Index:                    e.Index,
			UUID:                     ids[e.Index],
			ValueHandle:              e.Value,
			DescriptorHandle:         e.Descriptor,
			ReportedValueHandle:      e.Value,
			ReportedDescriptorHandle: e.Descriptor,
		})
	}
	return res
}

// --- TUI Command ---

type TuiCmd struct {
	Settings config.Provisioning `embed:""`
}

func (c *TuiCmd) Validate() error { return c.Settings.Validate() }

func (c *TuiCmd) Run(globals *CLI, ctx context.Context) error {
	log := globals.Logger()
	cfg, err := c.Settings.ProvisionConfig()
	if err != nil {
		return err
	}
	m, err := provision.New(cfg, log)
	if err != nil {
		return err
	}
	st, err := newStack(c.Settings.Backend, log)
	if err != nil {
		return err
	}
	defer st.Close()

	save := func(res provision.Result) (string, error) {
		hash, _, err := saveResult(globals, res, c.Settings.Backend, "tui")
		return hash, err
	}

	res, err := tui.Run(ctx, st, m, log, tui.Options{
		StepTimeout: c.Settings.StepTimeout,
		Save:        save,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	return writeSummary(globals.Stdout(), res)
}

func saveResult(globals *CLI, res provision.Result, backend, method string) (string, bool, error) {
	s, err := globals.openStore()
	if err != nil {
		return "", false, err
	}
	host, _ := os.Hostname()
	hash, isNew, err := s.Import(res, store.Source{
		Backend:   backend,
		Host:      host,
		Timestamp: time.Now(),
		Method:    method,
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to save record: %w", err)
	}
	return hash, isNew, nil
}

func writeResult(w io.Writer, res provision.Result, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	writeTable(w, res)
	return writeSummary(w, res)
}
