package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/vitaminmoo/gattprov/internal/store"
)

// --- Records Commands ---

type RecordsCmd struct {
	List   RecordsListCmd   `cmd:"" help:"List saved records"`
	Show   RecordsShowCmd   `cmd:"" help:"Show a saved table"`
	Export RecordsExportCmd `cmd:"" help:"Export a saved table to a JSON file"`
}

type RecordsListCmd struct{}

func (c *RecordsListCmd) Run(globals *CLI) error {
	s, err := globals.openStore()
	if err != nil {
		return err
	}

	records, err := s.List()
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	w := globals.Stdout()
	if len(records) == 0 {
		fmt.Fprintln(w, "No records in store.")
		fmt.Fprintln(w, "Save one with: gattprov provision --save")
		return nil
	}

	fmt.Fprintf(w, "Found %d record(s):\n\n", len(records))
	for _, r := range records {
		fmt.Fprintf(w, "  %s  %-12s  %5s chars  %-36s  %3d runs  %s\n",
			store.ShortHash(r.Hash),
			r.Name,
			humanize.Comma(int64(r.Chars)),
			r.ServiceUUID,
			r.Runs,
			humanize.Time(r.UpdatedAt))
	}

	return nil
}

type RecordsShowCmd struct {
	Hash   string `arg:"" help:"Record hash (full or prefix)"`
	Format string `enum:"table,json,meta" default:"table" help:"Output format (${enum})"`
}

func (c *RecordsShowCmd) Run(globals *CLI) error {
	s, err := globals.openStore()
	if err != nil {
		return err
	}
	hash, err := s.Resolve(c.Hash)
	if err != nil {
		return err
	}

	if c.Format == "meta" {
		meta, err := s.GetMetadata(hash)
		if err != nil {
			return fmt.Errorf("failed to get metadata: %w", err)
		}
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(globals.Stdout(), string(data))
		return nil
	}

	res, err := s.Get(hash)
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}
	return writeResult(globals.Stdout(), res, c.Format)
}

type RecordsExportCmd struct {
	Hash   string `arg:"" help:"Record hash (full or prefix)"`
	Output string `arg:"" type:"path" help:"Destination file"`
}

func (c *RecordsExportCmd) Run(globals *CLI) error {
	s, err := globals.openStore()
	if err != nil {
		return err
	}
	hash, err := s.Resolve(c.Hash)
	if err != nil {
		return err
	}
	if err := s.Export(hash, c.Output); err != nil {
		return fmt.Errorf("failed to export record: %w", err)
	}
	fmt.Fprintf(globals.Stdout(), "Exported %s to %s\n", store.ShortHash(hash), c.Output)
	return nil
}
