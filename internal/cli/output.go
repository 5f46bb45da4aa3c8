package cli

import (
	"fmt"
	"io"

	"github.com/vitaminmoo/gattprov/internal/provision"
)

func writeTable(w io.Writer, res provision.Result) {
	fmt.Fprintf(w, "Service %s  handle %#04x  %s\n\n", res.ServiceUUID, res.ServiceHandle, res.Name)
	fmt.Fprintf(w, "  %5s  %-36s  %-6s  %-6s  %s\n", "INDEX", "UUID", "VALUE", "CCCD", "NOTES")
	for _, c := range res.Characteristics {
		fmt.Fprintf(w, "  %5d  %-36s  %#04x  %#04x  %s\n",
			c.Index, c.UUID, c.ValueHandle, c.DescriptorHandle, notes(c))
	}
}

func notes(c provision.Characteristic) string {
	var s string
	if c.Mismatched() {
		s += fmt.Sprintf("reported %#04x/%#04x ", c.ReportedValueHandle, c.ReportedDescriptorHandle)
	}
	if !c.ValueStatus.OK() {
		s += "char: " + c.ValueStatus.String() + " "
	}
	if !c.DescriptorStatus.OK() {
		s += "desc: " + c.DescriptorStatus.String() + " "
	}
	return s
}

func writeSummary(w io.Writer, res provision.Result) error {
	if len(res.Mismatches) > 0 {
		fmt.Fprintln(w)
		for _, mm := range res.Mismatches {
			fmt.Fprintf(w, "  %s\n", mm)
		}
	}
	st := res.Stats
	_, err := fmt.Fprintf(w, "\n%d characteristics (%s policy): %d mismatched, %d soft failures, %d ignored events, %d gap events, %d uuid saturations\n",
		len(res.Characteristics), res.Policy, st.Mismatches, st.SoftFailures, st.Ignored, st.GapEvents, st.Saturations)
	return err
}
