package util

import (
	"fmt"
	"io"
	"strings"
)

// HexDump writes data in hex dump format, 16 bytes per line.
func HexDump(w io.Writer, data []byte) {
	for i := 0; i < len(data); i += 16 {
		var line strings.Builder

		// Address
		fmt.Fprintf(&line, "%04x  ", i)

		// Hex bytes
		for j := range 16 {
			if i+j < len(data) {
				fmt.Fprintf(&line, "%02x ", data[i+j])
			} else {
				line.WriteString("   ")
			}
			if j == 7 {
				line.WriteString(" ")
			}
		}

		// ASCII
		line.WriteString(" |")
		for j := 0; j < 16 && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b < 127 {
				line.WriteByte(b)
			} else {
				line.WriteByte('.')
			}
		}
		line.WriteString("|\n")
		io.WriteString(w, line.String())
	}
}
