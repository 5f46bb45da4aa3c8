package store

import (
	"time"

	"github.com/vitaminmoo/gattprov/internal/provision"
)

// Metadata contains summary information about a stored table.
type Metadata struct {
	ContentHash   string          `json:"content_hash"`
	Name          string          `json:"name"`
	ServiceUUID   string          `json:"service_uuid"`
	ServiceHandle uint16          `json:"service_handle"`
	Chars         int             `json:"chars"`
	Policy        string          `json:"policy"`
	Mismatched    int             `json:"mismatched"`
	Failed        int             `json:"failed"`
	Stats         provision.Stats `json:"stats"`
	Sources       []Source        `json:"sources"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Source records which run produced a table.
type Source struct {
	Backend   string    `json:"backend"` // "sim", "host"
	Host      string    `json:"host,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"` // "provision", "tui"
}

// ExtractMetadata summarizes a table.
func ExtractMetadata(res provision.Result, hash string) *Metadata {
	now := time.Now()
	meta := &Metadata{
		ContentHash:   hash,
		Name:          res.Name,
		ServiceUUID:   res.ServiceUUID.String(),
		ServiceHandle: res.ServiceHandle,
		Chars:         len(res.Characteristics),
		Policy:        string(res.Policy),
		Stats:         res.Stats,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, c := range res.Characteristics {
		if c.Mismatched() {
			meta.Mismatched++
		}
		if c.Failed() {
			meta.Failed++
		}
	}
	return meta
}
