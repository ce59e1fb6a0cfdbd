package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"maps"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Field names of the asset record. Columns beyond these are carried verbatim.
const (
	FieldHostname         = "hostname"
	FieldCountry          = "country"
	FieldOS               = "operating_system"
	FieldOSProvider       = "operating_system_provider"
	FieldLifecycleStatus  = "operating_system_lifecycle_status"
	FieldInstallationDate = "operating_system_installation_date"
	FieldRiskLevel        = "risk_level"
	FieldSystemAgeYears   = "system_age_years"
)

// Unknown is the sentinel source systems write for "intentionally absent".
const Unknown = "Unknown"

// RiskLevel classifies an asset by operating system support status.
type RiskLevel string

const (
	// RiskHigh marks assets whose operating system is end-of-life or end-of-support.
	RiskHigh RiskLevel = "High"
	// RiskLow marks every other asset.
	RiskLow RiskLevel = "Low"
)

// Document is a single asset record as stored in a collection.
// Values are strings, integers (int64), floats, booleans or nil.
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// String returns the named field when it holds a string.
func (d Document) String(field string) (string, bool) {
	v, ok := d[field]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Row is one raw input record keyed by column name.
type Row map[string]string

// Document converts the row into a document, preserving every column.
func (r Row) Document() Document {
	doc := make(Document, len(r))
	for k, v := range r {
		doc[k] = v
	}
	return doc
}

// Derived holds the fields computed by the enrichment pass.
type Derived struct {
	RiskLevel RiskLevel
	// SystemAgeYears is nil when the installation year cannot be determined.
	SystemAgeYears *int
}

// Apply writes the derived fields into doc, replacing any previous values.
func (d Derived) Apply(doc Document) {
	doc[FieldRiskLevel] = string(d.RiskLevel)
	if d.SystemAgeYears == nil {
		doc[FieldSystemAgeYears] = nil
		return
	}
	doc[FieldSystemAgeYears] = int64(*d.SystemAgeYears)
}

// Checkpoint records the outcome of the last completed run of a pipeline stage.
type Checkpoint struct {
	Stage      string    `json:"stage"`
	Collection string    `json:"collection"`
	Total      int64     `json:"total"`
	Affected   int64     `json:"affected"`
	Conflicts  int64     `json:"conflicts"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HashID maps a document identifier to a stable 64-bit value using BLAKE2b.
// Identical identifiers always hash to the same value.
func HashID(id string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(id))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}
