package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xtxerr/telemetry/internal/errors"
	"github.com/xtxerr/telemetry/internal/snowflake"
	"github.com/xtxerr/telemetry/internal/store"
)

// Required submission fields.
const (
	FieldProduct      = "product"
	FieldVendor       = "vendor"
	FieldArch         = "arch"
	FieldOS           = "os"
	FieldVersion      = "version"
	FieldDistribution = "distribution"
	FieldData         = "data"
)

var stringFields = []string{FieldProduct, FieldVendor, FieldArch, FieldOS, FieldVersion, FieldDistribution}

// Submission is a decoded /send body.
type Submission struct {
	Product      string
	Vendor       string
	Arch         string
	OS           string
	Version      string
	Distribution string

	// Data is any well-formed JSON value, including null.
	Data json.RawMessage
}

// Event is a submission enriched with the receipt time and its identifier.
// It is what gets persisted in the Data column.
type Event struct {
	Product      string          `json:"product"`
	Vendor       string          `json:"vendor"`
	Arch         string          `json:"arch"`
	OS           string          `json:"os"`
	Version      string          `json:"version"`
	Distribution string          `json:"distribution"`
	Data         json.RawMessage `json:"data"`
	FiredAt      time.Time       `json:"firedAt"`
	ID           snowflake.ID    `json:"id"`
}

// Decode parses body as a submission. The body must be a single JSON object
// with the six string fields and data present. String contents are taken
// verbatim. Unknown fields are ignored; client-sent id and firedAt are never
// used.
func Decode(body []byte) (Submission, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return Submission{}, fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	if raw == nil {
		return Submission{}, fmt.Errorf("%w: body must be a JSON object", errors.ErrMalformedPayload)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Submission{}, fmt.Errorf("%w: unexpected content after JSON object", errors.ErrMalformedPayload)
	}

	values := make(map[string]string, len(stringFields))
	for _, field := range stringFields {
		v, ok := raw[field]
		if !ok {
			return Submission{}, errors.NewMissingField(field)
		}
		var s string
		if bytes.Equal(v, []byte("null")) || json.Unmarshal(v, &s) != nil {
			return Submission{}, errors.NewMalformed(field, "must be a string")
		}
		values[field] = s
	}

	data, ok := raw[FieldData]
	if !ok {
		return Submission{}, errors.NewMissingField(FieldData)
	}

	return Submission{
		Product:      values[FieldProduct],
		Vendor:       values[FieldVendor],
		Arch:         values[FieldArch],
		OS:           values[FieldOS],
		Version:      values[FieldVersion],
		Distribution: values[FieldDistribution],
		Data:         data,
	}, nil
}

// Enrich builds the event persisted for s.
func (s Submission) Enrich(firedAt time.Time, id snowflake.ID) Event {
	return Event{
		Product:      s.Product,
		Vendor:       s.Vendor,
		Arch:         s.Arch,
		OS:           s.OS,
		Version:      s.Version,
		Distribution: s.Distribution,
		Data:         s.Data,
		FiredAt:      firedAt.UTC(),
		ID:           id,
	}
}

// Block renders the event as a one-row insert block.
func (e Event) Block() (store.Block, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}

	return store.Block{
		store.StringColumn(store.ColumnData, string(payload)),
		store.Uint64Column(store.ColumnID, e.ID.Uint64()),
		store.StringColumn(store.ColumnProduct, e.Product),
		store.StringColumn(store.ColumnVendor, e.Vendor),
	}, nil
}
