package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// StreamAggregatedMetricHistory is the single stream this tap produces.
const StreamAggregatedMetricHistory = "aggregated_metric_history"

// Property is one field declaration in a stream schema.
type Property struct {
	Type   []string `json:"type"`
	Format string   `json:"format,omitempty"`
}

// Schema is the JSON schema declared for a stream's records.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
}

// StreamMetadata carries Singer stream metadata, notably selection.
type StreamMetadata struct {
	Selected  *bool  `json:"selected,omitempty"`
	Inclusion string `json:"inclusion,omitempty"`
}

// Metadata is one metadata entry attached to a catalog stream.
type Metadata struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   StreamMetadata `json:"metadata"`
}

// Entry describes one stream in the catalog.
type Entry struct {
	Stream        string     `json:"stream"`
	TapStreamID   string     `json:"tap_stream_id"`
	Schema        Schema     `json:"schema"`
	KeyProperties []string   `json:"key_properties"`
	Metadata      []Metadata `json:"metadata,omitempty"`
}

// IsSelected reports whether the stream is selected for sync. Entries without
// metadata (the built-in catalog) are selected by default.
func (e *Entry) IsSelected() bool {
	for _, md := range e.Metadata {
		if len(md.Breadcrumb) == 0 && md.Metadata.Selected != nil {
			return *md.Metadata.Selected
		}
	}
	return true
}

// Catalog is the set of streams the tap can produce.
type Catalog struct {
	Streams []Entry `json:"streams"`

	index map[string]*Entry
}

// Default returns the built-in catalog: the aggregated_metric_history stream
// keyed by (date, metric, aggregation).
func Default() *Catalog {
	c := &Catalog{
		Streams: []Entry{
			{
				Stream:      StreamAggregatedMetricHistory,
				TapStreamID: StreamAggregatedMetricHistory,
				Schema: Schema{
					Type: "object",
					Properties: map[string]Property{
						"date":        {Type: []string{"string"}, Format: "date-time"},
						"metric":      {Type: []string{"string"}},
						"aggregation": {Type: []string{"string"}},
						"value":       {Type: []string{"number"}},
					},
				},
				KeyProperties: []string{"date", "metric", "aggregation"},
			},
		},
	}
	c.buildIndex()
	return c
}

// Load reads a catalog supplied by the caller instead of the built-in one.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	c.buildIndex()

	return &c, nil
}

// buildIndex builds the stream lookup once; the catalog is immutable after.
func (c *Catalog) buildIndex() {
	c.index = make(map[string]*Entry, len(c.Streams))
	for i := range c.Streams {
		c.index[c.Streams[i].TapStreamID] = &c.Streams[i]
	}
}

// Entry returns the catalog entry for a stream ID.
func (c *Catalog) Entry(streamID string) (*Entry, bool) {
	entry, ok := c.index[streamID]
	return entry, ok
}

// WriteTo prints the catalog as indented JSON (discover mode output).
func (c *Catalog) WriteTo(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}
