// Command schema prints the JSON Schema of every channel message payload,
// keyed by message type.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

// payloads mirrors the "data" member of each envelope type.
type payloads struct {
	StateSync        types.StateSync        `json:"state_sync"`
	PlayCompleted    types.PlayCompleted    `json:"play_completed"`
	Scoring          types.Scoring          `json:"scoring"`
	Turnover         types.Turnover         `json:"turnover"`
	QuarterEnd       types.QuarterEnd       `json:"quarter_end"`
	GameEnd          types.GameEnd          `json:"game_end"`
	AwaitingPlayCall types.AwaitingPlayCall `json:"awaiting_play_call"`
	Error            types.ServerError      `json:"error"`

	Pause       types.Pause       `json:"pause"`
	Resume      types.Resume      `json:"resume"`
	SetPacing   types.SetPacing   `json:"set_pacing"`
	PlayCall    types.PlayCall    `json:"play_call"`
	RequestSync types.RequestSync `json:"request_sync"`

	Tick types.Tick `json:"tick"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema (default stdout)")
	flag.Parse()

	schema := buildSchema()

	var err error
	if outPath == "" {
		err = encode(os.Stdout, schema)
	} else {
		err = writeSchema(outPath, schema)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(payloads))
	schema.Title = "Gridiron simulation channel"
	schema.Description = "Payloads carried in the data member of {\"type\", \"data\"} envelopes, keyed by type"
	return schema
}

func encode(w io.Writer, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	f, err := os.Create(outPath + ".tmp")
	if err != nil {
		return fmt.Errorf("create temp schema: %w", err)
	}
	if err := encode(f, schema); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp schema: %w", err)
	}
	if err := os.Rename(outPath+".tmp", outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
