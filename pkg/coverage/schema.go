package coverage

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/node.schema.json
var nodeSchemaData []byte

//go:embed schema/history.schema.json
var historySchemaData []byte

const (
	nodeSchemaURL    = "https://coverage-browser.local/schema/node.schema.json"
	historySchemaURL = "https://coverage-browser.local/schema/history.schema.json"
)

var (
	schemasOnce   sync.Once
	nodeSchema    *jsonschema.Schema
	historySchema *jsonschema.Schema
	schemasErr    error
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(nodeSchemaURL, bytes.NewReader(nodeSchemaData)); err != nil {
		schemasErr = fmt.Errorf("add node schema: %w", err)
		return
	}
	if err := compiler.AddResource(historySchemaURL, bytes.NewReader(historySchemaData)); err != nil {
		schemasErr = fmt.Errorf("add history schema: %w", err)
		return
	}
	if nodeSchema, schemasErr = compiler.Compile(nodeSchemaURL); schemasErr != nil {
		schemasErr = fmt.Errorf("compile node schema: %w", schemasErr)
		return
	}
	if historySchema, schemasErr = compiler.Compile(historySchemaURL); schemasErr != nil {
		schemasErr = fmt.Errorf("compile history schema: %w", schemasErr)
	}
}

func validate(schema func() *jsonschema.Schema, data []byte) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return schemasErr
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := schema().Validate(instance); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// DecodeNode validates a coverage payload and decodes it.
func DecodeNode(data []byte) (*Node, error) {
	if err := validate(func() *jsonschema.Schema { return nodeSchema }, data); err != nil {
		return nil, err
	}
	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decode coverage node: %w", err)
	}
	return &node, nil
}

// DecodeHistory validates a history payload and decodes it. A JSON null or
// an empty body means "no history data" and yields a nil slice.
func DecodeHistory(data []byte) ([]HistoryPoint, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if err := validate(func() *jsonschema.Schema { return historySchema }, trimmed); err != nil {
		return nil, err
	}
	var points []HistoryPoint
	if err := json.Unmarshal(trimmed, &points); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return points, nil
}
