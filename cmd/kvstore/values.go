package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/scott-cotton/cli"
)

// parseValue decodes a JSON or YAML document into plain Go values. JSON is
// accepted as YAML, so both go through the YAML decoder.
func parseValue(data []byte) (any, error) {
	js, err := yamlToJSON(data)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	return v, nil
}

// readArg returns the bytes named by arg: "-" reads the command input, and
// anything else is taken literally.
func readArg(cc *cli.Context, arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(cc.In)
	}
	return []byte(arg), nil
}

// readSource returns the contents of a file, or of the command input for
// "-".
func readSource(cc *cli.Context, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cc.In)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func toJSON(v any) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return []byte(fmt.Sprintf("%v", v))
	}
	return data
}

func writeValue(w io.Writer, v any) error {
	_, err := fmt.Fprintf(w, "%s\n", toJSON(v))
	return err
}

func yamlToJSON(data []byte) ([]byte, error) {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	return js, nil
}
