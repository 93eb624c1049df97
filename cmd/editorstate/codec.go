package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-editorstate"
)

var (
	encodeCopy bool
	decodeRaw  bool
)

var encodeCmd = &cobra.Command{
	Use:   "encode [state.json|state.yaml]",
	Short: "Encode an editor state file (or stdin) into a share token",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEncode,
}

func runEncode(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	s, err := parseState(data, engine.Defaults())
	if err != nil {
		return err
	}
	token, err := engine.Serialize(s, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	if encodeCopy {
		if err := clipboard.WriteAll(token); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "copied to clipboard")
	}
	return nil
}

var decodeCmd = &cobra.Command{
	Use:   "decode [token]",
	Short: "Decode a share token (argument or stdin) into editor state JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	token, err := readToken(cmd, args)
	if err != nil {
		return err
	}
	if decodeRaw {
		record, err := engine.Deserialize(token)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), record)
	}
	s, err := engine.Load(context.Background(), token)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), s)
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the editor state JSON Schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := editorstate.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// parseState reads JSON or YAML into a State, starting from defaults so
// missing fields keep their default values.
func parseState(data []byte, defaults editorstate.State) (editorstate.State, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return editorstate.State{}, fmt.Errorf("parse state: %w", err)
	}
	if mermaid, ok := doc["mermaid"].(map[string]any); ok {
		text, err := json.MarshalIndent(mermaid, "", "  ")
		if err != nil {
			return editorstate.State{}, fmt.Errorf("parse state: mermaid: %w", err)
		}
		doc["mermaid"] = string(text)
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return editorstate.State{}, fmt.Errorf("parse state: %w", err)
	}
	s := defaults
	if err := json.Unmarshal(normalized, &s); err != nil {
		return editorstate.State{}, fmt.Errorf("parse state: %w", err)
	}
	if err := editorstate.ValidateState(s); err != nil {
		return editorstate.State{}, fmt.Errorf("invalid state: %w", err)
	}
	return s, nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", args[0], err)
		}
		return data, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

func readToken(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token is required")
	}
	return token, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
