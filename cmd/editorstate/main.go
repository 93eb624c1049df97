// Command editorstate encodes, decodes and repairs diagram editor share
// tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-editorstate"
	"github.com/goliatone/go-editorstate/internal/config"
)

// Version is set at build time via ldflags.
var version = "dev"

var (
	configPath string
	formatFlag string

	cfg    config.Config
	engine *editorstate.Engine
)

var rootCmd = &cobra.Command{
	Use:           "editorstate",
	Short:         "Encode, decode and repair diagram editor share tokens",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("format") {
			loaded.Format = formatFlag
		}
		opts, err := loaded.EngineOptions(loaded.NewLogger(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		built, err := editorstate.NewEngine(opts...)
		if err != nil {
			return err
		}
		cfg, engine = loaded, built
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "", "Token format: pako or base64 (overrides EDITORSTATE_FORMAT)")

	encodeCmd.Flags().BoolVar(&encodeCopy, "copy", false, "Copy the token to the clipboard")
	decodeCmd.Flags().BoolVar(&decodeRaw, "raw", false, "Print the record as decoded, without healing or defaults")
	inspectCmd.Flags().BoolVar(&inspectNoColor, "no-color", false, "Disable colored diff output")

	shareCmd.AddCommand(sharePutCmd)
	shareCmd.AddCommand(shareGetCmd)
	shareCmd.AddCommand(shareDeleteCmd)

	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
