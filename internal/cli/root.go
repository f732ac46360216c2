// Package cli wires the cobra commands for the arxivtrans binary.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "arxivtrans",
		Short: "Translate arXiv papers while keeping them compilable",
		Long: `arxivtrans downloads a paper's LaTeX source, translates the prose
while masking every formula, citation and special environment, verifies
that the translation preserved all of them, and recompiles the result
into a PDF.

Sources can be an arXiv ID (2301.00001), an arXiv URL, a local archive
(.tar.gz/.zip) or a project directory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(NewTranslateCommand())
	return root
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
