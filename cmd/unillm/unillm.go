// Package unillmcmder assembles the unillm command tree.
package unillmcmder

import (
	"github.com/spf13/cobra"

	servecmder "github.com/unillm/unillm/cmd/unillm/serve"
	versioncmder "github.com/unillm/unillm/cmd/unillm/version"
)

const unillmLongDesc string = `unillm is a protocol-normalization gateway for LLM providers.

It exposes the Ollama chat API on one address and fans requests out to
heterogeneous upstream providers (OpenAI-compatible, Gemini, Ollama),
streaming every response back in the same canonical format.

Run the gateway using:
  unillm serve --config config.toml`

const unillmShortDesc string = "unillm - LLM protocol-normalization gateway"

func NewUnillmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unillm",
		Short: unillmShortDesc,
		Long:  unillmLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
