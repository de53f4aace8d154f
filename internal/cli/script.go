package cli

import (
	"net/url"

	"github.com/spf13/cobra"
)

func newScriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Browse the character catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []ScriptSummary

			if err := client.Get(cmd.Context(), "/api/v1/scripts", &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <script>",
		Short: "Show a script's characters and setup table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Script

			if err := client.Get(cmd.Context(), "/api/v1/scripts/"+url.PathEscape(args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	})

	return cmd
}
