package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newLobbyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lobby",
		Short: "Lobby management commands",
	}

	cmd.AddCommand(newLobbyCreateCmd())
	cmd.AddCommand(newLobbyGetCmd())
	cmd.AddCommand(newLobbySelectCmd())
	cmd.AddCommand(newLobbyStartCmd())
	cmd.AddCommand(newLobbyRemoveCmd())
	cmd.AddCommand(newLobbyMoveTokenCmd())

	return cmd
}

func newLobbyCreateCmd() *cobra.Command {
	var (
		playerCount int
		scriptID    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new lobby as its storyteller",
		Long: `Create a new lobby. The storyteller credential is saved to the
credential file so later commands act as the storyteller.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"playerCount": playerCount,
				"scriptId":    scriptID,
			}

			var result LobbyCreated

			if err := client.Post(cmd.Context(), "/api/v1/lobbies", req, &result); err != nil {
				return err
			}

			if err := cfg.SaveCredential(result.Credential); err != nil {
				return fmt.Errorf("failed to save credential: %w", err)
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&playerCount, "players", 0, "Number of players, excluding the storyteller (required)")
	cmd.Flags().StringVar(&scriptID, "script", "trouble_brewing", "Script id")
	_ = cmd.MarkFlagRequired("players")

	return cmd
}

func newLobbyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <code>",
		Short: "Show the lobby as the caller sees it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result LobbyView

			if err := client.Get(cmd.Context(), lobbyPath(args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newLobbySelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <code> <character>...",
		Short: "Commit the character selection",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string][]string{"characterIds": args[1:]}
			var result LobbyView

			if err := client.Post(cmd.Context(), lobbyPath(args[0], "characters"), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newLobbyStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <code>",
		Short: "Start the game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result LobbyView

			if err := client.Post(cmd.Context(), lobbyPath(args[0], "start"), nil, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newLobbyRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <code> <player-id>",
		Short: "Remove a player from the lobby",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result LobbyView

			if err := client.Delete(cmd.Context(), lobbyPath(args[0], "players", args[1]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newLobbyMoveTokenCmd() *cobra.Command {
	var x, y float64

	cmd := &cobra.Command{
		Use:   "move-token <code> <character>",
		Short: "Move a character token on the grimoire",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("x") || !cmd.Flags().Changed("y") {
				return errors.New("--x and --y are required")
			}

			req := map[string]float64{"x": x, "y": y}
			var result LobbyView

			if err := client.Patch(cmd.Context(), lobbyPath(args[0], "tokens", args[1]), req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().Float64Var(&x, "x", 0, "Horizontal position")
	cmd.Flags().Float64Var(&y, "y", 0, "Vertical position")

	return cmd
}
