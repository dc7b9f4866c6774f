package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/veildb/veildb/internal/tui"
)

var consoleCmd = &cobra.Command{
	Use:   "console <connection-id>",
	Short: "Open the interactive query console",
	Long:  `Run the command language (all, filter, count, properties, help) interactively against a configured connection.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := bootstrap(context.Background())
		if err != nil {
			return err
		}

		conn, err := eng.Store().Connection(args[0])
		if err != nil {
			return err
		}
		return tui.Run(eng, conn.Config.ID, conn.Config.Name)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
