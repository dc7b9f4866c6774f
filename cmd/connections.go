package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veildb/veildb/internal/config"
)

var addConn config.ConnectionConfig

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Manage data source connections",
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := bootstrap(context.Background())
		if err != nil {
			return err
		}

		conns := eng.Store().Connections()
		if len(conns) == 0 {
			fmt.Println("No connections configured.")
			return nil
		}
		for _, c := range conns {
			status := "inactive"
			if c.Config.Active {
				status = "active"
			}
			fmt.Printf("  %s  %-20s %-12s %s\n", c.Config.ID, c.Config.Name, c.Config.Type, status)
			if c.UsersTable != "" {
				fmt.Printf("      users table: %s, properties: %d, keys: %d\n",
					c.UsersTable, len(c.Properties), len(c.Keys))
			}
		}
		return nil
	},
}

var connectionsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a connection (validates by connecting)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, _, _, err := bootstrap(ctx)
		if err != nil {
			return err
		}

		conn, err := eng.AddConnection(ctx, addConn)
		if err != nil {
			return err
		}
		fmt.Printf("Connection added: %s\n", conn.Config.ID)
		return nil
	},
}

var connectionsActivateCmd = &cobra.Command{
	Use:   "activate <connection-id>",
	Short: "Reactivate a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := bootstrap(context.Background())
		if err != nil {
			return err
		}
		return eng.SetActive(args[0], true)
	},
}

var connectionsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <connection-id>",
	Short: "Deactivate a connection (its keys stop validating)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := bootstrap(context.Background())
		if err != nil {
			return err
		}
		return eng.SetActive(args[0], false)
	},
}

func init() {
	connectionsAddCmd.Flags().StringVar(&addConn.Name, "name", "", "connection name")
	connectionsAddCmd.Flags().StringVar(&addConn.Type, "type", "", "backend type (postgresql, mysql, sqlite3, oracle)")
	connectionsAddCmd.Flags().StringVar(&addConn.Host, "host", "", "database host")
	connectionsAddCmd.Flags().IntVar(&addConn.Port, "port", 0, "database port")
	connectionsAddCmd.Flags().StringVar(&addConn.Database, "database", "", "database name")
	connectionsAddCmd.Flags().StringVar(&addConn.Path, "path", "", "sqlite3 file path")
	connectionsAddCmd.Flags().StringVar(&addConn.Username, "username", "", "database user")
	connectionsAddCmd.Flags().StringVar(&addConn.Password, "password", "", "database password (supports ${ENV:...}, ${VAULT:...}, ${AWS_SM:...})")
	connectionsAddCmd.Flags().BoolVar(&addConn.SSL, "ssl", false, "use SSL")
	connectionsAddCmd.MarkFlagRequired("name")
	connectionsAddCmd.MarkFlagRequired("type")

	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(connectionsAddCmd)
	connectionsCmd.AddCommand(connectionsActivateCmd)
	connectionsCmd.AddCommand(connectionsDeactivateCmd)
	rootCmd.AddCommand(connectionsCmd)
}
