package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var keyName string

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage access keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <connection-id>",
	Short: "Mint a new access key for a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := bootstrap(context.Background())
		if err != nil {
			return err
		}

		key, err := eng.Store().AddKey(args[0], keyName)
		if err != nil {
			return err
		}
		fmt.Printf("Access key created: %s\n", key.Token)
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <connection-id> <token>",
	Short: "Revoke an access key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, err := bootstrap(context.Background())
		if err != nil {
			return err
		}

		if err := eng.Store().RevokeKey(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Key revoked.")
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list <connection-id>",
	Short: "List a connection's access keys",
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
		if len(conn.Keys) == 0 {
			fmt.Println("No access keys.")
			return nil
		}
		for _, k := range conn.Keys {
			status := "revoked"
			if k.Active {
				status = "active"
			}
			fmt.Printf("  %s  %-20s %-8s created %s\n",
				k.Token, k.Name, status, k.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	keysCreateCmd.Flags().StringVar(&keyName, "name", "", "key name")
	keysCreateCmd.MarkFlagRequired("name")

	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)
	keysCmd.AddCommand(keysListCmd)
	rootCmd.AddCommand(keysCmd)
}
