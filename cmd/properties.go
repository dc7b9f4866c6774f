package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/veildb/veildb/internal/property"
)

var propertiesFile string

var propertiesCmd = &cobra.Command{
	Use:   "properties",
	Short: "Manage a connection's exposed properties",
}

var propertiesSuggestCmd = &cobra.Command{
	Use:   "suggest <connection-id>",
	Short: "Suggest a users table and default property list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, _, _, err := bootstrap(ctx)
		if err != nil {
			return err
		}

		sug, err := eng.Suggest(ctx, args[0])
		if err != nil {
			return err
		}
		if sug.UsersTable == "" {
			fmt.Println("No users table candidate found; pick one from the schema.")
			return nil
		}

		fmt.Printf("Suggested users table: %s\n\n", sug.UsersTable)
		data, err := yaml.Marshal(sug.Properties)
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	},
}

var propertiesSaveCmd = &cobra.Command{
	Use:   "save <connection-id> <users-table>",
	Short: "Validate and save a property list from a yaml file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, _, _, err := bootstrap(ctx)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(propertiesFile)
		if err != nil {
			return fmt.Errorf("reading properties file: %w", err)
		}
		var specs []property.Spec
		if err := yaml.Unmarshal(data, &specs); err != nil {
			return fmt.Errorf("parsing properties file: %w", err)
		}

		if err := eng.SetUsersTable(ctx, args[0], args[1]); err != nil {
			return err
		}
		if err := eng.SaveProperties(ctx, args[0], specs); err != nil {
			return err
		}
		fmt.Printf("Saved %d properties.\n", len(specs))
		return nil
	},
}

var propertiesShowCmd = &cobra.Command{
	Use:   "show <connection-id>",
	Short: "Show the saved property list",
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
		if len(conn.Properties) == 0 {
			fmt.Println("No properties configured.")
			return nil
		}

		fmt.Printf("Users table: %s\n\n", conn.UsersTable)
		data, err := yaml.Marshal(conn.Properties)
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	},
}

func init() {
	propertiesSaveCmd.Flags().StringVar(&propertiesFile, "file", "", "yaml file holding the property list")
	propertiesSaveCmd.MarkFlagRequired("file")

	propertiesCmd.AddCommand(propertiesSuggestCmd)
	propertiesCmd.AddCommand(propertiesSaveCmd)
	propertiesCmd.AddCommand(propertiesShowCmd)
	rootCmd.AddCommand(propertiesCmd)
}
