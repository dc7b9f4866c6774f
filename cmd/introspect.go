package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var introspectCmd = &cobra.Command{
	Use:   "introspect <connection-id>",
	Short: "Extract and display a connection's schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		eng, _, _, err := bootstrap(ctx)
		if err != nil {
			return err
		}

		s, err := eng.Introspect(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Discovered %d tables:\n\n", len(s.Tables))
		for _, t := range s.Tables {
			fmt.Printf("  %s\n", t.Name)
			for _, c := range t.Columns {
				marker := " "
				if c.Name == t.PrimaryKey {
					marker = "*"
				}
				fmt.Printf("   %s %-24s %s\n", marker, c.Name, c.DataType)
			}
			for _, fk := range t.ForeignKeys {
				fmt.Printf("    -> %s.%s via %s\n", fk.ToTable, fk.ToColumn, fk.FromColumn)
			}
			fmt.Println()
		}

		sug, err := eng.Suggest(ctx, args[0])
		if err == nil && len(sug.Tables) > 0 {
			fmt.Printf("Users table candidates: %s\n", strings.Join(sug.Tables, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(introspectCmd)
}
