package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage dashboard users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <email> <password>",
	Short: "Create a dashboard user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := setup()
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		user, err := st.CreateUser(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created user %s (id %d)\n", user.Email, user.ID)
		return nil
	},
}

func init() {
	userCmd.AddCommand(userAddCmd)
}
