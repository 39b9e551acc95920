package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/psds-microservice/helpdesk-service/internal/database"
	"github.com/psds-microservice/helpdesk-service/internal/model"
	"github.com/psds-microservice/helpdesk-service/internal/service"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage helpdesk users",
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user with a role (admin, tecnico, cliente)",
	RunE:  runUsersAdd,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users holding a role",
	RunE:  runUsersList,
}

func init() {
	usersAddCmd.Flags().String("name", "", "display name")
	usersAddCmd.Flags().String("email", "", "unique email")
	usersAddCmd.Flags().String("role", string(model.RoleCliente), "admin, tecnico or cliente")
	_ = usersAddCmd.MarkFlagRequired("name")
	_ = usersAddCmd.MarkFlagRequired("email")

	usersListCmd.Flags().String("role", string(model.RoleTecnico), "admin, tecnico or cliente")

	usersCmd.AddCommand(usersAddCmd, usersListCmd)
	rootCmd.AddCommand(usersCmd)
}

func userService() (*service.UserService, error) {
	cfg, _, err := bootstrap()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	return service.NewUserService(db), nil
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	role, _ := cmd.Flags().GetString("role")

	users, err := userService()
	if err != nil {
		return err
	}
	u := &model.User{Name: name, Email: email, Role: model.Role(role)}
	if err := users.Create(cmd.Context(), u); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s, %s)\n", u.ID, u.Email, u.Role)
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	role, _ := cmd.Flags().GetString("role")
	if !model.Role(role).Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	users, err := userService()
	if err != nil {
		return err
	}
	list, err := users.ListByRole(cmd.Context(), model.Role(role))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
	for _, u := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role)
	}
	return w.Flush()
}
