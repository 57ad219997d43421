package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/user"
)

var roleFlags = map[string][]string{
	"student":     user.StudentRoles,
	"coordinator": user.CoordinatorRoles,
	"admin":       user.AdminRoles,
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, uname, email, role string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update it if the username or email is taken. The password is prompted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if uname == "" || email == "" {
				return helpRunE(cmd, args)
			}
			roles, ok := roleFlags[role]
			if !ok {
				return errors.Errorf("unknown role %q: expected student, coordinator or admin", role)
			}
			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			if pwd == "" {
				return helpRunE(cmd, args)
			}

			usr, err := cli.addUser(cmd.Context(), name, uname, email, pwd, roles)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user %q saved (id: %s)\n", usr.Username, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "The user's full name.")
	cmd.Flags().StringVar(&uname, "username", "", "The user's username.")
	cmd.Flags().StringVar(&email, "email", "", "The user's email.")
	cmd.Flags().StringVar(&role, "role", "admin", "One of: student, coordinator, admin.")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, roles []string) (user.User, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	}
	isNew := errors.Cause(err) == user.ErrNotFound
	if err != nil && !isNew {
		return usr, err
	}
	if isNew {
		usr = user.User{CreatedAt: now}
	}

	usr.Username = uname
	usr.Email = email
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	usr.Roles = roles
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return usr, err
	}

	if isNew {
		return cli.usrRepo.CreateUser(ctx, usr)
	}
	return cli.usrRepo.UpdateUser(ctx, usr)
}
