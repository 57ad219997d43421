package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldtrack/core/user"
)

var (
	errNotAStudent = errors.New("user is not a student")
	errYesRequired = errors.New("--yes is required when stdin is not a terminal")
)

func (cli *commandLine) purgeCmd() *cobra.Command {
	var student string
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every form submission and phase completion of a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			if student == "" {
				return helpRunE(cmd, args)
			}
			usr, err := cli.findStudent(cmd.Context(), student)
			if err != nil {
				return err
			}

			if !yes {
				if !isInteractiveFunc() {
					return errYesRequired
				}
				ok, err := confirmFunc(fmt.Sprintf("Delete every submission of %q?", usr.DisplayName()))
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			cnt, err := cli.trainingSvc.Purge(cmd.Context(), usr.ID)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d submissions of %q deleted\n", cnt, usr.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVar(&student, "student", "", "The student's ID, username or email.")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation (required when stdin is not a terminal).")
	return cmd
}

// findStudent looks a student up by ID, then by username or email.
func (cli *commandLine) findStudent(ctx context.Context, ref string) (user.User, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{ID: ref})
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: ref})
	}
	if err != nil {
		return usr, err
	}
	if !usr.IsStudent() {
		return usr, errNotAStudent
	}
	return usr, nil
}
