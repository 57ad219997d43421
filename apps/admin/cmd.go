package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/training"
	"github.com/fieldtrack/fieldtrack/core/user"
)

var (
	// mockable
	readPasswordFunc  = term.ReadPassword
	isInteractiveFunc = isInteractive
	confirmFunc       = confirm

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf        *core.Config
	db          *sqlx.DB
	usrRepo     user.Repository
	trainingSvc training.Service
	in          io.Reader // defaults to os.Stdin
	out         io.Writer // defaults to os.Stdout
}

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithShowHelp(false).Run()
	return ok, err
}

func (cli *commandLine) input() io.Reader {
	if cli.in == nil {
		return os.Stdin
	}
	return cli.in
}

func (cli *commandLine) output() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "FieldTrack administration",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          helpRunE,
	}
	root.SetOut(cli.output())
	root.SetErr(cli.output())

	root.AddCommand(
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.migrateCmd(),
		cli.purgeCmd(),
		cli.programCmd(),
		cli.progressCmd(),
	)
	return root
}

// run executes the command line; args includes the program name.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 1 {
		root.SetArgs(args[1:])
	} else {
		root.SetArgs([]string{})
	}
	return root.Execute()
}

func helpRunE(cmd *cobra.Command, _ []string) error {
	_ = cmd.Help()
	return errHelp
}

// promptPassword reads the password without echo, or the first line of stdin when it is piped.
func (cli *commandLine) promptPassword() (string, error) {
	if !isInteractiveFunc() {
		line, err := bufio.NewReader(cli.input()).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	_, _ = fmt.Fprint(cli.output(), "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.output())
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
