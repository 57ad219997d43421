package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldtrack/core/training"
)

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	_, _ = fmt.Fprintln(w, t.String())
}

func joinPhaseIDs(ids []training.PhaseID) string {
	if len(ids) == 0 {
		return "-"
	}
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, string(id))
	}
	return strings.Join(strs, ", ")
}

func (cli *commandLine) programCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "program",
		Short: "Print the training program, or check a program file with --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			program := cli.trainingSvc.Program()
			if file != "" {
				var err error
				if program, err = training.LoadProgramFile(file); err != nil {
					return err
				}
			}
			printProgram(cmd.OutOrStdout(), program)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "A program YAML file to validate & print.")
	return cmd
}

func printProgram(w io.Writer, program *training.Program) {
	_, _ = fmt.Fprintf(w, "%s\n", program.Name)

	total := 0
	rows := make([][]string, 0, len(program.Phases))
	for _, ph := range program.Phases {
		total += ph.Total
		always := ""
		if program.IsAlwaysAccessible(ph.ID) {
			always = "yes"
		}
		rows = append(rows, []string{string(ph.ID), ph.Name, strconv.Itoa(ph.Total), joinPhaseIDs(ph.Prerequisites), always})
	}
	renderTable(w, []string{"ID", "Name", "Forms", "Prerequisites", "Always accessible"}, rows)
	_, _ = fmt.Fprintf(w, "%d phases, %d forms\n", len(program.Phases), total)
}

func (cli *commandLine) progressCmd() *cobra.Command {
	var student string

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Print the progress of a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			if student == "" {
				return helpRunE(cmd, args)
			}
			usr, err := cli.findStudent(cmd.Context(), student)
			if err != nil {
				return err
			}
			prog, err := cli.trainingSvc.Progress(cmd.Context(), usr.ID)
			if err != nil {
				return err
			}
			printProgress(cmd.OutOrStdout(), usr.DisplayName(), prog)
			return nil
		},
	}
	cmd.Flags().StringVar(&student, "student", "", "The student's ID, username or email.")
	return cmd
}

func printProgress(w io.Writer, name string, prog training.StudentProgress) {
	sum := prog.Summary
	_, _ = fmt.Fprintf(w, "%s: %d%% (%d/%d forms, %d/%d phases)\n",
		name, sum.OverallPercentage, sum.CompletedForms, sum.TotalForms, sum.CompletedPhases, sum.TotalPhases)

	rows := make([][]string, 0, len(prog.Phases))
	for _, ps := range prog.Phases {
		rows = append(rows, []string{
			string(ps.ID),
			fmt.Sprintf("%d/%d", ps.Completed, ps.Total),
			ps.Label(),
			joinPhaseIDs(ps.MissingPrerequisites),
		})
	}
	renderTable(w, []string{"Phase", "Forms", "Status", "Waiting for"}, rows)

	if prog.CurrentPhase != nil {
		_, _ = fmt.Fprintf(w, "current phase: %s\n", prog.CurrentPhase.ID)
	}
}
