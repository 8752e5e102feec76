package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/spigell/aura-hire/internal/apperr"
	"github.com/spigell/aura-hire/internal/candidate"
)

var candidatesCmd = &cobra.Command{
	Use:     "candidates",
	Aliases: []string{"candidate", "c"},
	Short:   "Manage the candidates of the hiring pipeline",
}

var candidatesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a candidate in the Pending Interview status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		position, _ := cmd.Flags().GetString("position")

		var err error
		if strings.TrimSpace(name) == "" {
			if name, err = promptText("Name"); err != nil {
				return err
			}
		}
		if strings.TrimSpace(position) == "" {
			if position, err = promptText("Position"); err != nil {
				return err
			}
		}

		return withApplication(cmd, false, func(ctx context.Context, a *application) error {
			c, err := a.registry.Add(ctx, name, position)
			if err != nil {
				return err
			}
			return printCandidate(cmd.OutOrStdout(), c)
		})
	},
}

var candidatesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List candidates, most recent first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("output-json")

		return withApplication(cmd, false, func(ctx context.Context, a *application) error {
			list, err := a.registry.List(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeIndented(cmd.OutOrStdout(), list)
			}
			return printCandidates(cmd.OutOrStdout(), list)
		})
	},
}

var candidatesGetCmd = &cobra.Command{
	Use:   "get <candidate-id>",
	Short: "Show one candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd, false, func(ctx context.Context, a *application) error {
			c, ok, err := a.registry.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: candidate %q", apperr.ErrNotFound, args[0])
			}
			return printCandidate(cmd.OutOrStdout(), c)
		})
	},
}

var candidatesStatusCmd = &cobra.Command{
	Use:   "status <candidate-id> [status]",
	Short: "Change the status of a candidate; asks for it when omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw string
		if len(args) == 2 {
			raw = args[1]
		} else {
			selected, err := promptStatus()
			if err != nil {
				return err
			}
			raw = selected
		}

		status, err := candidate.ParseStatus(raw)
		if err != nil {
			return err
		}

		return withApplication(cmd, false, func(ctx context.Context, a *application) error {
			updated, err := a.registry.UpdateStatus(ctx, args[0], status)
			if err != nil {
				return err
			}
			if !updated {
				return fmt.Errorf("%w: candidate %q", apperr.ErrNotFound, args[0])
			}

			c, _, err := a.registry.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printCandidate(cmd.OutOrStdout(), c)
		})
	},
}

var candidatesRemoveCmd = &cobra.Command{
	Use:     "remove <candidate-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a candidate",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd, false, func(ctx context.Context, a *application) error {
			removed, err := a.registry.Remove(ctx, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%w: candidate %q", apperr.ErrNotFound, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		})
	},
}

var candidatesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every candidate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			confirmed, err := confirm("Delete all candidates")
			if err != nil {
				return err
			}
			if !confirmed {
				return nil
			}
		}

		return withApplication(cmd, false, func(ctx context.Context, a *application) error {
			count, err := a.registry.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d candidates\n", count)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(candidatesCmd)
	candidatesCmd.AddCommand(candidatesAddCmd, candidatesListCmd, candidatesGetCmd,
		candidatesStatusCmd, candidatesRemoveCmd, candidatesClearCmd)

	candidatesAddCmd.Flags().StringP("name", "n", "", "candidate name")
	candidatesAddCmd.Flags().StringP("position", "p", "", "position the candidate applies for")
	candidatesListCmd.Flags().Bool("output-json", false, "print candidates as json")
	candidatesClearCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

// withApplication builds the application, runs fn and closes it again. Usage
// is only printed for argument errors, not for failures of fn.
func withApplication(cmd *cobra.Command, withInterviews bool, fn func(ctx context.Context, a *application) error) error {
	cmd.SilenceUsage = true

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApplication(ctx, withInterviews)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printCandidates(w io.Writer, list []candidate.Candidate) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPOSITION\tSTATUS\tLAST ACTIVE")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Position, c.Status, formatMillis(c.LastActive))
	}
	return tw.Flush()
}

func printCandidate(w io.Writer, c candidate.Candidate) error {
	return writeIndented(w, c)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format(time.DateTime)
}

func promptText(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("value is required")
			}
			return nil
		},
	}
	return prompt.Run()
}

func promptStatus() (string, error) {
	items := make([]string, 0, len(candidate.Statuses()))
	for _, s := range candidate.Statuses() {
		items = append(items, s.String())
	}

	prompt := promptui.Select{
		Label: "Choose a status and press ENTER",
		Items: items,
	}
	_, selected, err := prompt.Run()
	return selected, err
}

func confirm(label string) (bool, error) {
	prompt := promptui.Select{
		Label:  label + "?",
		Items:  []string{PromptYes, PromptNo},
		Stdout: os.Stderr,
	}
	_, answer, err := prompt.Run()
	if err != nil {
		return false, err
	}
	return answer == PromptYes, nil
}
