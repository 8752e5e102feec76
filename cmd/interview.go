package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/apperr"
	"github.com/spigell/aura-hire/internal/candidate"
	"github.com/spigell/aura-hire/internal/interview"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"

	commandQuit    = "/quit"
	commandRestart = "/restart"
)

var interviewCmd = &cobra.Command{
	Use:   "interview <candidate-id>",
	Short: "Run an interactive interview with a candidate",
	Long: "Run an interactive interview with a candidate. Type " + commandRestart +
		" to start over and " + commandQuit + " (or Ctrl+D) to finish.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		keepStatus, _ := cmd.Flags().GetBool("keep-status")

		return withApplication(cmd, true, func(ctx context.Context, a *application) error {
			return runInterview(ctx, cmd.OutOrStdout(), a, args[0], model, !keepStatus)
		})
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)

	interviewCmd.Flags().StringP("model", "m", "", "model id such as google/gemini-2.5-flash (default from config)")
	interviewCmd.Flags().Bool("keep-status", false, "do not change the candidate status")
}

func runInterview(ctx context.Context, out io.Writer, a *application, candidateID, model string, trackStatus bool) error {
	session, err := a.interviews.Start(ctx, candidateID, model)
	if err != nil {
		return err
	}
	defer a.interviews.End(session.ID())

	c := session.Candidate()
	a.logger.Info("starting the interview",
		zap.String("candidate", c.Name),
		zap.String("position", c.Position),
		zap.String("model", session.Model()),
	)

	if trackStatus {
		if err := setStatus(ctx, a, c.ID, candidate.StatusInterviewing); err != nil {
			return err
		}
	}

	interviewer := a.config.Interview.persona().InterviewerName()
	printTranscript(out, interviewer, session.Messages())

	prompt := promptui.Prompt{Label: c.Name}
loop:
	for {
		text, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrInterrupt) {
				break loop
			}
			return err
		}

		switch strings.TrimSpace(text) {
		case "":
			continue
		case commandQuit:
			break loop
		case commandRestart:
			messages, err := a.interviews.Restart(session.ID())
			if err != nil {
				return err
			}
			printTranscript(out, interviewer, messages)
			continue
		}

		fmt.Fprintf(out, "\n%s: ", interviewer)
		_, err = session.Send(ctx, text, "", func(fragment string) {
			fmt.Fprint(out, fragment)
		})
		fmt.Fprintln(out)

		if err != nil {
			if errors.Is(err, apperr.ErrCompletion) {
				// The answer is already recorded, so the candidate can simply go on.
				a.logger.Error("getting the interviewer reply", zap.Error(err))
				continue
			}
			return err
		}
		fmt.Fprintln(out)
	}

	return finishInterview(ctx, a, c, trackStatus)
}

func finishInterview(ctx context.Context, a *application, c candidate.Candidate, trackStatus bool) error {
	if !trackStatus {
		return nil
	}

	completed, err := confirm("Mark " + c.Name + " as " + candidate.StatusCompleted.String())
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		return err
	}
	if !completed {
		return nil
	}
	return setStatus(ctx, a, c.ID, candidate.StatusCompleted)
}

func setStatus(ctx context.Context, a *application, id string, status candidate.Status) error {
	updated, err := a.registry.UpdateStatus(ctx, id, status)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("%w: candidate %q", apperr.ErrNotFound, id)
	}
	return nil
}

func printTranscript(out io.Writer, interviewer string, messages []interview.ChatMessage) {
	for _, m := range messages {
		speaker := "You"
		if m.Role == ai.RoleAssistant {
			speaker = interviewer
		}
		fmt.Fprintf(out, "\n%s: %s\n", speaker, m.Content)
	}
	fmt.Fprintln(out)
}
