// cmd/shieldctl/deadlines.go
package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/services"
)

func newDeadlinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadlines",
		Short: "Inspect claim SLAs and premium due dates",
	}

	cmd.AddCommand(newAtRiskCmd())
	cmd.AddCommand(newOverdueCmd())
	cmd.AddCommand(newPremiumsCmd())
	cmd.AddCommand(newMarkOverdueCmd())
	return cmd
}

func deadlineService() (*services.DeadlineService, error) {
	conn, err := openDB()
	if err != nil {
		return nil, err
	}
	return services.NewDeadlineService(conn, cfg.Claims.AtRiskLookahead), nil
}

func newAtRiskCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "at-risk",
		Short: "List open claims whose resolution deadline falls inside the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := deadlineService()
			if err != nil {
				return err
			}
			claims, err := svc.AtRiskClaims(cmd.Context(), models.SystemActor, window)
			if err != nil {
				return err
			}
			return printClaimDeadlines(cmd, claims)
		},
	}

	cmd.Flags().DurationVar(&window, "window", 0, "Lookahead window (default from CLAIMS_AT_RISK_LOOKAHEAD)")
	return cmd
}

func newOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open claims past their resolution deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := deadlineService()
			if err != nil {
				return err
			}
			claims, err := svc.OverdueClaims(cmd.Context(), models.SystemActor)
			if err != nil {
				return err
			}
			return printClaimDeadlines(cmd, claims)
		},
	}
}

func newPremiumsCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "premiums",
		Short: "List unpaid premiums due inside the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := deadlineService()
			if err != nil {
				return err
			}
			dues, err := svc.UpcomingPremiumDues(cmd.Context(), models.SystemActor, window)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(dues))
			for _, d := range dues {
				rows = append(rows, []string{
					d.PremiumID,
					d.PolicyholderID,
					string(d.Status),
					d.DueDate.Format(time.RFC3339),
					strconv.FormatFloat(d.FinalAmount, 'f', 2, 64) + " " + d.Currency,
				})
			}
			return printResult(cmd.OutOrStdout(), dues,
				[]string{"PREMIUM", "POLICYHOLDER", "STATUS", "DUE", "AMOUNT"}, rows)
		},
	}

	cmd.Flags().DurationVar(&window, "window", 72*time.Hour, "Lookahead window")
	return cmd
}

func newMarkOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-overdue",
		Short: "Move pending premiums past their due date to overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := deadlineService()
			if err != nil {
				return err
			}
			marked, err := svc.MarkOverduePremiums(cmd.Context(), models.SystemActor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d premium(s) marked overdue\n", marked)
			return nil
		},
	}
}

func printClaimDeadlines(cmd *cobra.Command, claims []services.ClaimDeadline) error {
	rows := make([][]string, 0, len(claims))
	for _, c := range claims {
		rows = append(rows, []string{
			c.ClaimID,
			c.PolicyholderID,
			string(c.Status),
			c.ResolutionDeadline.Format(time.RFC3339),
			c.Remaining,
		})
	}
	return printResult(cmd.OutOrStdout(), claims,
		[]string{"CLAIM", "POLICYHOLDER", "STATUS", "DEADLINE", "REMAINING"}, rows)
}
