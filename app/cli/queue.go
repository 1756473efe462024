package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"budgetPilot/business/changequeue"
	"budgetPilot/domain"

	"github.com/spf13/cobra"
)

func queueCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair pending platform changes",
	}
	cmd.AddCommand(queueStatsCmd(open))
	cmd.AddCommand(queueListCmd(open))
	cmd.AddCommand(queueCancelCmd(open))
	cmd.AddCommand(queueRequeueCmd(open))
	return cmd
}

func queueStatsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count changes per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			statuses := make([]string, 0, len(stats))
			for s := range stats {
				statuses = append(statuses, string(s))
			}
			sort.Strings(statuses)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%d\n", s, stats[domain.ChangeStatus(s)])
			}
			return w.Flush()
		},
	}
}

func queueListCmd(open opener) *cobra.Command {
	var (
		status   string
		entityID string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List changes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := svc.List(cmd.Context(), changequeue.ListFilter{
				Status:   domain.ChangeStatus(status),
				EntityID: entityID,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tENTITY\tKIND\tVALUE\tSTATUS\tATTEMPTS\tNEXT\tLAST ERROR")
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%s/%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					c.ID, c.EntityType, c.EntityID, c.ChangeKind, c.RequestedValue,
					c.Status, c.AttemptCount, c.MaxAttempts,
					c.EarliestExecuteAt.Format(time.RFC3339), c.LastError)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (e.g. failed)")
	cmd.Flags().StringVar(&entityID, "entity", "", "Filter by entity id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	return cmd
}

func queueCancelCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <change-id>",
		Short: "Cancel a change that has not been claimed yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}

func queueRequeueCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <change-id>",
		Short: "Put a failed change back in the queue with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.Requeue(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return nil
		},
	}
}
