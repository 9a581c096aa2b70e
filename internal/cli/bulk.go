package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewBulkCmd создаёт группу команд для bulk-рассылок.
func NewBulkCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Manage bulk sends",
	}

	cmd.AddCommand(
		newBulkCreateCmd(clientFn, outputFn),
		newBulkListCmd(clientFn, outputFn),
		newBulkShowCmd(clientFn, outputFn),
		newBulkTasksCmd(clientFn, outputFn),
	)

	return cmd
}

var bulkHeaders = []string{"ID", "MODE", "STATUS", "TOTAL", "SUCCEEDED", "PENDING", "ERROR", "CREATED"}

func bulkRow(b BulkResponse) []string {
	succeeded, pending := "-", "-"
	if b.Summary != nil {
		succeeded = itoa(b.Summary.Succeeded)
		pending = itoa(b.Summary.Pending)
	}
	return []string{b.ID, b.Mode, b.Status, itoa(b.Total), succeeded, pending, b.Error, b.CreatedAt}
}

func newBulkCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateBulkRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a bulk send",
		Long: `Create a bulk send.

per_account: one task per account (--account, or every active account).
round_robin: --count tasks spread over active accounts in order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Message == "" && req.TemplateID == "" {
				return fmt.Errorf("either --message or --template is required")
			}
			if req.Mode == "round_robin" && req.Count <= 0 {
				return fmt.Errorf("--count is required for round_robin")
			}

			out := outputFn()

			bulk, err := clientFn().CreateBulk(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Bulk started: %s (%d tasks)", bulk.ID, bulk.Total))
			out.Print(bulkHeaders, [][]string{bulkRow(*bulk)}, bulk)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Message, "message", "m", "", "Message text")
	cmd.Flags().StringVar(&req.TemplateID, "template", "", "Template ID")
	cmd.Flags().StringSliceVar(&req.AccountIDs, "account", nil, "Account IDs (repeatable, default: all active)")
	cmd.Flags().StringVar(&req.Mode, "mode", "per_account", "Distribution mode: per_account or round_robin")
	cmd.Flags().IntVar(&req.Count, "count", 0, "Number of tasks for round_robin")

	return cmd
}

func newBulkListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent bulk sends",
		RunE: func(cmd *cobra.Command, args []string) error {
			bulks, err := clientFn().ListBulks(limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(bulks))
			for i, b := range bulks {
				rows[i] = bulkRow(b)
			}

			outputFn().Print(bulkHeaders, rows, bulks)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newBulkShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show bulk progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bulk, err := clientFn().GetBulk(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(bulkHeaders, [][]string{bulkRow(*bulk)}, bulk)
			return nil
		},
	}
}

func newBulkTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks ID",
		Short: "List tasks of a bulk send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListBulkTasks(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = taskRow(t)
			}

			outputFn().Print(taskHeaders, rows, tasks)
			return nil
		},
	}
}
