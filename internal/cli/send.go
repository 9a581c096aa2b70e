package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var taskHeaders = []string{"ID", "ACCOUNT", "STATE", "OUTCOME", "CONTACT", "DETAIL", "CREATED"}

func taskRow(t TaskResponse) []string {
	return []string{
		t.ID, t.AccountID, t.State, outcome(t),
		t.ContactJID, truncate(t.Detail, 40), t.CreatedAt,
	}
}

// NewSendCmd создаёт команду отправки одного сообщения.
func NewSendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var message string
	var templateID string
	var async bool

	cmd := &cobra.Command{
		Use:   "send ACCOUNT_ID",
		Short: "Send one message from an account to the next available contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" && templateID == "" {
				return fmt.Errorf("either --message or --template is required")
			}

			out := outputFn()

			task, err := clientFn().Send(args[0], SendRequest{
				Message:    message,
				TemplateID: templateID,
			}, !async)
			if err != nil {
				return err
			}

			if task.Finished {
				out.Success(fmt.Sprintf("Task %s finished: %s", task.ID, outcome(*task)))
			} else {
				out.Success(fmt.Sprintf("Task queued: %s", task.ID))
			}
			out.Print(taskHeaders, [][]string{taskRow(*task)}, task)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Message text (may use {{ .Name }} placeholders)")
	cmd.Flags().StringVar(&templateID, "template", "", "Template ID")
	cmd.Flags().BoolVar(&async, "async", false, "Do not wait for the send outcome")

	return cmd
}

// NewTaskCmd создаёт группу команд для просмотра и отмены send task'ов.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Inspect and cancel send tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListTasksOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List send tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(opts)
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

	cmd.Flags().StringVar(&opts.AccountID, "account", "", "Filter by account ID")
	cmd.Flags().StringVar(&opts.State, "state", "", "Filter by state (PENDING, LEASED, ELIGIBLE, DISPATCHED, COMPLETED, REJECTED, ABORTED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show send task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().GetTask(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(taskHeaders, [][]string{taskRow(*task)}, task)
			return nil
		},
	}
}

func newTaskCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a task that has not been dispatched yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := clientFn().CancelTask(args[0])
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Task cancelled: %s", task.ID))
			return nil
		},
	}
}
