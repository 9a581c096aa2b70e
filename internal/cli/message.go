package cli

import (
	"github.com/spf13/cobra"
)

// NewLogCmd создаёт команду просмотра журнала отправок.
func NewLogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var accountID string
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the message log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := clientFn().ListMessages(accountID, limit)
			if err != nil {
				return err
			}

			headers := []string{"TIME", "ACCOUNT", "CONTACT", "RESULT", "MESSAGE", "ERROR"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{
					e.SentAt, e.AccountID, e.ContactID, e.Result,
					truncate(e.Message, 40), truncate(e.Error, 40),
				}
			}

			outputFn().Print(headers, rows, entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Filter by account ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries")

	return cmd
}
