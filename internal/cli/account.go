package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewAccountCmd создаёт группу команд для управления аккаунтами.
func NewAccountCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "account",
		Aliases: []string{"accounts"},
		Short:   "Manage messaging accounts",
	}

	cmd.AddCommand(
		newAccountListCmd(clientFn, outputFn),
		newAccountAddCmd(clientFn, outputFn),
		newAccountShowCmd(clientFn, outputFn),
		newAccountUpdateCmd(clientFn, outputFn),
		newAccountToggleCmd(clientFn, outputFn, true),
		newAccountToggleCmd(clientFn, outputFn, false),
		newAccountDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var accountHeaders = []string{"ID", "STATUS", "ENABLED", "TODAY", "LIMIT", "REMAINING", "FAILURES", "IN_USE", "LAST_ERROR"}

func accountRow(a AccountResponse) []string {
	return []string{
		a.ID, a.Status, strconv.FormatBool(a.Enabled),
		itoa(a.TodaySent), itoa(a.DailyLimit), itoa(a.RemainingToday),
		itoa(a.ConsecutiveFailures), strconv.FormatBool(a.InUse),
		truncate(a.LastError, 40),
	}
}

func newAccountListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var active bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := clientFn().ListAccounts(active)
			if err != nil {
				return err
			}

			rows := make([][]string, len(accounts))
			for i, a := range accounts {
				rows[i] = accountRow(a)
			}

			outputFn().Print(accountHeaders, rows, accounts)
			return nil
		},
	}

	cmd.Flags().BoolVar(&active, "active", false, "Only enabled accounts with healthy status")

	return cmd
}

func newAccountAddCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var profile string
	var phone string
	var limit int

	cmd := &cobra.Command{
		Use:   "add ID",
		Short: "Register an account bound to a browser profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			req := CreateAccountRequest{
				AccountID:   args[0],
				ProfilePath: profile,
				Phone:       phone,
			}
			if cmd.Flags().Changed("daily-limit") {
				req.DailyLimit = &limit
			}

			acc, err := clientFn().CreateAccount(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Account registered: %s", acc.ID))
			out.Print(accountHeaders, [][]string{accountRow(*acc)}, acc)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "Browser profile path (required)")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	cmd.Flags().IntVar(&limit, "daily-limit", 0, "Sends per day (server default if not specified)")
	_ = cmd.MarkFlagRequired("profile")

	return cmd
}

func newAccountShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show account details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := clientFn().GetAccount(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(accountHeaders, [][]string{accountRow(*acc)}, acc)
			return nil
		},
	}
}

func newAccountUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var profile string
	var phone string
	var limit int

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update account profile, phone or daily limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req UpdateAccountRequest
			if cmd.Flags().Changed("profile") {
				req.ProfilePath = &profile
			}
			if cmd.Flags().Changed("phone") {
				req.Phone = &phone
			}
			if cmd.Flags().Changed("daily-limit") {
				req.DailyLimit = &limit
			}
			if req.ProfilePath == nil && req.Phone == nil && req.DailyLimit == nil {
				return fmt.Errorf("nothing to update: set --profile, --phone or --daily-limit")
			}

			acc, err := clientFn().UpdateAccount(args[0], req)
			if err != nil {
				return err
			}

			outputFn().Print(accountHeaders, [][]string{accountRow(*acc)}, acc)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "Browser profile path")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	cmd.Flags().IntVar(&limit, "daily-limit", 0, "Sends per day")

	return cmd
}

func newAccountToggleCmd(clientFn func() *Client, outputFn func() *Output, enable bool) *cobra.Command {
	use, short := "disable ID", "Disable an account"
	if enable {
		use, short = "enable ID", "Enable an account and reset its failure counter"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()

			var acc *AccountResponse
			var err error
			if enable {
				acc, err = client.EnableAccount(args[0])
			} else {
				acc, err = client.DisableAccount(args[0])
			}
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Account %s: %s", acc.ID, acc.Status))
			return nil
		},
	}
}

func newAccountDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an account that is not in use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteAccount(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Account deleted: %s", args[0]))
			return nil
		},
	}
}
