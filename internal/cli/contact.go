package cli

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// NewContactCmd создаёт группу команд для управления контактами.
func NewContactCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contact",
		Aliases: []string{"contacts"},
		Short:   "Manage contacts",
	}

	cmd.AddCommand(
		newContactImportCmd(clientFn, outputFn),
		newContactListCmd(clientFn, outputFn),
		newContactInvalidateCmd(clientFn, outputFn),
	)

	return cmd
}

func newContactImportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import contacts from a JSON or CSV file",
		Long: `Import contacts from a file.

JSON: an array of {"jid": "...", "name": "...", "metadata": {...}}.
CSV (.csv): rows of jid,name; a header row starting with "jid" is skipped.
Use "-" to read JSON from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contacts, err := readContacts(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			out := outputFn()

			result, err := clientFn().ImportContacts(contacts)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Imported %d contacts: %d new, %d updated, %d skipped",
				result.Received, result.Inserted, result.Updated, result.Skipped))
			if out.jsonMode {
				out.JSON(result)
			}
			return nil
		},
	}
}

func newContactListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListContactsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			contacts, err := clientFn().ListContacts(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STATUS", "LAST_CONTACTED"}
			rows := make([][]string, len(contacts))
			for i, c := range contacts {
				rows[i] = []string{c.ID, c.Name, c.Status, c.LastContactedAt}
			}

			outputFn().Print(headers, rows, contacts)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (new, contacted, invalid)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of contacts to skip")

	return cmd
}

func newContactInvalidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate ID",
		Short: "Exclude a contact from further sends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contact, err := clientFn().InvalidateContact(args[0])
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Contact %s: %s", contact.ID, contact.Status))
			return nil
		},
	}
}

// readContacts читает контакты из файла (или stdin при path == "-").
func readContacts(path string, stdin io.Reader) ([]ContactInput, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open contacts file: %w", err)
		}
		defer f.Close()
		r = f
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return parseContactsCSV(r)
	}

	var contacts []ContactInput
	if err := json.NewDecoder(r).Decode(&contacts); err != nil {
		return nil, fmt.Errorf("parse contacts json: %w", err)
	}
	return contacts, nil
}

func parseContactsCSV(r io.Reader) ([]ContactInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var contacts []ContactInput
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse contacts csv: %w", err)
		}
		if line == 1 && len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "jid") {
			continue
		}

		var c ContactInput
		if len(record) > 0 {
			c.JID = strings.TrimSpace(record[0])
		}
		if len(record) > 1 {
			c.Name = strings.TrimSpace(record[1])
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}
