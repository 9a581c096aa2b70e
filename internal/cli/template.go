package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTemplateCmd создаёт группу команд для шаблонов сообщений.
func NewTemplateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"templates"},
		Short:   "Manage message templates",
	}

	cmd.AddCommand(
		newTemplateListCmd(clientFn, outputFn),
		newTemplateCreateCmd(clientFn, outputFn),
		newTemplateDeleteCmd(clientFn, outputFn),
		newTemplatePreviewCmd(clientFn, outputFn),
	)

	return cmd
}

func newTemplateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := clientFn().ListTemplates()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "BODY"}
			rows := make([][]string, len(templates))
			for i, t := range templates {
				rows[i] = []string{t.ID, t.Name, truncate(t.Body, 60)}
			}

			outputFn().Print(headers, rows, templates)
			return nil
		},
	}
}

func newTemplateCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := clientFn().CreateTemplate(args[0], body)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Template created: %s", tmpl.ID))
			if out.jsonMode {
				out.JSON(tmpl)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&body, "body", "", `Template body, e.g. 'Hi {{ default "there" .Name }}!' (required)`)
	_ = cmd.MarkFlagRequired("body")

	return cmd
}

func newTemplateDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteTemplate(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Template deleted: %s", args[0]))
			return nil
		},
	}
}

func newTemplatePreviewCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var contact ContactInput

	cmd := &cobra.Command{
		Use:   "preview ID",
		Short: "Render a template for a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := clientFn().PreviewTemplate(args[0], contact)
			if err != nil {
				return err
			}

			out := outputFn()
			if out.jsonMode {
				out.JSON(map[string]string{"message": msg})
				return nil
			}
			fmt.Fprintln(out.w, msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&contact.JID, "jid", "", "Contact JID")
	cmd.Flags().StringVar(&contact.Name, "name", "", "Contact name")

	return cmd
}
