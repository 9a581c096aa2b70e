// Courier CLI — инструмент командной строки для аккаунтов, контактов,
// шаблонов и отправок через HTTP API.
//
// Использование:
//
//	courier [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	account   Управление аккаунтами
//	send      Отправка одного сообщения
//	task      Просмотр и отмена send task'ов
//	bulk      Bulk-рассылки
//	contact   Импорт и просмотр контактов
//	template  Шаблоны сообщений
//	log       Журнал отправок
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	_ = godotenv.Load()

	var apiURL string
	var jsonOutput bool

	defaultURL := os.Getenv("COURIER_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd := &cobra.Command{
		Use:           "courier",
		Short:         "Courier CLI — account-leasing message sender",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL (env COURIER_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewAccountCmd(clientFn, outputFn),
		cli.NewSendCmd(clientFn, outputFn),
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewBulkCmd(clientFn, outputFn),
		cli.NewContactCmd(clientFn, outputFn),
		cli.NewTemplateCmd(clientFn, outputFn),
		cli.NewLogCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
