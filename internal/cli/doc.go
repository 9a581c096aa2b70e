// Package cli реализует инструмент командной строки Courier.
//
// CLI работает через HTTP API и не импортирует внутренние пакеты системы.
// Типы ответов дублируются в client.go.
//
// # Client
//
// HTTP-клиент для Courier API: запросы, разбор DataResponse/ListResponse
// и ошибок API (APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	task, err := client.Send("acc-1", cli.SendRequest{Message: "Hi {{ .Name }}"}, true)
//
// # Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные пишутся в stdout, сообщения в stderr:
//
//	courier task list --json | jq .
//
// # Commands
//
//   - account: list, add, show, update, enable, disable, delete
//   - send ACCOUNT_ID
//   - task: list, show, cancel
//   - bulk: create, list, show, tasks
//   - contact: import, list, invalidate
//   - template: list, create, delete, preview
//   - log
//
// Каждая группа создаётся фабрикой (NewAccountCmd и т.д.), которая принимает
// clientFn и outputFn: Client и Output создаются лениво, после разбора
// PersistentFlags.
package cli
