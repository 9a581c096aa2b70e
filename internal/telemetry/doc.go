// Package telemetry — логи и метрики courier-api и courier-worker.
//
// logging.go настраивает slog по LOG_LEVEL и LOG_FORMAT и кладёт логгер
// в context; task_id, account_id и bulk_id добавляются через With*.
//
// metrics.go объявляет метрики с префиксом courier_: lease'ы аккаунтов,
// итоги send task'ов, длительность dispatch, auto-disable и HTTP-запросы API.
// Оба сервиса отдают их на /metrics.
package telemetry
