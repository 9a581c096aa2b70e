// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - send.requested — send task ждёт исполнения (API → worker)
//   - send.completed — send task завершён (worker → API)
//
// Exchanges:
//   - courier.sends — события send task'ов
//   - courier.dlq   — dead letter queue
//
// RabbitMQ — только транспорт уведомлений. Источник истины — таблица
// send_tasks: воркер дополнительно опрашивает PENDING task'и, а API —
// незавершённые bulk'и, поэтому потерянное сообщение лишь задерживает обработку.
package mq
