// Package orchestrator отслеживает завершение send task'ов.
//
// Orchestrator работает внутри courier-api и отвечает за:
//   - Получение событий send.completed из очереди RabbitMQ
//   - Ожидание итога task для синхронных запросов на отправку
//   - Финализацию bulk-рассылок (DONE, если была хотя бы одна успешная
//     отправка, иначе FAILED)
//   - Polling активных bulk'ов на случай потерянных событий
package orchestrator
