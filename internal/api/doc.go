// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (сторы, publisher, кэш, orchestrator)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging + метрики, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - account_handler.go  — /accounts
//   - task_handler.go     — отправка, /tasks и отмена
//   - bulk_handler.go     — /bulk-sends
//   - contact_handler.go  — /contacts
//   - template_handler.go — /templates
//   - message_handler.go  — /messages
//
// Отправка создаёт send task и публикует send.requested; исполняет её
// worker. Синхронный режим ждёт итога через orchestrator.
package api
