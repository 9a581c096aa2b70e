// Package worker исполняет send task'и.
//
// # Обзор
//
// Worker — процесс, который берёт send task'и, созданные API, и проводит
// каждый через scheduler.Scheduler. Worker отвечает за:
//
//   - Получение запросов из очереди RabbitMQ sends.requested (event-driven)
//   - Периодическую проверку PENDING task'ов в БД (polling fallback)
//   - Ограничение числа одновременных отправок (MAX_CONCURRENT_SENDS)
//   - Публикацию итога в sends.completed и запись в Redis-кэш
//   - Завершение task'ов, брошенных прошлым процессом
//   - Запуск sweeper'а stale lease'ов
//
// В системе работает один активный Worker: cmd/courier-worker берёт
// advisory lock PostgreSQL перед запуском, второй экземпляр ждёт.
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Tasks:         taskRepo,
//	    Runner:        sched,
//	    Publisher:     publisher,
//	    Cache:         outcomeCache,
//	    Sweeper:       sweeper,
//	    Conn:          mqConn,
//	    MaxConcurrent: cfg.Send.MaxConcurrent,
//	    Logger:        logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка task
//
//  1. Запрос приходит из очереди или из polling
//  2. Task помечается как "в работе" (повторный запрос игнорируется)
//  3. Ожидание слота семафора
//  4. Загрузка task из БД, проверка состояния PENDING
//  5. scheduler.Run доводит task до финального состояния
//  6. Публикация send.completed и запись в кэш
//
// # Ошибки
//
// Task, который не нужно исполнять (не найден, уже не PENDING, уже
// в работе), подтверждается без повтора. Прочие ошибки возвращают
// сообщение в очередь один раз, повторная ошибка уводит его в DLQ.
package worker
