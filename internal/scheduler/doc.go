// Package scheduler исполняет send task'и.
//
// Scheduler проводит task через цепочку:
//
//	lease → квота и здоровье → сессия профиля → выбор контакта → отправка → фиксация
//
// После отправки четыре шага выполняются всегда и строго по порядку:
// контакт помечается contacted, в журнал пишется запись, результат
// учитывается в счётчиках аккаунта, lease отпускается. Каждый шаг
// идемпотентен, поэтому повтор фиксации ничего не ломает.
//
// Структура:
//   - scheduler.go — Scheduler.Run и шаги жизненного цикла task
//   - cron.go      — Sweeper: периодический reclaim stale lease'ов
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Accounts: accountRepo,
//	    Contacts: contactRepo,
//	    Messages: messageRepo,
//	    Tasks:    taskRepo,
//	    Leases:   leases,
//	    Policy:   quota.DefaultPolicy(),
//	    Driver:   driver.NewRemote(driver.RemoteConfig{BaseURL: cfg.Send.DriverURL}),
//	    Simulate: cfg.Send.Simulate,
//	    Logger:   logger,
//	})
//
//	if err := sched.Run(ctx, task); err != nil {
//	    logger.Error("task failed", "error", err)
//	}
//
// Конкурентность:
//
// Run можно вызывать параллельно для разных task'ов. Две task'и одного
// аккаунта не исполняются одновременно: вторая получает LEASE_BUSY.
package scheduler
