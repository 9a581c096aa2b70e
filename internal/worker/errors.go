package worker

import "errors"

// Ошибки воркера.
var (
	// ErrTaskNotFound — task не найден в БД.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotPending — task уже не в состоянии PENDING (исполнен или отменён).
	ErrTaskNotPending = errors.New("task is not in PENDING state")

	// ErrTaskInFlight — task уже исполняется этим воркером.
	ErrTaskInFlight = errors.New("task is already in flight")

	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")
)

// isSkip — ситуации, когда task просто не нужно исполнять.
func isSkip(err error) bool {
	return errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrTaskNotPending) ||
		errors.Is(err, ErrTaskInFlight) ||
		errors.Is(err, ErrWorkerStopped)
}
