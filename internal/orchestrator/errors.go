package orchestrator

import "errors"

// ErrOrchestratorStopped — оркестратор остановлен.
var ErrOrchestratorStopped = errors.New("orchestrator stopped")
