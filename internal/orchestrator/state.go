package orchestrator

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Courier/internal/domain"
)

// waiterSet — ожидающие итога task'а, по ID task.
//
// Каждый ожидающий получает свою копию task через канал с буфером 1,
// так что notify никогда не блокируется.
type waiterSet struct {
	mu     sync.Mutex
	byTask map[uuid.UUID][]chan domain.SendTask
}

func newWaiterSet() *waiterSet {
	return &waiterSet{byTask: make(map[uuid.UUID][]chan domain.SendTask)}
}

// add регистрирует ожидающего. Возвращённую функцию нужно вызвать,
// когда ожидание закончено.
func (w *waiterSet) add(id uuid.UUID) (<-chan domain.SendTask, func()) {
	ch := make(chan domain.SendTask, 1)

	w.mu.Lock()
	w.byTask[id] = append(w.byTask[id], ch)
	w.mu.Unlock()

	return ch, func() { w.remove(id, ch) }
}

func (w *waiterSet) remove(id uuid.UUID, ch chan domain.SendTask) {
	w.mu.Lock()
	defer w.mu.Unlock()

	list := w.byTask[id]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(w.byTask, id)
		return
	}
	w.byTask[id] = list
}

// notify будит всех ожидающих task и снимает их с учёта.
// Возвращает количество разбуженных.
func (w *waiterSet) notify(task *domain.SendTask) int {
	w.mu.Lock()
	list := w.byTask[task.ID]
	delete(w.byTask, task.ID)
	w.mu.Unlock()

	for _, ch := range list {
		ch <- *task
	}
	return len(list)
}

// len возвращает общее количество ожидающих.
func (w *waiterSet) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for _, list := range w.byTask {
		n += len(list)
	}
	return n
}
