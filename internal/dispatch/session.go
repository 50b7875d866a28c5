package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// workerSession — эфемерная привязка воркер-процесса к одной задаче.
//
// Создаётся при допуске задачи, уничтожается при достижении финального
// статуса, отмене или крахе процесса.
type workerSession struct {
	taskID uuid.UUID
	sess   WorkerHandle

	mu sync.Mutex

	// cancelled — пользователь запросил отмену; финализация должна
	// завершиться CANCELLED вне зависимости от результата воркера.
	cancelled bool

	// intervention — задача в INTERVENTION_NEEDED.
	intervention bool

	// interventionKind — вид ошибки, вызвавшей эскалацию. Попадает в
	// ErrorDetail при таймауте или отказе от вмешательства.
	interventionKind domain.ErrorKind

	// interventionTimer — таймер отказа: вмешательство, не разрешённое
	// вовремя, завершает задачу FAILED.
	interventionTimer *time.Timer
}

func (ws *workerSession) markCancelled() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.cancelled = true
}

func (ws *workerSession) isCancelled() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.cancelled
}

func (ws *workerSession) enterIntervention(timer *time.Timer, kind domain.ErrorKind) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.intervention = true
	ws.interventionKind = kind
	ws.interventionTimer = timer
}

// errKind возвращает вид ошибки текущего вмешательства.
func (ws *workerSession) errKind() domain.ErrorKind {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.interventionKind == "" {
		return domain.KindUnknown
	}
	return ws.interventionKind
}

// leaveIntervention останавливает таймер отказа. Возвращает false, если
// задача не была в состоянии вмешательства.
func (ws *workerSession) leaveIntervention() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if !ws.intervention {
		return false
	}
	ws.intervention = false
	if ws.interventionTimer != nil {
		ws.interventionTimer.Stop()
		ws.interventionTimer = nil
	}
	return true
}

func (ws *workerSession) inIntervention() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.intervention
}
