package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/telemetry"
)

// Default configuration values.
const (
	defaultSessionTimeout = 5 * time.Minute
	defaultGracePeriod    = 5 * time.Second

	// eventBuffer — буфер канала событий. Диспетчер читает канал в
	// отдельной горутине, буфер сглаживает всплески вывода воркера.
	eventBuffer = 64

	// maxLineSize — предел длины одной строки stdout воркера.
	maxLineSize = 1 << 20
)

// SessionConfig — конфигурация запуска воркер-процесса.
type SessionConfig struct {
	// Bin — путь к бинарю воркера.
	Bin string

	// Args — дополнительные аргументы.
	Args []string

	// Descriptor — дескриптор задачи, отправляется первой строкой stdin.
	Descriptor Descriptor

	// SessionTimeout — жёсткий wall-clock лимит сессии
	// (default: 5m; Descriptor.Config.SessionTimeout имеет приоритет).
	SessionTimeout time.Duration

	// GracePeriod — пауза между stop-командой и принудительным kill.
	GracePeriod time.Duration

	// Logger
	Logger *slog.Logger
}

// Session — живой воркер-процесс, привязанный ровно к одной задаче.
//
// После Spawn события читаются из Events(), финальный результат — из
// Done(). Done() закрывается ровно один раз: либо результатом воркера,
// либо синтезированным WORKER_CRASHED / SESSION_TIMEOUT.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	events chan domain.TaskEvent
	done   chan SessionResult

	// readDone / stderrDone закрываются при EOF соответствующего
	// pipe. cmd.Wait закрывает pipe-ы процесса, поэтому waitLoop
	// обязан дождаться читателей, иначе финальная строка результата
	// теряется и успешный прогон засчитывается как crash.
	readDone   chan struct{}
	stderrDone chan struct{}

	// ended закрывается после фиксации результата. Наблюдатели ждут
	// его, не конкурируя с диспетчером за единственное значение done.
	ended chan struct{}

	grace time.Duration

	mu       sync.Mutex
	closed   bool
	gotFinal bool

	killTimer *time.Timer
}

// Spawn запускает воркер-процесс и отправляет ему дескриптор.
func Spawn(ctx context.Context, cfg SessionConfig) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("task_id", cfg.Descriptor.TaskID)

	timeout := cfg.Descriptor.Config.SessionTimeout
	if timeout <= 0 {
		timeout = cfg.SessionTimeout
	}
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}

	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	cmd := exec.CommandContext(ctx, cfg.Bin, cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	logger = telemetry.WithWorkerPID(logger, cmd.Process.Pid)

	s := &Session{
		cmd:        cmd,
		stdin:      stdin,
		logger:     logger,
		events:     make(chan domain.TaskEvent, eventBuffer),
		done:       make(chan SessionResult, 1),
		readDone:   make(chan struct{}),
		stderrDone: make(chan struct{}),
		ended:      make(chan struct{}),
		grace:      grace,
	}

	// Дескриптор — одна JSON-строка при запуске.
	if err := s.writeLine(cfg.Descriptor); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("%w: write descriptor: %v", ErrSpawnFailed, err)
	}

	// Жёсткий wall-clock таймаут всей сессии.
	s.killTimer = time.AfterFunc(timeout, func() {
		s.logger.Warn("session timeout, killing worker", "timeout", timeout)
		s.finish(SessionResult{
			Kind: domain.KindSessionTimeout,
			Result: &domain.TaskResult{
				Outcome: domain.OutcomeFailure,
				Error: &domain.ErrorDetail{
					Kind:    domain.KindSessionTimeout,
					Message: fmt.Sprintf("no terminal result within %s", timeout),
				},
			},
		})
		_ = cmd.Process.Kill()
	})

	go s.readLoop(stdout)
	go s.logStderr(stderr)
	go s.waitLoop()

	logger.Info("worker spawned", "session_timeout", timeout)
	return s, nil
}

// Events возвращает канал событий воркера в порядке испускания.
// Канал закрывается после финального результата.
func (s *Session) Events() <-chan domain.TaskEvent {
	return s.events
}

// Done возвращает канал финального результата сессии (ровно одно значение).
func (s *Session) Done() <-chan SessionResult {
	return s.done
}

// Pid возвращает PID воркер-процесса.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// Send отправляет воркеру командную строку.
func (s *Session) Send(cmd CommandName) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return s.writeLine(Command{Command: cmd})
}

// Terminate кооперативно останавливает воркера: stop-команда, grace
// period, затем принудительный kill.
func (s *Session) Terminate() {
	if err := s.Send(CommandStop); err != nil {
		_ = s.cmd.Process.Kill()
		return
	}

	grace := time.AfterFunc(s.grace, func() {
		s.logger.Warn("grace period expired, killing worker")
		_ = s.cmd.Process.Kill()
	})

	go func() {
		<-s.ended
		grace.Stop()
	}()
}

// readLoop читает stdout воркера построчно.
//
// Не-JSON строки не рушат поток: они заворачиваются в raw_log события.
// readLoop — единственный отправитель и единственный закрывающий
// канала событий.
func (s *Session) readLoop(stdout io.Reader) {
	defer close(s.events)
	defer close(s.readDone)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg WireMessage
		if err := json.Unmarshal(line, &msg); err != nil || msg.Type == "" {
			s.emit(domain.TaskEvent{
				Type:      domain.EventRawLog,
				Message:   string(line),
				Timestamp: time.Now().UTC(),
			})
			continue
		}

		if msg.Type == wireResult {
			result := msg.Result
			if result == nil {
				result = &domain.TaskResult{Outcome: domain.OutcomeAmbiguous}
			}
			s.finish(SessionResult{Result: result})
			return
		}

		evType := domain.EventType(msg.Type)
		if !evType.Valid() {
			evType = domain.EventRawLog
		}

		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		s.emit(domain.TaskEvent{
			Type:      evType,
			Message:   msg.Message,
			Data:      msg.Data,
			Timestamp: ts,
		})
	}
}

// waitLoop ждёт завершения процесса.
//
// Выход без финального результата — это crash: задача помечается
// WORKER_CRASHED по факту завершения процесса, а не по отчёту воркера.
func (s *Session) waitLoop() {
	// Wait закрывает stdout/stderr pipe-ы процесса: звать его можно
	// только после того, как читатели дошли до EOF, иначе хвост
	// вывода (включая строку результата) пропадает.
	<-s.readDone
	<-s.stderrDone
	err := s.cmd.Wait()

	s.mu.Lock()
	gotFinal := s.gotFinal
	s.mu.Unlock()

	if gotFinal {
		return
	}

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	s.logger.Warn("worker exited without terminal result", "error", err)
	s.finish(SessionResult{
		Kind: domain.KindWorkerCrashed,
		Result: &domain.TaskResult{
			Outcome: domain.OutcomeFailure,
			Error: &domain.ErrorDetail{
				Kind:    domain.KindWorkerCrashed,
				Message: "worker process exited without terminal result",
				Detail:  detail,
			},
		},
	})
}

// logStderr пишет stderr воркера в журнал оркестратора.
func (s *Session) logStderr(stderr io.Reader) {
	defer close(s.stderrDone)

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		s.logger.Debug("worker stderr", "line", scanner.Text())
	}
}

// emit отправляет событие, если сессия ещё не завершена.
func (s *Session) emit(ev domain.TaskEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.events <- ev
}

// finish фиксирует финальный результат ровно один раз.
func (s *Session) finish(res SessionResult) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gotFinal = res.Kind == ""
	s.mu.Unlock()

	if s.killTimer != nil {
		s.killTimer.Stop()
	}
	_ = s.stdin.Close()

	s.done <- res
	close(s.done)
	close(s.ended)
}

func (s *Session) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}
