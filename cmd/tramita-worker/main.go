// Tramita Worker — выполняет одну задачу автоматизации.
//
// Worker:
//   - Читает дескриптор задачи первой строкой stdin
//   - Ведёт браузерную сессию против целевого портала
//   - Пишет события NDJSON в stdout, финальный результат — последним
//   - Принимает команды pause/resume/take_control/stop через stdin
//
// Процесс привязан ровно к одной задаче и завершается вместе с ней.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dgarciamx/Tramita/internal/agent"
	"github.com/dgarciamx/Tramita/internal/bridge"
	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/telemetry"
)

// maxLineSize — предел длины одной строки stdin.
const maxLineSize = 1 << 20

// stdoutWriter сериализует записи в stdout: события пишутся из
// горутины прогона, финальный результат — из main.
type stdoutWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newStdoutWriter() *stdoutWriter {
	return &stdoutWriter{enc: json.NewEncoder(os.Stdout)}
}

func (w *stdoutWriter) write(msg bridge.WireMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	w.enc.Encode(msg)
}

func main() {
	logger := telemetry.SetupLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stdin := bufio.NewScanner(os.Stdin)
	stdin.Buffer(make([]byte, 64*1024), maxLineSize)

	// Первая строка stdin — дескриптор задачи.
	if !stdin.Scan() {
		logger.Error("no descriptor on stdin")
		os.Exit(1)
	}

	var desc bridge.Descriptor
	if err := json.Unmarshal(stdin.Bytes(), &desc); err != nil {
		logger.Error("invalid descriptor", "error", err)
		os.Exit(1)
	}
	logger = logger.With("task_id", desc.TaskID)
	logger.Info("descriptor received", "target_url", desc.TargetURL, "resume", desc.Resume)

	out := newStdoutWriter()

	actionTimeout := desc.Config.ActionTimeout
	if actionTimeout <= 0 {
		actionTimeout = 30 * time.Second
	}

	page := agent.NewStaticPage(actionTimeout)
	runner := agent.NewRunner(page, agent.Config{
		TargetURL:     desc.TargetURL,
		Payload:       desc.Payload,
		Profile:       desc.Profile,
		Resume:        desc.Resume,
		TakeControl:   desc.TakeControl,
		ActionTimeout: actionTimeout,
		Logger:        logger,
		Emit: func(ev domain.TaskEvent) {
			out.write(bridge.WireMessage{
				Type:    string(ev.Type),
				Message: ev.Message,
				Data:    ev.Data,
			})
		},
	})

	// Командный цикл: остальные строки stdin управляют прогоном.
	go func() {
		for stdin.Scan() {
			var cmd bridge.Command
			if err := json.Unmarshal(stdin.Bytes(), &cmd); err != nil {
				logger.Warn("unparseable command line", "error", err)
				continue
			}

			logger.Info("command received", "command", cmd.Command)
			switch cmd.Command {
			case bridge.CommandPause, bridge.CommandTakeControl:
				runner.Pause()
			case bridge.CommandResume:
				runner.Resume()
			case bridge.CommandStop:
				runner.Stop()
			default:
				logger.Warn("unknown command", "command", cmd.Command)
			}
		}
		// stdin закрыт — оркестратор ушёл, доигрывать сессию некому.
		runner.Stop()
	}()

	go func() {
		<-ctx.Done()
		runner.Stop()
	}()

	result, err := runner.Run(ctx)
	if err != nil {
		logger.Info("run interrupted", "error", err)
	}
	if result == nil {
		result = &domain.TaskResult{
			Outcome: domain.OutcomeFailure,
			Error: &domain.ErrorDetail{
				Kind:    domain.KindUnknown,
				Message: "run produced no result",
			},
		}
	}

	out.write(bridge.WireMessage{Type: "result", Result: result})
	logger.Info("worker finished", "outcome", result.Outcome, "success", result.Success)
}
