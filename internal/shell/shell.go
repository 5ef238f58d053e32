package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout ограничивает время выполнения одной внешней команды
const DefaultTimeout = 30 * time.Second

// waitDelay сколько ждать закрытия stdout после отмены команды
const waitDelay = time.Second

// Runner запускает внешние команды и возвращает их stdout.
// Ошибка запуска и таймаут дают пустую строку, ненулевой код выхода не считается ошибкой.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) string
	// Available сообщает, найдена ли команда в PATH
	Available(name string) bool
}

// ExecRunner реализует Runner через os/exec
type ExecRunner struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewExecRunner создает исполнителя команд с таймаутом на каждый вызов
func NewExecRunner(timeout time.Duration, logger *zap.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{
		timeout: timeout,
		logger:  logger,
	}
}

// Run выполняет команду и возвращает stdout без пробельных символов по краям
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	// потомки наследуют stdout, поэтому по таймауту убивается вся группа процессов
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		// smartctl кодирует предупреждения битами кода выхода, вывод при этом валиден
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return strings.TrimSpace(stdout.String())
		}
		r.logger.Debug("Command failed",
			zap.String("command", name),
			zap.Strings("args", args),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return ""
	}

	return strings.TrimSpace(stdout.String())
}

// Available проверяет наличие команды в PATH
func (r *ExecRunner) Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
