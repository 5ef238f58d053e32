package agent

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// agentProcess процесс, похожий на экземпляр агента
type agentProcess struct {
	Pid  int32
	Name string
}

// housekeeper ограничивает число одновременно живущих экземпляров агента
type housekeeper struct {
	logger  *zap.Logger
	max     int
	selfPID int32
	list    func(ctx context.Context) ([]agentProcess, error)
	kill    func(ctx context.Context, pid int32) error
}

func newHousekeeper(limit int, logger *zap.Logger) *housekeeper {
	return &housekeeper{
		logger:  logger,
		max:     limit,
		selfPID: int32(os.Getpid()),
		list:    listAgentProcesses,
		kill:    killProcess,
	}
}

// reap убивает остальные экземпляры агента, если их больше max.
// Текущий процесс никогда не трогается.
func (h *housekeeper) reap(ctx context.Context) (int, error) {
	procs, err := h.list(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list agent processes: %w", err)
	}
	if len(procs) <= h.max {
		return 0, nil
	}

	h.logger.Warn("Too many agent processes, killing lingering instances",
		zap.Int("running", len(procs)),
		zap.Int("max", h.max))

	var (
		killed int
		errs   error
	)
	for _, p := range procs {
		if p.Pid == h.selfPID {
			continue
		}
		if err := h.kill(ctx, p.Pid); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to kill %d: %w", p.Pid, err))
			continue
		}
		killed++
	}
	return killed, errs
}

// listAgentProcesses находит процессы с тем же именем, что и текущий
func listAgentProcesses(ctx context.Context) ([]agentProcess, error) {
	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	name, err := self.NameWithContext(ctx)
	if err != nil {
		return nil, err
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var agents []agentProcess
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil || pname != name {
			continue
		}
		agents = append(agents, agentProcess{Pid: p.Pid, Name: pname})
	}
	return agents, nil
}

func killProcess(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}
