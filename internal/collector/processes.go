package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"srvmon/internal/codec"
)

// psColumns задает состав и порядок колонок, который разбирает коллектор
const psColumns = "pid,ppid,uid,user:20,pcpu,pmem,cputime,etime,comm,cmd"

// procEntry минимальная запись таблицы процессов для поиска сервисов
type procEntry struct {
	Pid     int32
	Name    string
	Cmdline string
}

// listProcesses читает таблицу процессов через gopsutil
func listProcesses(ctx context.Context) ([]procEntry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	entries := make([]procEntry, 0, len(procs))
	for _, p := range procs {
		// Процесс мог завершиться между листингом и чтением, такие пропускаем
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cmdline, _ := p.CmdlineWithContext(ctx)
		entries = append(entries, procEntry{Pid: p.Pid, Name: name, Cmdline: cmdline})
	}
	return entries, nil
}

// collectProcesses читает снимок прошлого запуска и сохраняет на его место текущий
func (c *Collector) collectProcesses(ctx context.Context) (ProcessSnapshot, error) {
	var snapshot ProcessSnapshot

	path := c.options.ProcessStateFile
	if path != "" {
		previous, err := os.ReadFile(path)
		switch {
		case err == nil:
			snapshot.Previous = strings.TrimSpace(string(previous))
		case !errors.Is(err, os.ErrNotExist):
			c.logger.Warn("Failed to read previous process snapshot",
				zap.String("path", path),
				zap.Error(err))
		}
	}

	listing, err := c.processListing(ctx)
	if err != nil {
		return snapshot, err
	}

	current, err := codec.CompressAndEncode([]byte(listing))
	if err != nil {
		return snapshot, fmt.Errorf("failed to encode process list: %w", err)
	}
	snapshot.Current = current

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return snapshot, fmt.Errorf("failed to create state directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(current), 0o600); err != nil {
			return snapshot, fmt.Errorf("failed to save process snapshot: %w", err)
		}
	}

	return snapshot, nil
}

// processListing возвращает вывод ps, а без ps строит те же колонки через gopsutil
func (c *Collector) processListing(ctx context.Context) (string, error) {
	if c.runner.Available("ps") {
		if out := c.runner.Run(ctx, "ps", "-Ao", psColumns, "--no-headers"); out != "" {
			return out, nil
		}
	}

	c.logger.Debug("ps unavailable, rendering process list from /proc")
	return renderProcesses(ctx, time.Now())
}

func renderProcesses(ctx context.Context, now time.Time) (string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list processes: %w", err)
	}

	lines := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		ppid, _ := p.PpidWithContext(ctx)
		user, _ := p.UsernameWithContext(ctx)
		cpuPercent, _ := p.CPUPercentWithContext(ctx)
		memPercent, _ := p.MemoryPercentWithContext(ctx)

		var uid int32
		if uids, err := p.UidsWithContext(ctx); err == nil && len(uids) > 1 {
			uid = uids[1]
		}

		var cpuSeconds float64
		if times, err := p.TimesWithContext(ctx); err == nil {
			cpuSeconds = times.User + times.System
		}

		var elapsed time.Duration
		if created, err := p.CreateTimeWithContext(ctx); err == nil {
			elapsed = now.Sub(time.UnixMilli(created))
		}

		cmdline, _ := p.CmdlineWithContext(ctx)
		if cmdline == "" {
			cmdline = "[" + name + "]"
		}

		lines = append(lines, fmt.Sprintf("%7d %7d %5d %-20s %4.1f %4.1f %8s %11s %-15s %s",
			p.Pid, ppid, uid, user, cpuPercent, memPercent,
			formatCPUTime(cpuSeconds), formatElapsed(elapsed), name, cmdline))
	}
	return strings.Join(lines, "\n"), nil
}

// formatCPUTime повторяет формат ps cputime: [DD-]HH:MM:SS
func formatCPUTime(seconds float64) string {
	total := int64(seconds)
	days, rest := total/86400, total%86400
	clock := fmt.Sprintf("%02d:%02d:%02d", rest/3600, rest%3600/60, rest%60)
	if days > 0 {
		return fmt.Sprintf("%d-%s", days, clock)
	}
	return clock
}

// formatElapsed повторяет формат ps etime: [[DD-]HH:]MM:SS
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days, rest := total/86400, total%86400
	hours, minutes, seconds := rest/3600, rest%3600/60, rest%60

	switch {
	case days > 0:
		return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	default:
		return fmt.Sprintf("%02d:%02d", minutes, seconds)
	}
}
