package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/multierr"
)

// boundedCall выполняет fn с таймаутом. statfs на зависшем сетевом монтировании
// не реагирует на контекст, поэтому по истечении таймаута вызов бросается.
func boundedCall[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("abandoned after %v: %w", timeout, ctx.Err())
	}
}

// collectFilesystems собирает занятость места и inode реальных файловых систем
func (c *Collector) collectFilesystems(ctx context.Context) ([]FilesystemUsage, []FilesystemUsage, error) {
	partitions, err := boundedCall(ctx, c.options.CallTimeout, c.partitions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	var (
		space  []FilesystemUsage
		inodes []FilesystemUsage
		errs   error
	)
	for _, p := range partitions {
		// Псевдо-ФС (tmpfs, overlay, proc) не имеют устройства с путем
		if !strings.HasPrefix(p.Device, "/") {
			continue
		}

		mount := p.Mountpoint
		usage, err := boundedCall(ctx, c.options.CallTimeout, func(ctx context.Context) (*disk.UsageStat, error) {
			return c.usage(ctx, mount)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to get usage of %s: %w", p.Mountpoint, err))
			continue
		}

		space = append(space, FilesystemUsage{
			Mount:     p.Mountpoint,
			Total:     usage.Total,
			Used:      usage.Used,
			Available: usage.Free,
		})
		inodes = append(inodes, FilesystemUsage{
			Mount:     p.Mountpoint,
			Total:     usage.InodesTotal,
			Used:      usage.InodesUsed,
			Available: usage.InodesFree,
		})
	}

	return space, inodes, errs
}
