package collector

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"srvmon/internal/shell"
)

// Options включает и настраивает одноразовые сборщики
type Options struct {
	Services         []string
	CheckSoftRAID    bool
	CheckDriveHealth bool
	RunningProcesses bool
	// ProcessStateFile хранит список процессов между запусками
	ProcessStateFile string
	// CallTimeout ограничивает каждый системный вызов, не принимающий контекст
	CallTimeout time.Duration
}

// Collector отвечает за сбор метрик, не требующих замера скорости
type Collector struct {
	logger  *zap.Logger
	runner  shell.Runner
	options Options

	partitions   func(ctx context.Context) ([]disk.PartitionStat, error)
	usage        func(ctx context.Context, path string) (*disk.UsageStat, error)
	processTable func(ctx context.Context) ([]procEntry, error)
	selfPID      int32
}

// New создает новый экземпляр сборщика
func New(runner shell.Runner, options Options, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.CallTimeout <= 0 {
		options.CallTimeout = shell.DefaultTimeout
	}
	return &Collector{
		logger:  logger,
		runner:  runner,
		options: options,
		partitions: func(ctx context.Context) ([]disk.PartitionStat, error) {
			return disk.PartitionsWithContext(ctx, false)
		},
		usage:        disk.UsageWithContext,
		processTable: listProcesses,
		selfPID:      int32(os.Getpid()),
	}
}

// Collect последовательно запускает все включенные сборщики.
// Ошибка одного сборщика не мешает остальным; все ошибки объединяются.
func (c *Collector) Collect(ctx context.Context) (*Snapshots, error) {
	c.logger.Debug("Starting snapshot collection")

	snapshots := &Snapshots{
		Timestamp: time.Now(),
	}

	type step struct {
		name string
		run  func() error
	}

	steps := []step{
		{name: "Filesystems", run: func() (err error) {
			snapshots.Disks, snapshots.Inodes, err = c.collectFilesystems(ctx)
			return err
		}},
		{name: "Services", run: func() error {
			snapshots.Services = c.collectServices(ctx)
			return nil
		}},
	}
	if c.options.CheckSoftRAID {
		steps = append(steps, step{name: "RAID", run: func() (err error) {
			snapshots.RAID, err = c.collectRAID(ctx)
			return err
		}})
	}
	if c.options.CheckDriveHealth {
		steps = append(steps, step{name: "DriveHealth", run: func() error {
			snapshots.DriveHealth = c.collectDriveHealth(ctx)
			return nil
		}})
	}
	if c.options.RunningProcesses {
		steps = append(steps, step{name: "Processes", run: func() (err error) {
			snapshots.Processes, err = c.collectProcesses(ctx)
			return err
		}})
	}

	var errs error
	for _, s := range steps {
		start := time.Now()
		if err := s.run(); err != nil {
			errs = multierr.Append(errs, err)
			c.logger.Warn("Failed to collect snapshot",
				zap.String("component", s.name),
				zap.Error(err))
			continue
		}
		c.logger.Debug("Snapshot collected",
			zap.String("component", s.name),
			zap.Duration("elapsed", time.Since(start)))
	}

	c.logger.Debug("Snapshot collection completed",
		zap.Int("errors", len(multierr.Errors(errs))))

	return snapshots, errs
}
