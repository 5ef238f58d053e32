// Package agent выполняет один проход агента: замер, снимки, отчет, отправка
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"srvmon/internal/collector"
	"srvmon/internal/config"
	"srvmon/internal/report"
	"srvmon/internal/sampler"
	"srvmon/internal/shell"
	"srvmon/internal/transport"
)

// windowRunner проводит окно измерений
type windowRunner interface {
	Run(ctx context.Context) (*sampler.Result, error)
}

// snapshotter собирает одноразовые снимки и сведения о хосте
type snapshotter interface {
	Collect(ctx context.Context) (*collector.Snapshots, error)
	HostFacts(ctx context.Context) (*collector.HostFacts, error)
}

// sender доставляет тело отчета коллектору
type sender interface {
	Send(ctx context.Context, payload string) error
}

// Agent отвечает за координацию одного прохода
type Agent struct {
	config *config.Config
	logger *zap.Logger
	runID  string

	sampler     windowRunner
	snapshots   snapshotter
	spool       *transport.Spool
	client      sender
	housekeeper *housekeeper
}

// New создает агента, работающего с реальной системой.
// Все компоненты пишут в лог с run_id этого прохода.
func New(cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	disks, err := cfg.Disks()
	if err != nil {
		return nil, err
	}

	settings := sampler.Settings{
		Interval:   cfg.Interval,
		Runtime:    cfg.Runtime,
		Interfaces: cfg.NetworkInterfaces,
		Ports:      cfg.ConnectionPorts,
		Disks:      disks,
	}

	runner := shell.NewExecRunner(cfg.CommandTimeout, logger)
	options := collector.Options{
		Services:         cfg.Services,
		CheckSoftRAID:    cfg.CheckSoftRAID,
		CheckDriveHealth: cfg.CheckDriveHealth,
		RunningProcesses: cfg.RunningProcesses,
		ProcessStateFile: cfg.ProcessStateFile(),
		CallTimeout:      cfg.CommandTimeout,
	}

	return &Agent{
		config:    cfg,
		logger:    logger,
		runID:     runID,
		sampler:   sampler.New(settings, sampler.NewHostSources(), sampler.SystemClock{}, logger),
		snapshots: collector.New(runner, options, logger),
		spool:     transport.NewSpool(cfg.StateDir),
		client: transport.NewClient(transport.ClientOptions{
			URL:      cfg.ReportURL,
			Timeout:  cfg.HTTPTimeout,
			Insecure: cfg.InsecureTLS,
		}, logger),
		housekeeper: newHousekeeper(cfg.MaxAgentProcesses, logger),
	}, nil
}

// Run выполняет проход. Ошибку возвращают только фатальный сбой открытия окна
// и отмена контекста; сбои снимков и отправки логируются.
func (a *Agent) Run(ctx context.Context) error {
	start := time.Now()
	log := a.logger

	log.Info("Starting agent run",
		zap.String("version", a.config.Version),
		zap.Duration("interval", a.config.Interval),
		zap.Duration("runtime", a.config.Runtime))

	if killed, err := a.housekeeper.reap(ctx); err != nil {
		log.Warn("Housekeeping failed", zap.Error(err))
	} else if killed > 0 {
		log.Info("Killed lingering agent processes", zap.Int("killed", killed))
	}

	result, err := a.sampler.Run(ctx)
	if err != nil {
		return fmt.Errorf("agent run aborted: %w", err)
	}
	sampleDuration := time.Since(start)

	collectStart := time.Now()
	snaps, err := a.snapshots.Collect(ctx)
	if err != nil {
		log.Warn("Some snapshots are incomplete", zap.Error(err))
	}
	facts, err := a.snapshots.HostFacts(ctx)
	if err != nil {
		log.Warn("Some host facts are missing", zap.Error(err))
	}
	collectDuration := time.Since(collectStart)

	payload := report.Build(result, snaps, facts).Payload(a.config.Version, a.config.SID)

	if err := a.spool.Write(payload); err != nil {
		log.Warn("Failed to save report", zap.Error(err))
	}

	sendStart := time.Now()
	if err := a.client.Send(ctx, payload); err != nil {
		log.Warn("Failed to send report", zap.Error(err))
		return nil
	}

	log.Info("Report processed successfully",
		zap.Int("ticks", result.Ticks),
		zap.Int("bytes", len(payload)),
		zap.Duration("sample_time", sampleDuration),
		zap.Duration("collect_time", collectDuration),
		zap.Duration("send_time", time.Since(sendStart)),
		zap.Duration("total_time", time.Since(start)))

	return nil
}
