// Package profiler снимает профили одного прохода агента для разбора производительности
package profiler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config представляет конфигурацию профилировщика
type Config struct {
	Enable     bool   // включить профилирование
	HTTPPort   int    // порт pprof на localhost, 0 отключает
	CPUProfile string // путь к файлу CPU профиля всего прохода
	MemProfile string // путь к файлу профиля кучи, пишется при остановке
}

// Profiler управляет профилированием прохода
type Profiler struct {
	config   Config
	logger   *zap.Logger
	server   *http.Server
	listener net.Listener
	cpuFile  *os.File
	started  time.Time
}

// New создает новый профилировщик
func New(config Config, logger *zap.Logger) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{
		config: config,
		logger: logger,
	}
}

// Start запускает профилирование. Без Enable ничего не делает.
func (p *Profiler) Start() error {
	if !p.config.Enable {
		return nil
	}
	p.started = time.Now()

	p.logger.Info("Starting profiler",
		zap.Int("http_port", p.config.HTTPPort),
		zap.String("cpu_profile", p.config.CPUProfile),
		zap.String("mem_profile", p.config.MemProfile))

	if err := p.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start pprof HTTP server: %w", err)
	}

	if p.config.CPUProfile != "" {
		if err := p.startCPUProfile(); err != nil {
			return multierr.Append(
				fmt.Errorf("failed to start CPU profiling: %w", err),
				p.stopHTTPServer(),
			)
		}
	}

	return nil
}

// Addr возвращает адрес HTTP сервера pprof или пустую строку
func (p *Profiler) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Stop завершает CPU профиль, пишет профиль кучи и останавливает HTTP сервер.
// Ошибки всех шагов объединяются.
func (p *Profiler) Stop() error {
	if !p.config.Enable {
		return nil
	}

	var errs error
	if err := p.stopCPUProfile(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to stop CPU profiling: %w", err))
	}
	if p.config.MemProfile != "" {
		if err := p.writeMemProfile(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to write memory profile: %w", err))
		}
	}
	errs = multierr.Append(errs, p.stopHTTPServer())

	p.logRuntimeStats()
	return errs
}

// startHTTPServer поднимает pprof только на loopback
func (p *Profiler) startHTTPServer() error {
	if p.config.HTTPPort <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p.config.HTTPPort)))
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	p.listener, p.server = listener, server

	p.logger.Info("Starting pprof HTTP server", zap.String("addr", listener.Addr().String()))
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("pprof HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

func (p *Profiler) stopHTTPServer() error {
	if p.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := p.server.Shutdown(ctx)
	p.server, p.listener = nil, nil
	if err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (p *Profiler) startCPUProfile() error {
	file, err := os.Create(p.config.CPUProfile)
	if err != nil {
		return fmt.Errorf("failed to create CPU profile file: %w", err)
	}

	if err := rpprof.StartCPUProfile(file); err != nil {
		file.Close()
		return err
	}
	p.cpuFile = file

	p.logger.Debug("Started CPU profiling", zap.String("file", p.config.CPUProfile))
	return nil
}

func (p *Profiler) stopCPUProfile() error {
	if p.cpuFile == nil {
		return nil
	}

	rpprof.StopCPUProfile()
	err := p.cpuFile.Close()
	p.cpuFile = nil
	if err != nil {
		return fmt.Errorf("failed to close CPU profile file: %w", err)
	}

	p.logger.Info("Written CPU profile", zap.String("file", p.config.CPUProfile))
	return nil
}

func (p *Profiler) writeMemProfile() error {
	file, err := os.Create(p.config.MemProfile)
	if err != nil {
		return fmt.Errorf("failed to create memory profile file: %w", err)
	}
	defer file.Close()

	// Принудительно запускаем GC для точного профиля памяти
	runtime.GC()

	if err := rpprof.WriteHeapProfile(file); err != nil {
		return err
	}

	p.logger.Info("Written memory profile", zap.String("file", p.config.MemProfile))
	return nil
}

// logRuntimeStats логирует статистику памяти за проход
func (p *Profiler) logRuntimeStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	p.logger.Info("Run memory statistics",
		zap.Duration("profiled", time.Since(p.started)),
		zap.Uint64("alloc_kb", m.Alloc/1024),
		zap.Uint64("total_alloc_kb", m.TotalAlloc/1024),
		zap.Uint64("sys_kb", m.Sys/1024),
		zap.Uint32("num_gc", m.NumGC),
		zap.Int("goroutines", runtime.NumGoroutine()),
	)
}
