package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// ErrSetup означает, что базовые счетчики ОС недоступны и отчет строить не из чего
var ErrSetup = errors.New("counter setup failed")

// State описывает жизненный цикл окна измерений
type State int

const (
	StateOpen State = iota
	StateTicking
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateTicking:
		return "ticking"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Settings задает параметры одного окна измерений
type Settings struct {
	Interval   time.Duration
	Runtime    time.Duration
	Interfaces []string
	Ports      []uint32
	Disks      []DiskTarget
}

// TargetTicks возвращает запланированное число тиков
func (s Settings) TargetTicks() int {
	if s.Interval <= 0 {
		return 0
	}
	return int(s.Runtime / s.Interval)
}

// counterPair хранит предыдущее показание монотонного счетчика и момент его чтения
type counterPair struct {
	previous uint64
	at       time.Time
}

// advance возвращает скорость (current-previous)/elapsed с отбрасыванием дробной части
// и делает current предыдущим показанием. Сброс счетчика и elapsed <= 0 дают 0.
func (p *counterPair) advance(current uint64, now time.Time) uint64 {
	elapsed := now.Sub(p.at).Seconds()

	var rate uint64
	if elapsed > 0 && current >= p.previous {
		rate = uint64(float64(current-p.previous) / elapsed)
	}

	p.previous = current
	p.at = now
	return rate
}

// MonitoredInterface накапливает суммы скоростей интерфейса, измеренных на каждом тике
type MonitoredInterface struct {
	Name  string
	RxSum uint64
	TxSum uint64

	rx counterPair
	tx counterPair
}

// PortWatch накапливает число соединений на порт по всем тикам
type PortWatch struct {
	Port uint32
	Sum  uint64
}

type diskTracker struct {
	target DiskTarget
	start  DiskCounter
	ok     bool
}

// Window владеет всеми аккумуляторами одного окна измерений
type Window struct {
	settings Settings
	sources  Sources
	clock    Clock
	logger   *zap.Logger

	state       State
	target      int
	ticks       int
	done        bool
	startMinute time.Time
	lastTickAt  time.Time
	elapsed     time.Duration

	cpuPrev CPUTimes
	cpuSum  float64
	iowSum  float64
	ramSum  float64

	interfaces []*MonitoredInterface
	ports      []*PortWatch
	disks      []*diskTracker
}

// NewWindow создает окно в состоянии open
func NewWindow(settings Settings, sources Sources, clock Clock, logger *zap.Logger) *Window {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Window{
		settings: settings,
		sources:  sources,
		clock:    clock,
		logger:   logger,
		state:    StateOpen,
		target:   settings.TargetTicks(),
	}
}

// State возвращает текущее состояние окна
func (w *Window) State() State {
	return w.state
}

// Done сообщает, что тиков больше не будет
func (w *Window) Done() bool {
	return w.done || w.state == StateClosed
}

// Open снимает начальные показания счетчиков.
// Недоступность счетчиков сети или процессора считается фатальной.
func (w *Window) Open(ctx context.Context) error {
	if w.state != StateOpen {
		return fmt.Errorf("window already %s", w.state)
	}
	if w.target < 1 {
		return fmt.Errorf("%w: runtime %v shorter than interval %v", ErrSetup, w.settings.Runtime, w.settings.Interval)
	}

	now := w.clock.Now()
	w.startMinute = now.Truncate(time.Minute)

	cpuTimes, err := w.sources.CPU.CPUTimes(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSetup, err)
	}
	w.cpuPrev = cpuTimes

	if err := w.openInterfaces(ctx); err != nil {
		return err
	}

	for _, port := range w.settings.Ports {
		w.ports = append(w.ports, &PortWatch{Port: port})
	}

	w.openDisks(ctx)

	w.lastTickAt = w.clock.Now()

	w.logger.Debug("Sampling window opened",
		zap.Int("target_ticks", w.target),
		zap.Int("interfaces", len(w.interfaces)),
		zap.Int("ports", len(w.ports)),
		zap.Int("disks", len(w.disks)),
		zap.Time("minute", w.startMinute))

	return nil
}

func (w *Window) openInterfaces(ctx context.Context) error {
	names := w.settings.Interfaces
	if len(names) == 0 && w.sources.Interfaces != nil {
		detected, err := w.sources.Interfaces.Interfaces(ctx)
		if err != nil {
			w.logger.Warn("Failed to detect network interfaces", zap.Error(err))
		}
		names = detected
	}

	counters, err := w.sources.Net.NetCounters(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSetup, err)
	}
	at := w.clock.Now()

	for _, name := range names {
		counter, ok := counters[name]
		if !ok {
			w.logger.Warn("Network interface not found in counters, skipping", zap.String("interface", name))
			continue
		}
		w.interfaces = append(w.interfaces, &MonitoredInterface{
			Name: name,
			rx:   counterPair{previous: counter.RxBytes, at: at},
			tx:   counterPair{previous: counter.TxBytes, at: at},
		})
	}
	return nil
}

func (w *Window) openDisks(ctx context.Context) {
	targets := w.settings.Disks
	if len(targets) == 0 && w.sources.DiskTargets != nil {
		detected, err := w.sources.DiskTargets.DiskTargets(ctx)
		if err != nil {
			w.logger.Warn("Failed to detect disk targets", zap.Error(err))
		}
		targets = detected
	}
	if len(targets) == 0 || w.sources.Disk == nil {
		return
	}

	counters, err := w.sources.Disk.DiskCounters(ctx, deviceNames(targets)...)
	if err != nil {
		w.logger.Warn("Failed to read initial disk counters", zap.Error(err))
	}

	for _, target := range targets {
		start, ok := counters[target.Device]
		if !ok {
			w.logger.Debug("Disk device not found in counters", zap.String("device", target.Device))
		}
		w.disks = append(w.disks, &diskTracker{target: target, start: start, ok: ok})
	}
}

// Tick выполняет один тик: ждет интервал, затем читает все счетчики.
// Ошибка чтения отдельной метрики дает вклад 0, но тик все равно засчитывается.
func (w *Window) Tick(ctx context.Context) error {
	switch {
	case w.state == StateClosed:
		return errors.New("window is closed")
	case w.done:
		return errors.New("window has no ticks left")
	}
	w.state = StateTicking

	if err := w.clock.Sleep(ctx, w.settings.Interval); err != nil {
		return err
	}

	w.sampleCPU(ctx)
	w.sampleMemory(ctx)
	w.sampleNetwork(ctx)
	w.sampleConnections(ctx)

	now := w.clock.Now()
	w.elapsed += now.Sub(w.lastTickAt)
	w.lastTickAt = now
	w.ticks++

	// Окно выравнивается по границе минуты независимо от дрейфа тиков
	if w.ticks >= w.target || now.Truncate(time.Minute).After(w.startMinute) {
		w.done = true
	}

	w.logger.Debug("Tick completed",
		zap.Int("tick", w.ticks),
		zap.Bool("last", w.done))

	return nil
}

func (w *Window) sampleCPU(ctx context.Context) {
	current, err := w.sources.CPU.CPUTimes(ctx)
	if err != nil {
		w.logger.Debug("CPU read failed", zap.Error(err))
		return
	}
	total := current.Total - w.cpuPrev.Total
	if total > 0 {
		idle := math.Round((current.Idle - w.cpuPrev.Idle) * 100 / total)
		iow := math.Round((current.IOWait - w.cpuPrev.IOWait) * 100 / total)
		w.cpuSum += 100 - idle
		w.iowSum += iow
	}
	w.cpuPrev = current
}

func (w *Window) sampleMemory(ctx context.Context) {
	used, err := w.sources.Memory.MemoryUsage(ctx)
	if err != nil {
		w.logger.Debug("Memory read failed", zap.Error(err))
		return
	}
	w.ramSum += used
}

func (w *Window) sampleNetwork(ctx context.Context) {
	if len(w.interfaces) == 0 {
		return
	}

	counters, err := w.sources.Net.NetCounters(ctx)
	if err != nil {
		// Предыдущие показания сохраняются, следующий тик посчитает скорость за больший интервал
		w.logger.Debug("Network read failed", zap.Error(err))
		return
	}
	now := w.clock.Now()

	for _, iface := range w.interfaces {
		counter, ok := counters[iface.Name]
		if !ok {
			continue
		}
		iface.RxSum += iface.rx.advance(counter.RxBytes, now)
		iface.TxSum += iface.tx.advance(counter.TxBytes, now)
	}
}

func (w *Window) sampleConnections(ctx context.Context) {
	if len(w.ports) == 0 || w.sources.Connections == nil {
		return
	}

	ports, err := w.sources.Connections.LocalPorts(ctx)
	if err != nil {
		w.logger.Debug("Connection listing failed", zap.Error(err))
		return
	}

	// Снимок числа соединений, не скорость: делить на время не нужно
	for _, watch := range w.ports {
		for _, port := range ports {
			if port == watch.Port {
				watch.Sum++
			}
		}
	}
}

// Close снимает конечные показания дисков и возвращает итог окна
func (w *Window) Close(ctx context.Context) *Result {
	w.state = StateClosed
	w.done = true

	result := &Result{
		Ticks:     w.ticks,
		Target:    w.target,
		Elapsed:   w.elapsed,
		CPUSum:    w.cpuSum,
		IOWaitSum: w.iowSum,
		RAMSum:    w.ramSum,
	}

	for _, iface := range w.interfaces {
		result.Interfaces = append(result.Interfaces, InterfaceTotals{
			Name:  iface.Name,
			RxSum: iface.RxSum,
			TxSum: iface.TxSum,
		})
	}
	for _, watch := range w.ports {
		result.Ports = append(result.Ports, PortTotals{Port: watch.Port, Sum: watch.Sum})
	}
	result.Disks = w.closeDisks(ctx)

	w.logger.Debug("Sampling window closed",
		zap.Int("ticks", result.Ticks),
		zap.Int("target_ticks", result.Target),
		zap.Duration("elapsed", result.Elapsed))

	return result
}

// closeDisks считает IOPS по дельте за все окно, деленной на сумму длительностей тиков.
// Сеть при этом усредняет скорости отдельных тиков: асимметрия сохранена ради
// совместимости значений с коллектором.
func (w *Window) closeDisks(ctx context.Context) []DiskRate {
	var targets []DiskTarget
	for _, d := range w.disks {
		if d.ok {
			targets = append(targets, d.target)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	counters, err := w.sources.Disk.DiskCounters(ctx, deviceNames(targets)...)
	if err != nil {
		w.logger.Warn("Failed to read final disk counters", zap.Error(err))
		return nil
	}

	seconds := w.elapsed.Seconds()
	var rates []DiskRate
	for _, d := range w.disks {
		if !d.ok {
			continue
		}
		end, ok := counters[d.target.Device]
		if !ok {
			continue
		}
		rates = append(rates, DiskRate{
			Mount:       d.target.Mount,
			Device:      d.target.Device,
			ReadPerSec:  wholeWindowRate(d.start.ReadBytes, end.ReadBytes, seconds),
			WritePerSec: wholeWindowRate(d.start.WriteBytes, end.WriteBytes, seconds),
		})
	}
	return rates
}

func wholeWindowRate(start, end uint64, seconds float64) uint64 {
	if seconds <= 0 || end < start {
		return 0
	}
	return uint64(float64(end-start) / seconds)
}

func deviceNames(targets []DiskTarget) []string {
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Device)
	}
	return names
}
