package sampler

import (
	"context"
	"time"
)

// NetCounter содержит накопительные счетчики байт сетевого интерфейса
type NetCounter struct {
	RxBytes uint64
	TxBytes uint64
}

// DiskCounter содержит накопительные счетчики блочного устройства (секторы * 512)
type DiskCounter struct {
	ReadBytes  uint64
	WriteBytes uint64
}

// CPUTimes содержит суммарные времена процессора в секундах
type CPUTimes struct {
	Idle   float64
	IOWait float64
	Total  float64
}

// DiskTarget связывает точку монтирования с устройством для подсчета IOPS
type DiskTarget struct {
	Mount  string
	Device string
}

// NetCounterReader читает счетчики всех сетевых интерфейсов
type NetCounterReader interface {
	NetCounters(ctx context.Context) (map[string]NetCounter, error)
}

// DiskCounterReader читает счетчики указанных блочных устройств
type DiskCounterReader interface {
	DiskCounters(ctx context.Context, devices ...string) (map[string]DiskCounter, error)
}

// CPUReader читает суммарные времена процессора
type CPUReader interface {
	CPUTimes(ctx context.Context) (CPUTimes, error)
}

// MemoryReader возвращает процент занятой оперативной памяти
type MemoryReader interface {
	MemoryUsage(ctx context.Context) (float64, error)
}

// ConnectionReader возвращает локальные порты активных TCP/UDP соединений
type ConnectionReader interface {
	LocalPorts(ctx context.Context) ([]uint32, error)
}

// InterfaceLister определяет интерфейсы для мониторинга, если они не заданы
type InterfaceLister interface {
	Interfaces(ctx context.Context) ([]string, error)
}

// DiskTargetLister определяет устройства для IOPS, если они не заданы
type DiskTargetLister interface {
	DiskTargets(ctx context.Context) ([]DiskTarget, error)
}

// Sources объединяет все источники счетчиков, которые опрашивает окно
type Sources struct {
	Net         NetCounterReader
	Disk        DiskCounterReader
	CPU         CPUReader
	Memory      MemoryReader
	Connections ConnectionReader
	Interfaces  InterfaceLister
	DiskTargets DiskTargetLister
}

// Clock абстрагирует время, чтобы тесты управляли длительностью тиков
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock использует системное время
type SystemClock struct{}

// Now возвращает текущее время
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep ждет d или отмены контекста
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
