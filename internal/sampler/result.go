package sampler

import "time"

// InterfaceTotals содержит суммы скоростей интерфейса за все тики, байт/с
type InterfaceTotals struct {
	Name  string
	RxSum uint64
	TxSum uint64
}

// PortTotals содержит сумму числа соединений порта за все тики
type PortTotals struct {
	Port uint32
	Sum  uint64
}

// DiskRate содержит скорости чтения и записи устройства за все окно, байт/с
type DiskRate struct {
	Mount       string
	Device      string
	ReadPerSec  uint64
	WritePerSec uint64
}

// Result неизменяемый итог закрытого окна измерений.
// Все средние делятся на фактическое число тиков Ticks, а не на Target.
type Result struct {
	Ticks   int
	Target  int
	Elapsed time.Duration

	CPUSum    float64
	IOWaitSum float64
	RAMSum    float64

	Interfaces []InterfaceTotals
	Ports      []PortTotals
	Disks      []DiskRate
}

// Average делит сумму на фактическое число тиков
func (r *Result) Average(sum float64) float64 {
	if r.Ticks == 0 {
		return 0
	}
	return sum / float64(r.Ticks)
}

// PerTick делит целочисленную сумму на число тиков с отбрасыванием остатка
func (r *Result) PerTick(sum uint64) uint64 {
	if r.Ticks == 0 {
		return 0
	}
	return sum / uint64(r.Ticks)
}

// CPUAvg средняя загрузка процессора, %
func (r *Result) CPUAvg() float64 { return r.Average(r.CPUSum) }

// IOWaitAvg среднее время ожидания ввода-вывода, %
func (r *Result) IOWaitAvg() float64 { return r.Average(r.IOWaitSum) }

// RAMAvg средняя занятость оперативной памяти, %
func (r *Result) RAMAvg() float64 { return r.Average(r.RAMSum) }
