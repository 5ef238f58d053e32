package collector

import "time"

// Snapshots содержит результаты одноразовых сборщиков
type Snapshots struct {
	Timestamp   time.Time
	Disks       []FilesystemUsage
	Inodes      []FilesystemUsage
	Services    []ServiceStatus
	RAID        []RAIDArray
	DriveHealth []DriveHealth
	Processes   ProcessSnapshot
}

// FilesystemUsage содержит занятость файловой системы (в байтах или в inode)
type FilesystemUsage struct {
	Mount     string
	Total     uint64
	Used      uint64
	Available uint64
}

// ServiceStatus содержит признак работы сервиса
type ServiceStatus struct {
	Name    string
	Running bool
}

// RAIDArray содержит вывод mdadm для устройства, смонтированного в Mount
type RAIDArray struct {
	Mount  string
	Device string
	Detail string
}

// DriveKind определяет источник данных о здоровье накопителя
type DriveKind int

const (
	DriveSMART DriveKind = 1
	DriveNVMe  DriveKind = 2
)

// DriveHealth содержит сырой отчет smartctl или nvme-cli для одного накопителя
type DriveHealth struct {
	Kind   DriveKind
	Name   string
	Report string
}

// ProcessSnapshot содержит закодированные списки процессов прошлого и текущего запуска
type ProcessSnapshot struct {
	Previous string
	Current  string
}

// HostFacts содержит статические сведения о хосте, читаемые один раз за запуск
type HostFacts struct {
	OS             string
	Kernel         string
	RebootRequired bool

	CPUModel    string
	CPUSpeedMHz float64
	CPUCores    int

	RAMSizeKB  uint64
	SwapSizeKB uint64
	SwapFreeKB uint64

	// Uptime первое поле /proc/uptime как есть, например "350735.47"
	Uptime string
}
