package sampler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// sysClassNet каталог с operstate сетевых интерфейсов
var sysClassNet = "/sys/class/net"

// HostSource читает счетчики текущего хоста через gopsutil
type HostSource struct{}

// NewHostSources возвращает набор источников, читающих счетчики ОС
func NewHostSources() Sources {
	src := HostSource{}
	return Sources{
		Net:         src,
		Disk:        src,
		CPU:         src,
		Memory:      src,
		Connections: src,
		Interfaces:  src,
		DiskTargets: src,
	}
}

// NetCounters читает счетчики байт по каждому интерфейсу
func (HostSource) NetCounters(ctx context.Context) (map[string]NetCounter, error) {
	stats, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read network counters: %w", err)
	}

	counters := make(map[string]NetCounter, len(stats))
	for _, stat := range stats {
		counters[stat.Name] = NetCounter{
			RxBytes: stat.BytesRecv,
			TxBytes: stat.BytesSent,
		}
	}
	return counters, nil
}

// DiskCounters читает счетчики прочитанных и записанных байт устройств
func (HostSource) DiskCounters(ctx context.Context, devices ...string) (map[string]DiskCounter, error) {
	stats, err := disk.IOCountersWithContext(ctx, devices...)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk counters: %w", err)
	}

	counters := make(map[string]DiskCounter, len(stats))
	for name, stat := range stats {
		counters[name] = DiskCounter{
			ReadBytes:  stat.ReadBytes,
			WriteBytes: stat.WriteBytes,
		}
	}
	return counters, nil
}

// CPUTimes читает суммарные времена процессора по всем ядрам
func (HostSource) CPUTimes(ctx context.Context) (CPUTimes, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUTimes{}, fmt.Errorf("failed to read CPU times: %w", err)
	}
	if len(times) == 0 {
		return CPUTimes{}, errors.New("no CPU times available")
	}

	t := times[0]
	// Guest уже учтен в User
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	return CPUTimes{
		Idle:   t.Idle,
		IOWait: t.Iowait,
		Total:  total,
	}, nil
}

// MemoryUsage возвращает процент памяти, не занятой free, buffers и cache
func (HostSource) MemoryUsage(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read memory statistics: %w", err)
	}
	if vm.Total == 0 {
		return 0, errors.New("total memory reported as zero")
	}

	reclaimable := vm.Free + vm.Buffers + vm.Cached
	return 100 - float64(reclaimable)*100/float64(vm.Total), nil
}

// LocalPorts возвращает локальные порты установленных TCP/UDP соединений
func (HostSource) LocalPorts(ctx context.Context) ([]uint32, error) {
	conns, err := net.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	ports := make([]uint32, 0, len(conns))
	for _, conn := range conns {
		// Слушающие и неподключенные UDP сокеты не имеют удаленного адреса
		if conn.Status == "LISTEN" || conn.Raddr.Port == 0 {
			continue
		}
		ports = append(ports, conn.Laddr.Port)
	}
	return ports, nil
}

// Interfaces находит широковещательные интерфейсы с поднятым линком
func (HostSource) Interfaces(ctx context.Context) ([]string, error) {
	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	return selectInterfaces(ifaces), nil
}

// selectInterfaces оставляет интерфейсы, поднятые администратором и имеющие линк
func selectInterfaces(ifaces net.InterfaceStatList) []string {
	var names []string
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || !hasFlag(iface.Flags, "broadcast") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		name, _, _ := strings.Cut(iface.Name, "@")
		if !operUp(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// operUp сообщает, что operstate интерфейса "up".
// Без sysfs решение принимается только по флагам.
func operUp(name string) bool {
	data, err := os.ReadFile(filepath.Join(sysClassNet, name, "operstate"))
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(data)) == "up"
}

// DiskTargets строит пары (точка монтирования, устройство) по смонтированным разделам
func (HostSource) DiskTargets(ctx context.Context) ([]DiskTarget, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	seen := make(map[string]bool)
	var targets []DiskTarget
	for _, p := range partitions {
		if !strings.HasPrefix(p.Device, "/dev/") {
			continue
		}
		device := p.Device
		// /dev/mapper/* в /proc/diskstats называются dm-N
		if resolved, err := filepath.EvalSymlinks(device); err == nil {
			device = resolved
		}
		name := filepath.Base(device)
		if strings.HasPrefix(name, "loop") || seen[name] {
			continue
		}
		seen[name] = true
		targets = append(targets, DiskTarget{Mount: p.Mountpoint, Device: name})
	}
	return targets, nil
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
