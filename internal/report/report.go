// Package report собирает итоги окна измерений и снимки в строку отчета,
// которую разбирает коллектор. Порядок полей и разделители менять нельзя.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"srvmon/internal/codec"
	"srvmon/internal/collector"
	"srvmon/internal/sampler"
)

// FieldNames перечисляет поля отчета в порядке передачи
var FieldNames = []string{
	"os_info", "uptime", "cpu_model", "cpu_speed", "cpu_cores",
	"cpu_avg", "iow_avg", "ram_size", "ram_avg", "swap_size", "swap_usage",
	"disks", "nics", "services", "raid", "drive_health",
	"prev_procs", "curr_procs", "iops", "connections", "inodes",
}

// Report неизменяемый набор закодированных полей одного запуска
type Report struct {
	OSInfo      string
	Uptime      string
	CPUModel    string
	CPUSpeed    string
	CPUCores    string
	CPUAvg      string
	IOWaitAvg   string
	RAMSize     string
	RAMAvg      string
	SwapSize    string
	SwapUsage   string
	Disks       string
	NICs        string
	Services    string
	RAID        string
	DriveHealth string
	PrevProcs   string
	CurrProcs   string
	IOPS        string
	Connections string
	Inodes      string
}

// Build собирает отчет. Функция не обращается к системе и не меняет аргументы;
// отсутствующие снимки или сведения о хосте дают пустые поля.
func Build(result *sampler.Result, snaps *collector.Snapshots, facts *collector.HostFacts) *Report {
	if result == nil {
		result = &sampler.Result{}
	}
	if snaps == nil {
		snaps = &collector.Snapshots{}
	}
	if facts == nil {
		facts = &collector.HostFacts{}
	}

	return &Report{
		OSInfo:      codec.Base64(facts.OS + "|" + facts.Kernel + "|" + boolDigit(facts.RebootRequired)),
		Uptime:      uptime(facts.Uptime),
		CPUModel:    codec.Base64(facts.CPUModel),
		CPUSpeed:    codec.Base64(fmt.Sprintf("%.3f", facts.CPUSpeedMHz)),
		CPUCores:    strconv.Itoa(facts.CPUCores),
		CPUAvg:      FormatFloat(result.CPUAvg()),
		IOWaitAvg:   FormatFloat(result.IOWaitAvg()),
		RAMSize:     strconv.FormatUint(facts.RAMSizeKB, 10),
		RAMAvg:      FormatFloat(result.RAMAvg()),
		SwapSize:    strconv.FormatUint(facts.SwapSizeKB, 10),
		SwapUsage:   swapUsage(facts.SwapSizeKB, facts.SwapFreeKB),
		Disks:       codec.MustCompressString(filesystems(snaps.Disks)),
		NICs:        codec.MustCompressString(nics(result)),
		Services:    services(snaps.Services),
		RAID:        codec.MustCompressString(raid(snaps.RAID)),
		DriveHealth: codec.MustCompressString(driveHealth(snaps.DriveHealth)),
		PrevProcs:   snaps.Processes.Previous,
		CurrProcs:   snaps.Processes.Current,
		IOPS:        codec.MustCompressString(iops(result.Disks)),
		Connections: codec.Base64(connections(result)),
		Inodes:      codec.MustCompressString(filesystems(snaps.Inodes)),
	}
}

// Fields возвращает значения полей в порядке FieldNames
func (r *Report) Fields() []string {
	return []string{
		r.OSInfo, r.Uptime, r.CPUModel, r.CPUSpeed, r.CPUCores,
		r.CPUAvg, r.IOWaitAvg, r.RAMSize, r.RAMAvg, r.SwapSize, r.SwapUsage,
		r.Disks, r.NICs, r.Services, r.RAID, r.DriveHealth,
		r.PrevProcs, r.CurrProcs, r.IOPS, r.Connections, r.Inodes,
	}
}

// String возвращает отчет в виде строки, разделенной '|'
func (r *Report) String() string {
	return strings.Join(r.Fields(), "|")
}

// Payload формирует тело POST запроса
func (r *Report) Payload(version, sid string) string {
	return "v=" + version + "&s=" + sid + "&d=" + r.String()
}

// FormatFloat печатает число в кратчайшей форме и всегда с дробной частью: 12.0, 33.333333333333336
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// swapUsage считает занятость swap; без swap отдает целый ноль
func swapUsage(totalKB, freeKB uint64) string {
	if totalKB == 0 {
		return "0"
	}
	return FormatFloat(100 - float64(freeKB)/float64(totalKB)*100)
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// filesystems формирует строки "mount,total,used,available;" как df
func filesystems(usage []collector.FilesystemUsage) string {
	lines := make([]string, 0, len(usage))
	for _, u := range usage {
		lines = append(lines, fmt.Sprintf("%s,%d,%d,%d;", u.Mount, u.Total, u.Used, u.Available))
	}
	return strings.Join(lines, "\n")
}

func nics(result *sampler.Result) string {
	var b strings.Builder
	for _, iface := range result.Interfaces {
		fmt.Fprintf(&b, "|%s;%d;%d;", iface.Name, result.PerTick(iface.RxSum), result.PerTick(iface.TxSum))
	}
	return b.String()
}

func connections(result *sampler.Result) string {
	var b strings.Builder
	for _, p := range result.Ports {
		fmt.Fprintf(&b, "|%d;%d", p.Port, result.PerTick(p.Sum))
	}
	return b.String()
}

func iops(disks []sampler.DiskRate) string {
	var b strings.Builder
	for _, d := range disks {
		fmt.Fprintf(&b, "|%s;%d;%d", d.Mount, d.ReadPerSec, d.WritePerSec)
	}
	return b.String()
}

// services кодирует имя каждого сервиса отдельно: "base64(name),1;"
func services(statuses []collector.ServiceStatus) string {
	var b strings.Builder
	for _, s := range statuses {
		b.WriteString(codec.Base64(s.Name))
		b.WriteString(",")
		b.WriteString(boolDigit(s.Running))
		b.WriteString(";")
	}
	return b.String()
}

func raid(arrays []collector.RAIDArray) string {
	var b strings.Builder
	for _, a := range arrays {
		fmt.Fprintf(&b, "|%s;%s;%s;", a.Mount, a.Device, a.Detail)
	}
	return b.String()
}

func driveHealth(drives []collector.DriveHealth) string {
	var b strings.Builder
	for _, d := range drives {
		fmt.Fprintf(&b, "|%d\n%s\n%s\n", d.Kind, d.Name, d.Report)
	}
	return b.String()
}

func uptime(raw string) string {
	if raw == "" {
		return "0"
	}
	return raw
}
