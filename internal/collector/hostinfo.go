package collector

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/multierr"
)

// Файлы, по которым определяется дистрибутив и необходимость перезагрузки
var (
	rebootRequiredFile = "/var/run/reboot-required"
	debianVersionFile  = "/etc/debian_version"
	redhatReleaseFile  = "/etc/redhat-release"
	procUptimeFile     = "/proc/uptime"
)

// HostFacts читает сведения о системе, которые не нужно усреднять.
// Возвращает заполненные поля даже при частичных ошибках.
func (c *Collector) HostFacts(ctx context.Context) (*HostFacts, error) {
	facts := &HostFacts{}
	var errs error

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to get host info: %w", err))
		info = &host.InfoStat{}
	}

	facts.OS, facts.RebootRequired = c.detectOS(ctx, info)
	facts.Kernel = info.KernelVersion
	if facts.Kernel == "" {
		facts.Kernel = c.runner.Run(ctx, "uname", "-r")
	}
	if facts.OS == "" {
		facts.OS = strings.TrimSpace(c.runner.Run(ctx, "uname", "-s") + " " + facts.Kernel)
	}
	if fileExists(rebootRequiredFile) {
		facts.RebootRequired = true
	}

	if cpus, err := cpu.InfoWithContext(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to get CPU info: %w", err))
	} else if len(cpus) > 0 {
		facts.CPUModel = cpus[0].ModelName
		facts.CPUSpeedMHz = cpus[0].Mhz
	}
	if cores, err := cpu.CountsWithContext(ctx, true); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to count CPU cores: %w", err))
	} else {
		facts.CPUCores = cores
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to get memory size: %w", err))
	} else {
		facts.RAMSizeKB = vm.Total / 1024
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to get swap size: %w", err))
	} else {
		facts.SwapSizeKB = swap.Total / 1024
		facts.SwapFreeKB = swap.Free / 1024
	}

	if uptime, err := readUptime(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to get uptime: %w", err))
	} else {
		facts.Uptime = uptime
	}

	return facts, errs
}

// detectOS возвращает название ОС в порядке: lsb_release, версия Debian,
// redhat-release, данные gopsutil. На RHEL дополнительно спрашивает needs-restarting.
func (c *Collector) detectOS(ctx context.Context, info *host.InfoStat) (string, bool) {
	if c.runner.Available("lsb_release") {
		if name := c.runner.Run(ctx, "lsb_release", "-s", "-d"); name != "" {
			return name, false
		}
	}

	if version, err := os.ReadFile(debianVersionFile); err == nil {
		return "Debian " + strings.TrimSpace(string(version)), false
	}

	if release, err := os.ReadFile(redhatReleaseFile); err == nil {
		// Работает только на CentOS/RHEL 7+ с yum-utils
		out := c.runner.Run(ctx, "needs-restarting", "-r")
		return strings.TrimSpace(string(release)), strings.Contains(out, "Reboot is required")
	}

	if info.Platform != "" {
		return strings.TrimSpace(info.Platform + " " + info.PlatformVersion), false
	}
	return "", false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// readUptime отдает первое поле /proc/uptime без округления.
// Без procfs используется целое число секунд от gopsutil.
func readUptime(ctx context.Context) (string, error) {
	if data, err := os.ReadFile(procUptimeFile); err == nil {
		if fields := strings.Fields(string(data)); len(fields) > 0 {
			return fields[0], nil
		}
	}
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(uptime, 10), nil
}
