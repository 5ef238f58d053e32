package collector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// collectDriveHealth читает S.M.A.R.T. атрибуты дисков и журнал здоровья NVMe
func (c *Collector) collectDriveHealth(ctx context.Context) []DriveHealth {
	hasSmartctl := c.runner.Available("smartctl")
	hasNVMe := c.runner.Available("nvme")
	if !hasSmartctl && !hasNVMe {
		c.logger.Debug("Neither smartctl nor nvme found, skipping drive health check")
		return nil
	}

	disks := c.listDisks(ctx)
	if len(disks) == 0 {
		return nil
	}

	var drives []DriveHealth
	if hasSmartctl {
		drives = append(drives, c.smartHealth(ctx, disks)...)
	}
	if hasNVMe {
		drives = append(drives, c.nvmeHealth(ctx, disks, hasSmartctl)...)
	}

	c.logger.Debug("Drive health check completed", zap.Int("drives", len(drives)))
	return drives
}

// listDisks возвращает имена физических дисков по данным lsblk
func (c *Collector) listDisks(ctx context.Context) []string {
	out := c.runner.Run(ctx, "lsblk", "-l", "-n", "-o", "NAME,TYPE")

	var disks []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "disk" {
			disks = append(disks, fields[0])
		}
	}
	return disks
}

func (c *Collector) smartHealth(ctx context.Context, disks []string) []DriveHealth {
	var drives []DriveHealth
	for _, name := range disks {
		device := "/dev/" + name

		attrs := c.runner.Run(ctx, "smartctl", "-A", device)
		if strings.Contains(attrs, "Attribute") {
			drives = append(drives, DriveHealth{
				Kind:   DriveSMART,
				Name:   name,
				Report: c.runner.Run(ctx, "smartctl", "-H", device) + "\n" + attrs,
			})
			continue
		}

		// Диски за аппаратным RAID контроллером доступны только через его идентификаторы
		ids := c.megaraidIDs(ctx)
		if len(ids) == 0 {
			continue
		}
		n := 0
		for _, id := range ids {
			attrs := c.runner.Run(ctx, "smartctl", "-A", "-d", id, device)
			if !strings.Contains(attrs, "Attribute") {
				continue
			}
			n++
			drives = append(drives, DriveHealth{
				Kind:   DriveSMART,
				Name:   fmt.Sprintf("%s[%d]", name, n),
				Report: c.runner.Run(ctx, "smartctl", "-H", "-d", id, device) + "\n" + attrs,
			})
		}
		// Контроллер уже отдал все свои диски через первое устройство
		break
	}
	return drives
}

// megaraidIDs возвращает идентификаторы вида megaraid,N из smartctl --scan
func (c *Collector) megaraidIDs(ctx context.Context) []string {
	var ids []string
	for _, line := range strings.Split(c.runner.Run(ctx, "smartctl", "--scan"), "\n") {
		if !strings.Contains(line, "megaraid") {
			continue
		}
		// /dev/bus/0 -d megaraid,0 # /dev/bus/0 [megaraid_disk_00], SCSI device
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			ids = append(ids, fields[2])
		}
	}
	return ids
}

func (c *Collector) nvmeHealth(ctx context.Context, disks []string, hasSmartctl bool) []DriveHealth {
	var drives []DriveHealth
	for _, name := range disks {
		log := c.runner.Run(ctx, "nvme", "smart-log", "/dev/"+name)
		if !strings.Contains(log, "NVME") {
			continue
		}

		if hasSmartctl {
			// nvme0n1 -> nvme0: общий вердикт smartctl дает контроллер
			verdict := c.runner.Run(ctx, "smartctl", "-H", "/dev/"+nvmeController(name))
			log = verdict + "\n" + log
		}
		drives = append(drives, DriveHealth{
			Kind:   DriveNVMe,
			Name:   name,
			Report: log,
		})
	}
	return drives
}

func nvmeController(name string) string {
	if len(name) > 2 {
		return name[:len(name)-2]
	}
	return name
}
