package collector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// collectRAID запрашивает mdadm для каждого устройства смонтированной файловой системы
func (c *Collector) collectRAID(ctx context.Context) ([]RAIDArray, error) {
	if !c.runner.Available("mdadm") {
		c.logger.Debug("mdadm not found, skipping software RAID check")
		return nil, nil
	}

	partitions, err := c.partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}

	var arrays []RAIDArray
	for _, p := range partitions {
		if !strings.HasPrefix(p.Device, "/") {
			continue
		}

		detail := c.runner.Run(ctx, "mdadm", "-D", p.Device)
		if detail == "" {
			continue
		}
		arrays = append(arrays, RAIDArray{
			Mount:  p.Mountpoint,
			Device: p.Device,
			Detail: detail,
		})
	}

	c.logger.Debug("Software RAID check completed", zap.Int("arrays", len(arrays)))
	return arrays, nil
}
