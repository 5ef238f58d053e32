package collector

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// MaxServices ограничивает число проверяемых сервисов
const MaxServices = 10

// collectServices определяет, запущен ли каждый из настроенных сервисов
func (c *Collector) collectServices(ctx context.Context) []ServiceStatus {
	names := c.options.Services
	if len(names) == 0 {
		return nil
	}
	if len(names) > MaxServices {
		names = names[:MaxServices]
	}

	table, err := c.processTable(ctx)
	if err != nil {
		// Без таблицы процессов остается только init-система
		c.logger.Warn("Failed to read process table", zap.Error(err))
	}

	statuses := make([]ServiceStatus, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, ServiceStatus{
			Name:    name,
			Running: c.serviceRunning(ctx, name, table),
		})
	}
	return statuses
}

// serviceRunning ищет сервис в таблице процессов и только при неудаче спрашивает systemd
func (c *Collector) serviceRunning(ctx context.Context, name string, table []procEntry) bool {
	for _, p := range table {
		if p.Pid == c.selfPID {
			continue
		}
		if strings.Contains(p.Name, name) || strings.Contains(p.Cmdline, name) {
			return true
		}
	}

	if !c.runner.Available("systemctl") {
		return false
	}
	return c.runner.Run(ctx, "systemctl", "is-active", name) == "active"
}
