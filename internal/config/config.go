package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"srvmon/internal/sampler"
)

const (
	// DefaultConfigFile читается, если путь не указан явно; его отсутствие не ошибка
	DefaultConfigFile = "/etc/srvmon/agent.yaml"

	// MaxServices и MaxPorts ограничивают размер отчета
	MaxServices = 10
	MaxPorts    = 10

	envPrefix = "SRVMON_"

	processStateFile = "running_proc.txt"
	defaultLogFile   = "cron.log"
)

// Config содержит всю конфигурацию агента
type Config struct {
	// Коллектор
	SID         string        `yaml:"sid"`
	Version     string        `yaml:"version"`
	ReportURL   string        `yaml:"report_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	InsecureTLS bool          `yaml:"insecure_tls"`

	// Окно измерений
	Interval          time.Duration `yaml:"interval"`
	Runtime           time.Duration `yaml:"runtime"`
	NetworkInterfaces []string      `yaml:"network_interfaces"`
	ConnectionPorts   []uint32      `yaml:"connection_ports"`
	// DiskTargets пары "точка_монтирования:устройство", например "/:sda"
	DiskTargets []string `yaml:"disk_targets"`

	// Одноразовые проверки
	Services         []string      `yaml:"services"`
	CheckSoftRAID    bool          `yaml:"check_soft_raid"`
	CheckDriveHealth bool          `yaml:"check_drive_health"`
	RunningProcesses bool          `yaml:"running_processes"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`

	// Общие настройки
	StateDir          string `yaml:"state_dir"`
	LogLevel          string `yaml:"log_level"`
	LogFile           string `yaml:"log_file"`
	MaxAgentProcesses int    `yaml:"max_agent_processes"`

	// Профилирование
	ProfileEnable   bool   `yaml:"profile"`
	ProfileHTTPPort int    `yaml:"profile_http_port"`
	ProfileCPUFile  string `yaml:"profile_cpu_file"`
	ProfileMemFile  string `yaml:"profile_mem_file"`
}

// NewConfig создает новую конфигурацию с значениями по умолчанию
func NewConfig() *Config {
	return &Config{
		Version:           "1.5.9",
		ReportURL:         "https://sm.hetrixtools.net/",
		HTTPTimeout:       30 * time.Second,
		InsecureTLS:       true,
		Interval:          3 * time.Second,
		Runtime:           60 * time.Second,
		CommandTimeout:    30 * time.Second,
		StateDir:          "/var/lib/srvmon",
		LogLevel:          "info",
		MaxAgentProcesses: 300,
		ProfileEnable:     false,
		ProfileHTTPPort:   0,
	}
}

// Load загружает конфигурацию: файл YAML, env файл, переменные окружения, флаги.
// Каждый следующий источник переопределяет предыдущий.
func (c *Config) Load(cmd *cobra.Command) error {
	flags := cmd.Flags()

	path := DefaultConfigFile
	if v := os.Getenv(envPrefix + "CONFIG"); v != "" {
		path = v
	}
	if flags.Changed("config") {
		path, _ = flags.GetString("config")
	}
	if err := c.loadFile(path, flags.Changed("config")); err != nil {
		return err
	}

	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		// godotenv не перезаписывает уже заданные переменные
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := c.loadFromEnv(); err != nil {
		return err
	}
	if err := c.loadFromFlags(flags); err != nil {
		return err
	}

	return c.Validate()
}

// loadFile читает YAML файл поверх текущих значений
func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// durationKeys поля YAML, принимающие как "1m30s", так и целое число секунд
var durationKeys = map[string]bool{
	"http_timeout":    true,
	"interval":        true,
	"runtime":         true,
	"command_timeout": true,
}

// UnmarshalYAML разрешает задавать длительности целым числом секунд, как в переменных окружения
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			if !durationKeys[key.Value] || val.Kind != yaml.ScalarNode {
				continue
			}
			d, err := ParseSeconds(val.Value)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key.Value, val.Value, err)
			}
			val.Tag = "!!str"
			val.Value = d.String()
		}
	}

	type plain Config
	return value.Decode((*plain)(c))
}

// loadFromEnv загружает конфигурацию из переменных окружения SRVMON_*
func (c *Config) loadFromEnv() error {
	env := func(name string) (string, bool) {
		v := os.Getenv(envPrefix + name)
		return v, v != ""
	}

	if v, ok := env("SID"); ok {
		c.SID = v
	}
	if v, ok := env("VERSION"); ok {
		c.Version = v
	}
	if v, ok := env("URL"); ok {
		c.ReportURL = v
	}
	if v, ok := env("INSECURE_TLS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.InsecureTLS = b
		}
	}
	if v, ok := env("NETWORK_INTERFACES"); ok {
		c.NetworkInterfaces = SplitList(v)
	}
	if v, ok := env("SERVICES"); ok {
		c.Services = SplitList(v)
	}
	if v, ok := env("DISK_TARGETS"); ok {
		c.DiskTargets = SplitList(v)
	}
	if v, ok := env("CONNECTION_PORTS"); ok {
		ports, err := ParsePorts(SplitList(v))
		if err != nil {
			return fmt.Errorf("invalid %sCONNECTION_PORTS: %w", envPrefix, err)
		}
		c.ConnectionPorts = ports
	}
	if v, ok := env("STATE_DIR"); ok {
		c.StateDir = v
	}
	if v, ok := env("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := env("LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := env("MAX_AGENT_PROCESSES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAgentProcesses = n
		}
	}
	if v, ok := env("PROFILE_ENABLE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ProfileEnable = b
		}
	}
	if v, ok := env("PROFILE_HTTP_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.ProfileHTTPPort = port
		}
	}
	if v, ok := env("PROFILE_CPU_FILE"); ok {
		c.ProfileCPUFile = v
	}
	if v, ok := env("PROFILE_MEM_FILE"); ok {
		c.ProfileMemFile = v
	}

	bools := map[string]*bool{
		"CHECK_SOFT_RAID":    &c.CheckSoftRAID,
		"CHECK_DRIVE_HEALTH": &c.CheckDriveHealth,
		"RUNNING_PROCESSES":  &c.RunningProcesses,
	}
	for name, dst := range bools {
		if v, ok := env(name); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	durations := map[string]*time.Duration{
		"INTERVAL":        &c.Interval,
		"RUNTIME":         &c.Runtime,
		"HTTP_TIMEOUT":    &c.HTTPTimeout,
		"COMMAND_TIMEOUT": &c.CommandTimeout,
	}
	for name, dst := range durations {
		if v, ok := env(name); ok {
			d, err := ParseSeconds(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
			}
			*dst = d
		}
	}

	return nil
}

// loadFromFlags применяет только явно заданные флаги
func (c *Config) loadFromFlags(flags *pflag.FlagSet) error {
	if flags.Changed("sid") {
		c.SID, _ = flags.GetString("sid")
	}
	if flags.Changed("agent-version") {
		c.Version, _ = flags.GetString("agent-version")
	}
	if flags.Changed("url") {
		c.ReportURL, _ = flags.GetString("url")
	}
	if flags.Changed("http-timeout") {
		c.HTTPTimeout, _ = flags.GetDuration("http-timeout")
	}
	if flags.Changed("insecure") {
		c.InsecureTLS, _ = flags.GetBool("insecure")
	}
	if flags.Changed("interval") {
		c.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("runtime") {
		c.Runtime, _ = flags.GetDuration("runtime")
	}
	if flags.Changed("interface") {
		c.NetworkInterfaces, _ = flags.GetStringSlice("interface")
	}
	if flags.Changed("port") {
		raw, _ := flags.GetStringSlice("port")
		ports, err := ParsePorts(raw)
		if err != nil {
			return fmt.Errorf("invalid --port: %w", err)
		}
		c.ConnectionPorts = ports
	}
	if flags.Changed("disk") {
		c.DiskTargets, _ = flags.GetStringSlice("disk")
	}
	if flags.Changed("service") {
		c.Services, _ = flags.GetStringSlice("service")
	}
	if flags.Changed("soft-raid") {
		c.CheckSoftRAID, _ = flags.GetBool("soft-raid")
	}
	if flags.Changed("drive-health") {
		c.CheckDriveHealth, _ = flags.GetBool("drive-health")
	}
	if flags.Changed("processes") {
		c.RunningProcesses, _ = flags.GetBool("processes")
	}
	if flags.Changed("command-timeout") {
		c.CommandTimeout, _ = flags.GetDuration("command-timeout")
	}
	if flags.Changed("state-dir") {
		c.StateDir, _ = flags.GetString("state-dir")
	}
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-file") {
		c.LogFile, _ = flags.GetString("log-file")
	}
	if flags.Changed("max-agent-processes") {
		c.MaxAgentProcesses, _ = flags.GetInt("max-agent-processes")
	}
	if flags.Changed("profile") {
		c.ProfileEnable, _ = flags.GetBool("profile")
	}
	if flags.Changed("profile-http-port") {
		c.ProfileHTTPPort, _ = flags.GetInt("profile-http-port")
	}
	if flags.Changed("profile-cpu") {
		c.ProfileCPUFile, _ = flags.GetString("profile-cpu")
	}
	if flags.Changed("profile-mem") {
		c.ProfileMemFile, _ = flags.GetString("profile-mem")
	}
	return nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.SID == "" {
		return fmt.Errorf("server id (sid) is required")
	}
	if c.ReportURL == "" {
		return fmt.Errorf("report URL is required")
	}
	if u, err := url.Parse(c.ReportURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid report URL: %s", c.ReportURL)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.Runtime < c.Interval {
		return fmt.Errorf("runtime %v is shorter than interval %v", c.Runtime, c.Interval)
	}
	if c.HTTPTimeout <= 0 || c.CommandTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if len(c.Services) > MaxServices {
		return fmt.Errorf("too many services: %d (max %d)", len(c.Services), MaxServices)
	}
	if len(c.ConnectionPorts) > MaxPorts {
		return fmt.Errorf("too many connection ports: %d (max %d)", len(c.ConnectionPorts), MaxPorts)
	}
	for _, port := range c.ConnectionPorts {
		if port == 0 || port > 65535 {
			return fmt.Errorf("invalid connection port: %d", port)
		}
	}
	if _, err := c.Disks(); err != nil {
		return err
	}
	if c.StateDir == "" {
		return fmt.Errorf("state directory is required")
	}
	if c.MaxAgentProcesses <= 0 {
		return fmt.Errorf("max agent processes must be positive")
	}

	// Проверяем уровень логирования
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	// Порт 0 отключает HTTP сервер pprof
	if c.ProfileEnable && (c.ProfileHTTPPort < 0 || c.ProfileHTTPPort > 65535) {
		return fmt.Errorf("invalid profile HTTP port: %d", c.ProfileHTTPPort)
	}

	return nil
}

// Disks разбирает DiskTargets в пары точка монтирования / устройство
func (c *Config) Disks() ([]sampler.DiskTarget, error) {
	targets := make([]sampler.DiskTarget, 0, len(c.DiskTargets))
	for _, raw := range c.DiskTargets {
		target, err := ParseDiskTarget(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// LogPath путь к файлу лога; по умолчанию лог пишется в каталог состояния
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.StateDir, defaultLogFile)
}

// ProcessStateFile путь к снимку процессов прошлого запуска
func (c *Config) ProcessStateFile() string {
	return filepath.Join(c.StateDir, processStateFile)
}

// SplitList разбирает список через запятую, пропуская пустые элементы
func SplitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ParsePorts разбирает номера портов
func ParsePorts(raw []string) ([]uint32, error) {
	ports := make([]uint32, 0, len(raw))
	for _, s := range raw {
		port, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("invalid port %q", s)
		}
		ports = append(ports, uint32(port))
	}
	return ports, nil
}

// ParseDiskTarget разбирает "mount:device"; префикс /dev/ у устройства отбрасывается
func ParseDiskTarget(s string) (sampler.DiskTarget, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return sampler.DiskTarget{}, fmt.Errorf("invalid disk target %q, expected mount:device", s)
	}
	mount, device := s[:i], strings.TrimPrefix(s[i+1:], "/dev/")
	if !strings.HasPrefix(mount, "/") || device == "" {
		return sampler.DiskTarget{}, fmt.Errorf("invalid disk target %q, expected mount:device", s)
	}
	return sampler.DiskTarget{Mount: mount, Device: device}, nil
}

// ParseSeconds принимает число секунд ("3") или длительность Go ("3s", "1m")
func ParseSeconds(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// AddFlags добавляет флаги агента
func AddFlags(flags *pflag.FlagSet) {
	flags.String("config", DefaultConfigFile, "Path to YAML config file")
	flags.String("env-file", "", "Path to .env file with SRVMON_* variables")

	flags.String("sid", "", "Server ID issued by the collector")
	flags.String("agent-version", "1.5.9", "Agent version reported to the collector")
	flags.String("url", "", "Collector URL")
	flags.Duration("http-timeout", 30*time.Second, "Timeout for sending the report")
	flags.Bool("insecure", true, "Skip TLS certificate verification")

	flags.Duration("interval", 3*time.Second, "Sampling interval")
	flags.Duration("runtime", 60*time.Second, "Sampling window length")
	flags.StringSlice("interface", nil, "Network interfaces to monitor (default: auto-detect)")
	flags.StringSlice("port", nil, "Ports to count active connections on (max 10)")
	flags.StringSlice("disk", nil, "Disk IOPS targets as mount:device (default: auto-detect)")

	flags.StringSlice("service", nil, "Services to check (max 10)")
	flags.Bool("soft-raid", false, "Check software RAID with mdadm")
	flags.Bool("drive-health", false, "Check drive health with smartctl/nvme")
	flags.Bool("processes", false, "Report running processes")
	flags.Duration("command-timeout", 30*time.Second, "Timeout for external commands")

	flags.String("state-dir", "/var/lib/srvmon", "Directory for report and process snapshot")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Log file, reset every hour (default <state-dir>/cron.log)")
	flags.Int("max-agent-processes", 300, "Kill other agent instances above this count")

	// Флаги профилирования
	flags.Bool("profile", false, "Enable profiling")
	flags.Int("profile-http-port", 0, "HTTP port for pprof endpoints (0 disables)")
	flags.String("profile-cpu", "", "CPU profile output file")
	flags.String("profile-mem", "", "Memory profile output file")
}
