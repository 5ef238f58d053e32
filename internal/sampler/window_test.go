package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

// scriptedNet отдает показания по порядку вызовов; последнее повторяется
type scriptedNet struct {
	readings []map[string]NetCounter
	fail     map[int]bool
	calls    int
}

func (n *scriptedNet) NetCounters(context.Context) (map[string]NetCounter, error) {
	idx := n.calls
	n.calls++
	if n.fail[idx] {
		return nil, errors.New("read /proc/net/dev: broken pipe")
	}
	if idx >= len(n.readings) {
		idx = len(n.readings) - 1
	}
	return n.readings[idx], nil
}

// steadyCPU на каждом чтении прибавляет фиксированные доли времени
type steadyCPU struct {
	current CPUTimes
	step    CPUTimes
	fail    bool
	failOn  map[int]bool
	calls   int
}

func (c *steadyCPU) CPUTimes(context.Context) (CPUTimes, error) {
	if c.fail {
		return CPUTimes{}, errors.New("no /proc/stat")
	}
	idx := c.calls
	c.calls++
	c.current.Idle += c.step.Idle
	c.current.IOWait += c.step.IOWait
	c.current.Total += c.step.Total
	if c.failOn[idx] {
		return CPUTimes{}, errors.New("short read of /proc/stat")
	}
	return c.current, nil
}

type scriptedMemory struct {
	values []float64
	fail   map[int]bool
	calls  int
}

func (m *scriptedMemory) MemoryUsage(context.Context) (float64, error) {
	idx := m.calls
	m.calls++
	if m.fail[idx] {
		return 0, errors.New("meminfo unavailable")
	}
	if idx >= len(m.values) {
		idx = len(m.values) - 1
	}
	return m.values[idx], nil
}

type staticPorts []uint32

func (p staticPorts) LocalPorts(context.Context) ([]uint32, error) { return p, nil }

type scriptedDisk struct {
	readings []map[string]DiskCounter
	calls    int
}

func (d *scriptedDisk) DiskCounters(_ context.Context, _ ...string) (map[string]DiskCounter, error) {
	idx := d.calls
	d.calls++
	if idx >= len(d.readings) {
		idx = len(d.readings) - 1
	}
	return d.readings[idx], nil
}

type staticInterfaces []string

func (s staticInterfaces) Interfaces(context.Context) ([]string, error) { return s, nil }

func testSources(net NetCounterReader) Sources {
	return Sources{
		Net:    net,
		CPU:    &steadyCPU{step: CPUTimes{Idle: 75, IOWait: 5, Total: 100}},
		Memory: &scriptedMemory{values: []float64{40}},
	}
}

func rxSequence(name string, values ...uint64) []map[string]NetCounter {
	readings := make([]map[string]NetCounter, 0, len(values))
	for _, v := range values {
		readings = append(readings, map[string]NetCounter{name: {RxBytes: v}})
	}
	return readings
}

func runWindow(t *testing.T, settings Settings, sources Sources, start time.Time) *Result {
	t.Helper()

	s := New(settings, sources, &fakeClock{now: start}, zaptest.NewLogger(t))
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("sampling failed: %v", err)
	}
	return result
}

var quietMinute = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func TestRateComputationTruncatesAndAverages(t *testing.T) {
	net := &scriptedNet{readings: rxSequence("eth0", 1000, 1500, 1500)}
	settings := Settings{
		Interval:   3 * time.Second,
		Runtime:    6 * time.Second,
		Interfaces: []string{"eth0"},
	}

	result := runWindow(t, settings, testSources(net), quietMinute)

	if result.Ticks != 2 {
		t.Fatalf("expected 2 ticks, got %d", result.Ticks)
	}
	iface := result.Interfaces[0]
	// 500/3 = 166.67 -> 166, затем 0
	if iface.RxSum != 166 {
		t.Fatalf("expected rx sum 166, got %d", iface.RxSum)
	}
	if avg := result.PerTick(iface.RxSum); avg != 83 {
		t.Fatalf("expected rx average 83, got %d", avg)
	}
}

func TestWindowStopsOnMinuteRollover(t *testing.T) {
	net := &scriptedNet{readings: rxSequence("eth0", 0)}
	settings := Settings{
		Interval:   3 * time.Second,
		Runtime:    60 * time.Second,
		Interfaces: []string{"eth0"},
	}
	// Тики в :48 :51 :54 :57 и :00 следующей минуты
	start := time.Date(2026, 10, 18, 12, 0, 45, 0, time.UTC)

	result := runWindow(t, settings, testSources(net), start)

	if result.Target != 20 {
		t.Fatalf("expected target of 20 ticks, got %d", result.Target)
	}
	if result.Ticks != 5 {
		t.Fatalf("expected 5 ticks, got %d", result.Ticks)
	}
	if result.CPUAvg() != 25 {
		t.Fatalf("expected CPU average 25 over actual ticks, got %v", result.CPUAvg())
	}
	if result.IOWaitAvg() != 5 {
		t.Fatalf("expected IO wait average 5, got %v", result.IOWaitAvg())
	}
	if result.Elapsed != 15*time.Second {
		t.Fatalf("expected 15s of ticks, got %v", result.Elapsed)
	}
}

func TestMinuteRolloverFromFiftyNine(t *testing.T) {
	net := &scriptedNet{readings: rxSequence("eth0", 0)}
	settings := Settings{Interval: 3 * time.Second, Runtime: 60 * time.Second}
	start := time.Date(2026, 10, 18, 12, 59, 58, 0, time.UTC)

	result := runWindow(t, settings, testSources(net), start)

	if result.Ticks != 1 {
		t.Fatalf("expected the hour rollover to end the window after 1 tick, got %d", result.Ticks)
	}
}

func TestTwoInterfacesConstantThroughput(t *testing.T) {
	var readings []map[string]NetCounter
	for i := uint64(0); i <= 20; i++ {
		readings = append(readings, map[string]NetCounter{
			"eth0": {RxBytes: 5000 + i*3000, TxBytes: 100 + i*600},
			"eth1": {RxBytes: i * 3000},
		})
	}
	settings := Settings{
		Interval:   3 * time.Second,
		Runtime:    60 * time.Second,
		Interfaces: []string{"eth0", "eth1"},
	}

	result := runWindow(t, settings, testSources(&scriptedNet{readings: readings}), quietMinute)

	if result.Ticks != 20 {
		t.Fatalf("expected 20 ticks, got %d", result.Ticks)
	}
	if len(result.Interfaces) != 2 {
		t.Fatalf("expected 2 interfaces, got %d", len(result.Interfaces))
	}
	for _, iface := range result.Interfaces {
		if avg := result.PerTick(iface.RxSum); avg != 1000 {
			t.Fatalf("%s: expected rx average 1000, got %d", iface.Name, avg)
		}
	}
	if avg := result.PerTick(result.Interfaces[0].TxSum); avg != 200 {
		t.Fatalf("expected tx average 200, got %d", avg)
	}
	if result.RAMAvg() != 40 {
		t.Fatalf("expected RAM average 40, got %v", result.RAMAvg())
	}
}

func TestFailedReadsCountTowardsDivisor(t *testing.T) {
	net := &scriptedNet{
		// Вызов 0 открывает окно, вызов 2 (второй тик) падает
		readings: rxSequence("eth0", 0, 3000, 0, 9000, 12000),
		fail:     map[int]bool{2: true},
	}
	sources := testSources(net)
	sources.Memory = &scriptedMemory{values: []float64{40}, fail: map[int]bool{1: true}}
	settings := Settings{
		Interval:   3 * time.Second,
		Runtime:    12 * time.Second,
		Interfaces: []string{"eth0"},
	}

	result := runWindow(t, settings, sources, quietMinute)

	if result.Ticks != 4 {
		t.Fatalf("expected 4 ticks, got %d", result.Ticks)
	}
	if result.RAMAvg() != 30 {
		t.Fatalf("expected RAM average 30 (120/4), got %v", result.RAMAvg())
	}
	// 1000 + 0 + (9000-3000)/6 + 1000
	if sum := result.Interfaces[0].RxSum; sum != 3000 {
		t.Fatalf("expected rx sum 3000, got %d", sum)
	}
	if avg := result.PerTick(result.Interfaces[0].RxSum); avg != 750 {
		t.Fatalf("expected rx average 750, got %d", avg)
	}
}

func TestFailedCPUReadCountsTowardsDivisor(t *testing.T) {
	sources := testSources(&scriptedNet{readings: rxSequence("eth0", 0)})
	// Вызов 0 открывает окно, вызов 2 (второй тик) падает
	sources.CPU = &steadyCPU{step: CPUTimes{Idle: 75, IOWait: 5, Total: 100}, failOn: map[int]bool{2: true}}
	settings := Settings{
		Interval:   3 * time.Second,
		Runtime:    12 * time.Second,
		Interfaces: []string{"eth0"},
	}

	result := runWindow(t, settings, sources, quietMinute)

	if result.Ticks != 4 {
		t.Fatalf("expected 4 ticks, got %d", result.Ticks)
	}
	// 25 + 0 + 25 + 25
	if result.CPUSum != 75 || result.CPUAvg() != 18.75 {
		t.Fatalf("expected CPU average 18.75 (75/4), got %v (sum %v)", result.CPUAvg(), result.CPUSum)
	}
	if result.IOWaitAvg() != 3.75 {
		t.Fatalf("expected iowait average 3.75 (15/4), got %v", result.IOWaitAvg())
	}
}

func TestCounterResetContributesZero(t *testing.T) {
	net := &scriptedNet{readings: rxSequence("eth0", 9000, 12000, 100, 3100)}
	settings := Settings{
		Interval:   3 * time.Second,
		Runtime:    9 * time.Second,
		Interfaces: []string{"eth0"},
	}

	result := runWindow(t, settings, testSources(net), quietMinute)

	// 1000, 0 (сброс), 1000
	if sum := result.Interfaces[0].RxSum; sum != 2000 {
		t.Fatalf("expected rx sum 2000, got %d", sum)
	}
}

func TestDiskRateUsesWholeWindowDelta(t *testing.T) {
	net := &scriptedNet{readings: rxSequence("eth0", 0)}
	disk := &scriptedDisk{readings: []map[string]DiskCounter{
		{"sda1": {ReadBytes: 512_000, WriteBytes: 0}, "sda3": {ReadBytes: 10, WriteBytes: 10}},
		{"sda1": {ReadBytes: 512_000 + 1_200_000, WriteBytes: 12_345}, "sda3": {ReadBytes: 10, WriteBytes: 10}},
	}}
	sources := testSources(net)
	sources.Disk = disk
	settings := Settings{
		Interval: 3 * time.Second,
		Runtime:  12 * time.Second,
		Disks: []DiskTarget{
			{Mount: "/", Device: "sda1"},
			{Mount: "/volume1", Device: "sda3"},
			{Mount: "/missing", Device: "sdz9"},
		},
	}

	result := runWindow(t, settings, sources, quietMinute)

	if disk.calls != 2 {
		t.Fatalf("expected disk counters read at open and close only, got %d reads", disk.calls)
	}
	if len(result.Disks) != 2 {
		t.Fatalf("expected 2 disk rates, got %+v", result.Disks)
	}
	root := result.Disks[0]
	if root.Mount != "/" || root.ReadPerSec != 100_000 || root.WritePerSec != 1028 {
		t.Fatalf("unexpected root disk rate: %+v", root)
	}
	if vol := result.Disks[1]; vol.ReadPerSec != 0 || vol.WritePerSec != 0 {
		t.Fatalf("unexpected idle disk rate: %+v", vol)
	}
}

func TestPortConnectionsAreCountedPerTick(t *testing.T) {
	sources := testSources(&scriptedNet{readings: rxSequence("eth0", 0)})
	sources.Connections = staticPorts{80, 80, 443, 22, 8080}
	settings := Settings{
		Interval: 3 * time.Second,
		Runtime:  15 * time.Second,
		Ports:    []uint32{80, 443, 3306},
	}

	result := runWindow(t, settings, sources, quietMinute)

	want := map[uint32]uint64{80: 10, 443: 5, 3306: 0}
	for _, p := range result.Ports {
		if p.Sum != want[p.Port] {
			t.Fatalf("port %d: expected sum %d, got %d", p.Port, want[p.Port], p.Sum)
		}
	}
	if avg := result.PerTick(result.Ports[0].Sum); avg != 2 {
		t.Fatalf("expected port 80 average 2, got %d", avg)
	}
}

func TestDetectedInterfacesAreUsedWhenNoneConfigured(t *testing.T) {
	net := &scriptedNet{readings: []map[string]NetCounter{
		{"eth0": {RxBytes: 0}, "lo": {RxBytes: 0}},
		{"eth0": {RxBytes: 300}, "lo": {RxBytes: 999}},
	}}
	sources := testSources(net)
	sources.Interfaces = staticInterfaces{"eth0", "wg0"}
	settings := Settings{Interval: 3 * time.Second, Runtime: 3 * time.Second}

	result := runWindow(t, settings, sources, quietMinute)

	if len(result.Interfaces) != 1 || result.Interfaces[0].Name != "eth0" {
		t.Fatalf("expected only eth0 to be monitored, got %+v", result.Interfaces)
	}
	if result.Interfaces[0].RxSum != 100 {
		t.Fatalf("expected rx sum 100, got %d", result.Interfaces[0].RxSum)
	}
}

func TestOpenFailsWithoutFoundationalCounters(t *testing.T) {
	net := &scriptedNet{readings: rxSequence("eth0", 0), fail: map[int]bool{0: true}}
	s := New(Settings{Interval: 3 * time.Second, Runtime: 60 * time.Second}, testSources(net), &fakeClock{now: quietMinute}, nil)

	if _, err := s.Run(context.Background()); !errors.Is(err, ErrSetup) {
		t.Fatalf("expected ErrSetup, got %v", err)
	}

	sources := testSources(&scriptedNet{readings: rxSequence("eth0", 0)})
	sources.CPU = &steadyCPU{fail: true}
	s = New(Settings{Interval: 3 * time.Second, Runtime: 60 * time.Second}, sources, &fakeClock{now: quietMinute}, nil)

	if _, err := s.Run(context.Background()); !errors.Is(err, ErrSetup) {
		t.Fatalf("expected ErrSetup for CPU failure, got %v", err)
	}
}

func TestRuntimeShorterThanIntervalIsRejected(t *testing.T) {
	s := New(Settings{Interval: 3 * time.Second, Runtime: 2 * time.Second},
		testSources(&scriptedNet{readings: rxSequence("eth0", 0)}), &fakeClock{now: quietMinute}, nil)

	if _, err := s.Run(context.Background()); !errors.Is(err, ErrSetup) {
		t.Fatalf("expected ErrSetup, got %v", err)
	}
}

func TestCancelledContextInterruptsWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Settings{Interval: 3 * time.Second, Runtime: 60 * time.Second},
		testSources(&scriptedNet{readings: rxSequence("eth0", 0)}), &fakeClock{now: quietMinute}, nil)

	if _, err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWindowLifecycle(t *testing.T) {
	w := NewWindow(Settings{Interval: 3 * time.Second, Runtime: 3 * time.Second},
		testSources(&scriptedNet{readings: rxSequence("eth0", 0)}), &fakeClock{now: quietMinute}, nil)
	ctx := context.Background()

	if w.State() != StateOpen {
		t.Fatalf("expected open, got %s", w.State())
	}
	if err := w.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if w.State() != StateTicking || !w.Done() {
		t.Fatalf("expected ticking and done, got %s done=%v", w.State(), w.Done())
	}
	if err := w.Tick(ctx); err == nil {
		t.Fatal("expected error when ticking past the target")
	}

	result := w.Close(ctx)
	if w.State() != StateClosed || result.Ticks != 1 {
		t.Fatalf("unexpected close state %s ticks=%d", w.State(), result.Ticks)
	}
	if err := w.Open(ctx); err == nil {
		t.Fatal("expected error when reopening a closed window")
	}
}

func TestResultAveragesWithoutTicks(t *testing.T) {
	r := &Result{CPUSum: 10, RAMSum: 5}
	if r.CPUAvg() != 0 || r.RAMAvg() != 0 || r.PerTick(100) != 0 {
		t.Fatal("expected zero averages for an empty window")
	}
}
