package monitor

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfolkes/portwarden/internal/diff"
	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/scanning"
)

// recordingNotifier captures every delivered message.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return true
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

// startListener opens a TCP listener on a loopback port and keeps
// accepting until closed.
func startListener(t *testing.T) (addr string, port uint16, closeFn func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			conn.Close()
		}
	}()

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return "127.0.0.1", uint16(tcpAddr.Port), func() { listener.Close() }
}

// freePort reserves and releases a loopback port so probes against it
// see a closed port.
func freePort(t *testing.T) uint16 {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	require.NoError(t, listener.Close())
	return uint16(tcpAddr.Port)
}

func testConfig(ports ...uint16) Config {
	return Config{
		Interval:    time.Hour,
		StopTimeout: 2 * time.Second,
		Scan: scanning.ScanConfig{
			Timeout:             500 * time.Millisecond,
			MaxConcurrentProbes: 4,
			Ports:               ports,
		},
	}
}

func TestAddTarget(t *testing.T) {
	host, port, closeListener := startListener(t)
	defer closeListener()

	notifier := &recordingNotifier{}
	m := New(testConfig(port), WithNotifier(notifier))

	require.NoError(t, m.AddTarget(context.Background(), host))

	status, err := m.Status(host)
	require.NoError(t, err)
	assert.Equal(t, host, status.ID)
	assert.Equal(t, 1, status.OpenPorts)
	assert.False(t, status.MonitoringSince.IsZero())

	messages := notifier.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "🚨 Started monitoring "+host)
	assert.Contains(t, messages[0], "📊 Initial scan found 1 open ports")
}

func TestAddTargetDuplicate(t *testing.T) {
	m := New(testConfig(freePort(t)))

	require.NoError(t, m.AddTarget(context.Background(), "127.0.0.1"))

	err := m.AddTarget(context.Background(), "127.0.0.1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAlreadyMonitored))

	// Duplicate add must leave the original record untouched.
	assert.Len(t, m.Targets(), 1)
}

func TestAddTargetInvalid(t *testing.T) {
	m := New(testConfig(freePort(t)))

	err := m.AddTarget(context.Background(), "")
	require.Error(t, err)
	assert.Empty(t, m.Targets())
}

func TestRemoveTarget(t *testing.T) {
	notifier := &recordingNotifier{}
	m := New(testConfig(freePort(t)), WithNotifier(notifier))

	require.NoError(t, m.AddTarget(context.Background(), "127.0.0.1"))
	require.NoError(t, m.RemoveTarget(context.Background(), "127.0.0.1"))

	assert.Empty(t, m.Targets())
	messages := notifier.all()
	require.Len(t, messages, 2)
	assert.Equal(t, "🛑 Stopped monitoring 127.0.0.1", messages[1])
}

func TestRemoveTargetUnknown(t *testing.T) {
	m := New(testConfig(freePort(t)))

	err := m.RemoveTarget(context.Background(), "10.0.0.99")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotMonitored))
}

func TestCycleNoChanges(t *testing.T) {
	host, port, closeListener := startListener(t)
	defer closeListener()

	notifier := &recordingNotifier{}
	m := New(testConfig(port), WithNotifier(notifier))
	require.NoError(t, m.AddTarget(context.Background(), host))

	before := len(notifier.all())
	m.RunCycleNow(context.Background())
	m.RunCycleNow(context.Background())

	// Unchanged target across two cycles produces zero change events.
	assert.Len(t, notifier.all(), before)

	history, err := m.History(host, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCycleDetectsClosedPort(t *testing.T) {
	host, port, closeListener := startListener(t)

	notifier := &recordingNotifier{}
	m := New(testConfig(port), WithNotifier(notifier))
	require.NoError(t, m.AddTarget(context.Background(), host))

	closeListener()
	m.RunCycleNow(context.Background())

	history, err := m.History(host, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, diff.PortClosed, history[0].Kind)
	assert.Equal(t, port, history[0].Port)

	messages := notifier.all()
	assert.Contains(t, messages[len(messages)-1], "🚨 PORT CLOSED on "+host)

	// The snapshot is replaced even after the change, so a further cycle
	// reports nothing new.
	m.RunCycleNow(context.Background())
	history, err = m.History(host, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCycleDetectsOpenedPort(t *testing.T) {
	port := freePort(t)

	m := New(testConfig(port))
	require.NoError(t, m.AddTarget(context.Background(), "127.0.0.1"))

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Skipf("could not rebind reserved port %d: %v", port, err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			conn.Close()
		}
	}()

	m.RunCycleNow(context.Background())

	history, err := m.History("127.0.0.1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, diff.PortOpened, history[0].Kind)
	assert.Equal(t, port, history[0].Port)
}

func TestHistoryLimit(t *testing.T) {
	m := New(testConfig(freePort(t)))
	require.NoError(t, m.AddTarget(context.Background(), "127.0.0.1"))

	m.mu.Lock()
	record := m.targets["127.0.0.1"]
	for i := 0; i < 5; i++ {
		record.changeLog = append(record.changeLog, diff.ChangeEvent{
			Target: "127.0.0.1",
			Port:   uint16(1000 + i),
		})
	}
	m.mu.Unlock()

	history, err := m.History("127.0.0.1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint16(1003), history[0].Port)
	assert.Equal(t, uint16(1004), history[1].Port)

	full, err := m.History("127.0.0.1", 0)
	require.NoError(t, err)
	assert.Len(t, full, 5)
}

func TestTargetsSorted(t *testing.T) {
	m := New(testConfig(freePort(t)))

	for _, host := range []string{"127.0.0.3", "127.0.0.1", "127.0.0.2"} {
		require.NoError(t, m.AddTarget(context.Background(), host))
	}

	statuses := m.Targets()
	require.Len(t, statuses, 3)
	assert.Equal(t, "127.0.0.1", statuses[0].ID)
	assert.Equal(t, "127.0.0.2", statuses[1].ID)
	assert.Equal(t, "127.0.0.3", statuses[2].ID)
}

func TestStartStopLifecycle(t *testing.T) {
	notifier := &recordingNotifier{}
	m := New(testConfig(freePort(t)), WithNotifier(notifier))

	require.NoError(t, m.Start())
	assert.True(t, m.Running())

	// Redundant start is a no-op.
	require.NoError(t, m.Start())

	m.Stop()
	assert.False(t, m.Running())

	// Redundant stop is a no-op.
	m.Stop()

	messages := notifier.all()
	require.Len(t, messages, 2)
	assert.Equal(t, "🚀 portwarden monitoring started", messages[0])
	assert.Equal(t, "🛑 portwarden monitoring stopped", messages[1])
}

func TestStartRunsFirstCycleImmediately(t *testing.T) {
	host, port, closeListener := startListener(t)

	cfg := testConfig(port)
	cfg.Interval = time.Hour

	m := New(cfg)
	require.NoError(t, m.AddTarget(context.Background(), host))

	closeListener()

	// With an hour-long interval only the startup cycle can notice the
	// closed port within the test window.
	require.NoError(t, m.Start())
	defer m.Stop()

	assert.Eventually(t, func() bool {
		history, err := m.History(host, 0)
		return err == nil && len(history) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPeriodicCycleRuns(t *testing.T) {
	host, port, closeListener := startListener(t)

	cfg := testConfig(port)
	cfg.Interval = 50 * time.Millisecond

	m := New(cfg)
	require.NoError(t, m.AddTarget(context.Background(), host))
	require.NoError(t, m.Start())
	defer m.Stop()

	closeListener()

	assert.Eventually(t, func() bool {
		history, err := m.History(host, 0)
		return err == nil && len(history) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

// fakeStore records store calls for wiring tests.
type fakeStore struct {
	mu        sync.Mutex
	targets   []string
	deleted   []string
	snapshots int
	events    int
}

func (f *fakeStore) SaveTarget(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, id)
	return nil
}

func (f *fakeStore) DeleteTarget(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) SaveSnapshot(_ context.Context, _ scanning.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	return nil
}

func (f *fakeStore) SaveEvents(_ context.Context, events []diff.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events += len(events)
	return nil
}

func TestStoreWiring(t *testing.T) {
	host, port, closeListener := startListener(t)

	store := &fakeStore{}
	m := New(testConfig(port), WithStore(store))

	require.NoError(t, m.AddTarget(context.Background(), host))
	closeListener()
	m.RunCycleNow(context.Background())
	require.NoError(t, m.RemoveTarget(context.Background(), host))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []string{host}, store.targets)
	assert.Equal(t, []string{host}, store.deleted)
	assert.Equal(t, 2, store.snapshots)
	assert.Equal(t, 1, store.events)
}

// staticReachability always answers the same way.
type staticReachability bool

func (s staticReachability) IsReachable(context.Context, string) bool {
	return bool(s)
}

func TestReachabilityNonFatal(t *testing.T) {
	m := New(testConfig(freePort(t)), WithReachability(staticReachability(false)))

	// An unreachable target is still added.
	require.NoError(t, m.AddTarget(context.Background(), "127.0.0.1"))
	assert.Len(t, m.Targets(), 1)
}
