package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rustamli/aitrader/internal/bot"
	"github.com/rustamli/aitrader/internal/runtime"
	"github.com/rustamli/aitrader/internal/storage"
)

type fakeContainer struct {
	id      string
	botID   string
	name    string
	running bool
}

// fakeRuntime is an in-memory Runtime with scriptable spawn failures.
type fakeRuntime struct {
	mu            sync.Mutex
	nextID        int
	containers    map[string]*fakeContainer
	spawnFailures int
	spawnErr      error
	stopErr       error
	spawnCalls    int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]*fakeContainer)}
}

func (f *fakeRuntime) Spawn(ctx context.Context, record *bot.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.spawnCalls++
	if f.spawnErr != nil {
		return "", f.spawnErr
	}
	if f.spawnFailures > 0 {
		f.spawnFailures--
		return "", fmt.Errorf("transient launch failure")
	}

	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.containers[id] = &fakeContainer{id: id, botID: record.ID, name: record.Name, running: true}
	return id, nil
}

func (f *fakeRuntime) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopErr != nil {
		return f.stopErr
	}
	if c, ok := f.containers[containerID]; ok {
		c.running = false
	}
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.containers, containerID)
	return nil
}

func (f *fakeRuntime) Inspect(ctx context.Context, containerID string) (runtime.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.containers[containerID]
	if !ok {
		return runtime.Status{}, &bot.RuntimeError{Op: "inspect", Err: fmt.Errorf("no such container %s", containerID)}
	}
	state := "exited"
	if c.running {
		state = "running"
	}
	return runtime.Status{Running: c.running, State: state}, nil
}

func (f *fakeRuntime) FindByBotID(ctx context.Context, botID string) (*runtime.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.containers {
		if c.botID == botID {
			return &runtime.Handle{ContainerID: c.id, Name: c.name, BotID: c.botID, Running: c.running}, nil
		}
	}
	return nil, nil
}

func (f *fakeRuntime) List(ctx context.Context) ([]runtime.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	handles := make([]runtime.Handle, 0, len(f.containers))
	for _, c := range f.containers {
		handles = append(handles, runtime.Handle{ContainerID: c.id, Name: c.name, BotID: c.botID, Running: c.running})
	}
	return handles, nil
}

// killContainer simulates the process dying outside the manager's control.
func (f *fakeRuntime) killContainer(containerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, containerID)
}

// plantContainer registers a process the manager did not spawn.
func (f *fakeRuntime) plantContainer(botID, name string, running bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.containers[id] = &fakeContainer{id: id, botID: botID, name: name, running: running}
	return id
}

func (f *fakeRuntime) containerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}

type managerFixture struct {
	manager *Manager
	store   *storage.MemoryStore
	runtime *fakeRuntime
}

func newManagerFixture(t *testing.T) *managerFixture {
	store := storage.NewMemoryStore()
	rt := newFakeRuntime()
	mgr := New(Config{StartRetries: 1, StopGrace: time.Millisecond, ReconcileInterval: time.Hour},
		store, rt, nil, zaptest.NewLogger(t))
	return &managerFixture{manager: mgr, store: store, runtime: rt}
}

func (f *managerFixture) createBot(t *testing.T, name string) *bot.Record {
	t.Helper()
	record, err := f.manager.Create(context.Background(), bot.Spec{Name: name, Pair: "BTC/USDT"})
	require.NoError(t, err)
	return record
}

func (f *managerFixture) startBot(t *testing.T, id string) *bot.Record {
	t.Helper()
	record, err := f.manager.Start(context.Background(), id)
	require.NoError(t, err)
	return record
}

func TestCreateValidatesSpec(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.manager.Create(context.Background(), bot.Spec{Name: "", Pair: "BTC/USDT"})
	var validationErr *bot.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "name", validationErr.Field)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	f := newManagerFixture(t)
	f.createBot(t, "alpha")

	_, err := f.manager.Create(context.Background(), bot.Spec{Name: "alpha", Pair: "ETH/USDT"})
	var validationErr *bot.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Contains(t, validationErr.Reason, "already exists")
}

func TestCreateDoesNotLaunchProcess(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")

	assert.Equal(t, bot.StateCreated, record.State)
	assert.Empty(t, record.ContainerID)
	assert.Zero(t, f.runtime.spawnCalls)
}

func TestStartTransitionsToRunning(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")

	started := f.startBot(t, record.ID)

	assert.Equal(t, bot.StateRunning, started.State)
	assert.NotEmpty(t, started.ContainerID)
	require.NotNil(t, started.StartedAt)

	persisted, err := f.store.GetBot(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.StateRunning, persisted.State)
	assert.Equal(t, started.ContainerID, persisted.ContainerID)
}

func TestStartFromRunningRejected(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	f.startBot(t, record.ID)

	_, err := f.manager.Start(context.Background(), record.ID)
	var stateErr *bot.InvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, bot.StateRunning, stateErr.State)
}

func TestStartUnknownBot(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.manager.Start(context.Background(), "missing")
	var notFound *bot.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestStartFailureSettlesInError(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	f.runtime.spawnErr = fmt.Errorf("image pull failed")

	_, err := f.manager.Start(context.Background(), record.ID)
	var runtimeErr *bot.RuntimeError
	require.True(t, errors.As(err, &runtimeErr))

	persisted, getErr := f.store.GetBot(context.Background(), record.ID)
	require.NoError(t, getErr)
	assert.Equal(t, bot.StateError, persisted.State)
	assert.Contains(t, persisted.ErrorReason, "launch failed")
}

func TestStartRetriesTransientFailures(t *testing.T) {
	f := newManagerFixture(t)
	f.manager.cfg.StartRetries = 3
	record := f.createBot(t, "alpha")
	f.runtime.spawnFailures = 1

	started := f.startBot(t, record.ID)

	assert.Equal(t, bot.StateRunning, started.State)
	assert.Equal(t, 2, f.runtime.spawnCalls)
}

func TestStartAgainAfterError(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	f.runtime.spawnErr = fmt.Errorf("boom")
	_, err := f.manager.Start(context.Background(), record.ID)
	require.Error(t, err)

	f.runtime.spawnErr = nil
	started := f.startBot(t, record.ID)
	assert.Equal(t, bot.StateRunning, started.State)
	persisted, _ := f.store.GetBot(context.Background(), record.ID)
	assert.Empty(t, persisted.ErrorReason, "error reason cleared on recovery")
}

func TestStopTransitionsToStopped(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	started := f.startBot(t, record.ID)

	stopped, err := f.manager.Stop(context.Background(), record.ID)
	require.NoError(t, err)

	assert.Equal(t, bot.StateStopped, stopped.State)
	assert.Empty(t, stopped.ContainerID)
	require.NotNil(t, stopped.StoppedAt)
	assert.Zero(t, f.runtime.containerCount(), "container removed after stop")
	_ = started
}

func TestStopRecoversUnpersistedHandle(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")

	// Crash after spawn but before the running transition: record stuck
	// in starting with no handle, process alive in the runtime.
	record.State = bot.StateStarting
	require.NoError(t, f.store.UpdateBot(context.Background(), record))
	f.runtime.plantContainer(record.ID, record.Name, true)

	stopped, err := f.manager.Stop(context.Background(), record.ID)
	require.NoError(t, err)

	assert.Equal(t, bot.StateStopped, stopped.State)
	assert.Zero(t, f.runtime.containerCount(), "container terminated on stop")

	require.NoError(t, f.manager.Reconcile(context.Background()))
	assert.Zero(t, f.runtime.containerCount())
	persisted, err := f.store.GetBot(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.StateStopped, persisted.State)
}

func TestStopFromCreatedRejected(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")

	_, err := f.manager.Stop(context.Background(), record.ID)
	var stateErr *bot.InvalidStateError
	require.True(t, errors.As(err, &stateErr))
}

func TestDeleteStoppedBot(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	f.startBot(t, record.ID)
	_, err := f.manager.Stop(context.Background(), record.ID)
	require.NoError(t, err)

	require.NoError(t, f.manager.Delete(context.Background(), record.ID))

	_, err = f.store.GetBot(context.Background(), record.ID)
	var notFound *bot.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestDeleteRunningBotStopsFirst(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	f.startBot(t, record.ID)

	require.NoError(t, f.manager.Delete(context.Background(), record.ID))

	assert.Zero(t, f.runtime.containerCount())
	_, err := f.store.GetBot(context.Background(), record.ID)
	var notFound *bot.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestDeleteDuringTransitionRejected(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")

	// Force the persisted record into an in-flight transition.
	record.State = bot.StateStarting
	require.NoError(t, f.store.UpdateBot(context.Background(), record))

	err := f.manager.Delete(context.Background(), record.ID)
	var stateErr *bot.InvalidStateError
	require.True(t, errors.As(err, &stateErr))

	persisted, getErr := f.store.GetBot(context.Background(), record.ID)
	require.NoError(t, getErr)
	assert.Equal(t, bot.StateStarting, persisted.State, "record unchanged after rejected delete")
}

func TestConcurrentStartsSerialize(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.manager.Start(context.Background(), record.ID)
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stateErr *bot.InvalidStateError
		require.True(t, errors.As(err, &stateErr), "loser must see InvalidStateError, got %v", err)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, f.runtime.spawnCalls, "exactly one process launched")
}

func TestGetCorrectsStaleRunningRecord(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	started := f.startBot(t, record.ID)

	f.runtime.killContainer(started.ContainerID)

	got, err := f.manager.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.StateError, got.State)
	assert.NotEmpty(t, got.ErrorReason)

	persisted, err := f.store.GetBot(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.StateError, persisted.State)
}

func TestListAppliesLivenessCorrection(t *testing.T) {
	f := newManagerFixture(t)
	healthy := f.createBot(t, "healthy")
	f.startBot(t, healthy.ID)
	stale := f.createBot(t, "stale")
	startedStale := f.startBot(t, stale.ID)
	f.runtime.killContainer(startedStale.ContainerID)

	records, err := f.manager.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	byName := map[string]*bot.Record{}
	for _, r := range records {
		byName[r.Name] = r
	}
	assert.Equal(t, bot.StateRunning, byName["healthy"].State)
	assert.Equal(t, bot.StateError, byName["stale"].State)
}

func TestReconcileMarksOrphanedRunning(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	started := f.startBot(t, record.ID)
	f.runtime.killContainer(started.ContainerID)

	require.NoError(t, f.manager.Reconcile(context.Background()))

	persisted, err := f.store.GetBot(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.StateError, persisted.State)
	assert.Contains(t, persisted.ErrorReason, "orphaned")
	assert.Empty(t, persisted.ContainerID)
}

func TestReconcileAdoptsInterruptedStart(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")

	// Simulate a crash after spawn but before the running transition was
	// persisted: record stuck in starting, process alive in the runtime.
	record.State = bot.StateStarting
	require.NoError(t, f.store.UpdateBot(context.Background(), record))
	containerID := f.runtime.plantContainer(record.ID, record.Name, true)

	require.NoError(t, f.manager.Reconcile(context.Background()))

	persisted, err := f.store.GetBot(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.StateRunning, persisted.State)
	assert.Equal(t, containerID, persisted.ContainerID)
	assert.NotNil(t, persisted.StartedAt)
}

func TestReconcileSettlesInterruptedStopWithoutProcess(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	started := f.startBot(t, record.ID)
	f.runtime.killContainer(started.ContainerID)

	fresh, err := f.store.GetBot(context.Background(), record.ID)
	require.NoError(t, err)
	fresh.State = bot.StateStopping
	require.NoError(t, f.store.UpdateBot(context.Background(), fresh))

	require.NoError(t, f.manager.Reconcile(context.Background()))

	persisted, err := f.store.GetBot(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.StateStopped, persisted.State)
	assert.NotNil(t, persisted.StoppedAt)
}

func TestReconcileRemovesUnownedContainers(t *testing.T) {
	f := newManagerFixture(t)
	f.runtime.plantContainer("deleted-bot-id", "ghost", true)

	require.NoError(t, f.manager.Reconcile(context.Background()))

	assert.Zero(t, f.runtime.containerCount())
}

func TestSignalsRequiresExistingBot(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.manager.Signals(context.Background(), "missing", 10)
	var notFound *bot.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestStatusIncludesRuntimeProbe(t *testing.T) {
	f := newManagerFixture(t)
	record := f.createBot(t, "alpha")
	f.startBot(t, record.ID)

	info, err := f.manager.Status(context.Background(), record.ID)
	require.NoError(t, err)
	require.NotNil(t, info.Runtime)
	assert.True(t, info.Runtime.Running)
	assert.Equal(t, "running", info.Runtime.State)
}
