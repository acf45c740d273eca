package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/internal/logging"
)

func testLogger(t *testing.T) *logging.ZapLogger {
	t.Helper()
	l, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return l
}

func testConcurrency() config.ConcurrencyConfig {
	return config.ConcurrencyConfig{SchedulerPoolSize: 4, SchedulerPoolBuffer: 100}
}

type fakeDurable struct{ ids []string }

func (f fakeDurable) ActiveBotIDs(ctx context.Context) ([]string, error) { return f.ids, nil }
func (f fakeDurable) BotConfig(ctx context.Context, botID string) (core.BotConfig, error) {
	return core.BotConfig{}, nil
}
func (f fakeDurable) IsBotActive(ctx context.Context, botID string) (bool, error) { return true, nil }
func (f fakeDurable) AppendTrade(ctx context.Context, t core.Trade) error         { return nil }
func (f fakeDurable) TradesForBot(ctx context.Context, botID string) ([]core.Trade, error) {
	return nil, nil
}
func (f fakeDurable) SaveScreeningResults(ctx context.Context, taskID, userID string, rows []core.ScreeningResultRow) error {
	return nil
}

func blockingFactory(started chan<- string, release <-chan struct{}) RuntimeFactory {
	return func(botID string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			started <- botID
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		}
	}
}

func TestScheduler_StartAll_DispatchesEveryActiveBot(t *testing.T) {
	durable := fakeDurable{ids: []string{"bot1", "bot2", "bot3"}}
	started := make(chan string, 10)
	release := make(chan struct{})
	defer close(release)

	s := New(testConcurrency(), durable, blockingFactory(started, release), testLogger(t))
	defer s.Stop()

	require.NoError(t, s.StartAll(context.Background()))

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case id := <-started:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for bot dispatch")
		}
	}
	assert.True(t, seen["bot1"] && seen["bot2"] && seen["bot3"])
}

func TestScheduler_Activate_SkipsAlreadyRunningBot(t *testing.T) {
	var mu sync.Mutex
	count := 0
	started := make(chan string, 10)
	release := make(chan struct{})
	defer close(release)

	factory := func(botID string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			count++
			mu.Unlock()
			started <- botID
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		}
	}

	s := New(testConcurrency(), fakeDurable{}, factory, testLogger(t))
	defer s.Stop()

	s.Activate(context.Background(), "bot1")
	<-started
	s.Activate(context.Background(), "bot1")

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "a second Activate for the same bot must not dispatch another runtime")
}

func TestScheduler_Deactivate_CancelsRuntimeContext(t *testing.T) {
	started := make(chan string, 1)
	cancelled := make(chan struct{})

	factory := func(botID string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			started <- botID
			<-ctx.Done()
			close(cancelled)
			return nil
		}
	}

	s := New(testConcurrency(), fakeDurable{}, factory, testLogger(t))
	defer s.Stop()

	s.Activate(context.Background(), "bot1")
	<-started
	assert.True(t, s.IsRunning("bot1"))

	s.Deactivate("bot1")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("deactivate did not cancel the runtime context")
	}
	assert.False(t, s.IsRunning("bot1"))
}
