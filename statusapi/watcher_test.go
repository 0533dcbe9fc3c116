package statusapi

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvmcloud/deployer/interfaces"
)

var watchApp = common.HexToAddress("0x0000000000000000000000000000000000000042")

type pollStep struct {
	status interfaces.AppLifecycleState
	ip     string
	err    error
}

// scriptedPoll replays a fixed sequence of poll results and counts polls.
// The last step repeats forever.
func scriptedPoll(steps []pollStep, polls *int) PollFunc {
	return func(ctx context.Context) (interfaces.AppLifecycleState, string, error) {
		step := steps[len(steps)-1]
		if *polls < len(steps) {
			step = steps[*polls]
		}
		*polls++
		return step.status, step.ip, step.err
	}
}

func testWatcher(poll PollFunc) *Watcher {
	return &Watcher{App: watchApp, Poll: poll, Interval: time.Millisecond}
}

func TestWatchUntilRunningResolvesAfterTransition(t *testing.T) {
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateDeploying, "", nil},
		{interfaces.AppStateDeploying, "", nil},
		{interfaces.AppStateRunning, "1.2.3.4", nil},
	}, &polls))

	ip, err := watcher.WatchUntilRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", ip)
	assert.Equal(t, 3, polls, "must resolve after exactly 3 polls")
}

func TestWatchUntilRunningIgnoresStaleInitialRunning(t *testing.T) {
	// A first poll that already reports Running before the fresh deploy has
	// cycled must not count as completion.
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateRunning, "1.2.3.4", nil},
	}, &polls))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := watcher.WatchUntilRunning(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, polls, 5, "the watcher keeps polling instead of resolving")
}

func TestWatchUntilRunningAfterStaleRunningCycles(t *testing.T) {
	// Stale Running, then the platform actually cycles the app.
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateRunning, "1.2.3.4", nil},
		{interfaces.AppStateDeploying, "", nil},
		{interfaces.AppStateRunning, "5.6.7.8", nil},
	}, &polls))

	ip, err := watcher.WatchUntilRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5.6.7.8", ip)
}

func TestWatchUntilRunningFailedIsFatal(t *testing.T) {
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateDeploying, "", nil},
		{interfaces.AppStateFailed, "", nil},
	}, &polls))

	_, err := watcher.WatchUntilRunning(context.Background())

	var failure *interfaces.LifecycleFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, watchApp, failure.App)
	assert.Equal(t, 2, polls, "Failed is raised immediately, not retried")
}

func TestWatchUntilRunningRetriesTransientErrors(t *testing.T) {
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateDeploying, "", nil},
		{"", "", assert.AnError},
		{"", "", assert.AnError},
		{interfaces.AppStateRunning, "1.2.3.4", nil},
	}, &polls))

	ip, err := watcher.WatchUntilRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", ip)
	assert.Equal(t, 4, polls)
}

func TestWatchUntilRunningRequiresIP(t *testing.T) {
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateDeploying, "", nil},
		{interfaces.AppStateRunning, "", nil},
		{interfaces.AppStateRunning, "1.2.3.4", nil},
	}, &polls))

	ip, err := watcher.WatchUntilRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", ip)
	assert.Equal(t, 3, polls)
}

func TestWatchUntilUpgradedImmediateStopped(t *testing.T) {
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateStopped, "1.2.3.4", nil},
	}, &polls))

	ip, err := watcher.WatchUntilUpgraded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", ip)
	assert.Equal(t, 1, polls, "a first poll already showing Stopped completes immediately")
}

func TestWatchUntilUpgradedTransitionToRunning(t *testing.T) {
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateUpgrading, "", nil},
		{interfaces.AppStateUpgrading, "", nil},
		{interfaces.AppStateRunning, "1.2.3.4", nil},
	}, &polls))

	ip, err := watcher.WatchUntilUpgraded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", ip)
	assert.Equal(t, 3, polls)
}

func TestWatchUntilUpgradedIgnoresStaleRunning(t *testing.T) {
	// A pre-upgrade Running report repeated verbatim must not complete the
	// watch; the upgrade has not cycled yet.
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateRunning, "1.2.3.4", nil},
	}, &polls))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := watcher.WatchUntilUpgraded(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, polls, 5, "the watcher keeps polling instead of resolving")
}

func TestWatchUntilUpgradedStaleRunningThenCycles(t *testing.T) {
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateRunning, "1.2.3.4", nil},
		{interfaces.AppStateUpgrading, "", nil},
		{interfaces.AppStateRunning, "5.6.7.8", nil},
	}, &polls))

	ip, err := watcher.WatchUntilUpgraded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5.6.7.8", ip)
	assert.Equal(t, 3, polls)
}

func TestWatchUntilUpgradedFailedIsFatal(t *testing.T) {
	polls := 0
	watcher := testWatcher(scriptedPoll([]pollStep{
		{interfaces.AppStateUpgrading, "", nil},
		{interfaces.AppStateFailed, "", nil},
	}, &polls))

	_, err := watcher.WatchUntilUpgraded(context.Background())

	var failure *interfaces.LifecycleFailure
	require.ErrorAs(t, err, &failure)
}

func TestDeployWatchStateIsolated(t *testing.T) {
	// Two watch records fed the same sequence stay independent.
	first := &DeployWatch{App: watchApp}
	second := &DeployWatch{App: watchApp}

	done, _, err := first.Observe(interfaces.AppStateDeploying, "")
	require.NoError(t, err)
	assert.False(t, done)

	done, ip, err := first.Observe(interfaces.AppStateRunning, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "1.2.3.4", ip)

	// The second record has not seen a transition yet.
	done, _, err = second.Observe(interfaces.AppStateRunning, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, done)
}
