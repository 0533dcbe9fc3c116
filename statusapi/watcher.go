package statusapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cvmcloud/deployer/interfaces"
)

// DefaultPollInterval is the fixed delay between status polls.
const DefaultPollInterval = 5 * time.Second

// PollFunc observes the current lifecycle status and ip of an application.
type PollFunc func(ctx context.Context) (interfaces.AppLifecycleState, string, error)

// DeployWatch is the explicit state record of the watch-until-running state
// machine. State is scoped per watcher invocation; nothing is shared across
// concurrent deployments.
type DeployWatch struct {
	App common.Address

	primed        bool
	initialStatus interfaces.AppLifecycleState
	initialIP     string
	hasChanged    bool
}

// Observe feeds one poll result into the state machine. It returns done=true
// with the observed ip on terminal success, and an error on the fatal Failed
// status. The guard against an initial stale Running report: success
// requires the status to have changed since the first poll, or the first
// poll to not have been Running already.
func (w *DeployWatch) Observe(status interfaces.AppLifecycleState, ip string) (done bool, resultIP string, err error) {
	if !w.primed {
		w.primed = true
		w.initialStatus = status
		w.initialIP = ip
	}

	if status == interfaces.AppStateFailed {
		return false, "", &interfaces.LifecycleFailure{App: w.App, Status: status}
	}

	if status != w.initialStatus {
		w.hasChanged = true
	}

	if status == interfaces.AppStateRunning && ip != "" &&
		(w.hasChanged || w.initialStatus != interfaces.AppStateRunning) {
		return true, ip, nil
	}
	return false, "", nil
}

// UpgradeWatch is the explicit state record of the
// watch-until-upgrade-complete state machine.
type UpgradeWatch struct {
	App common.Address

	primed        bool
	initialStatus interfaces.AppLifecycleState
	initialIP     string
}

// Observe feeds one poll result into the state machine. A first poll that
// already shows Stopped with an ip counts as immediately complete; after
// that, completion requires a subsequent poll showing Stopped or Running
// with a non-empty ip, observed as a change from the first poll. The change
// requirement keeps a stale Running report repeated verbatim from
// completing before the upgrade has actually cycled, mirroring the deploy
// watch guard.
func (w *UpgradeWatch) Observe(status interfaces.AppLifecycleState, ip string) (done bool, resultIP string, err error) {
	if status == interfaces.AppStateFailed {
		return false, "", &interfaces.LifecycleFailure{App: w.App, Status: status}
	}

	if !w.primed {
		w.primed = true
		w.initialStatus = status
		w.initialIP = ip
		if status == interfaces.AppStateStopped && ip != "" {
			return true, ip, nil
		}
		return false, "", nil
	}

	if (status == interfaces.AppStateStopped || status == interfaces.AppStateRunning) && ip != "" &&
		(status != w.initialStatus || ip != w.initialIP) {
		return true, ip, nil
	}
	return false, "", nil
}

// Watcher drives a watch state machine by polling at a fixed interval.
// Transient poll failures are logged and the loop continues; they are never
// terminal.
type Watcher struct {
	App  common.Address
	Poll PollFunc

	// Interval defaults to DefaultPollInterval when zero.
	Interval time.Duration

	Log *slog.Logger
}

// WatchUntilRunning polls until the deploy state machine reports completion
// and returns the observed ip.
func (w *Watcher) WatchUntilRunning(ctx context.Context) (string, error) {
	state := &DeployWatch{App: w.App}
	return w.run(ctx, state.Observe)
}

// WatchUntilUpgraded polls until the upgrade state machine reports
// completion and returns the observed ip.
func (w *Watcher) WatchUntilUpgraded(ctx context.Context) (string, error) {
	state := &UpgradeWatch{App: w.App}
	return w.run(ctx, state.Observe)
}

func (w *Watcher) run(ctx context.Context, observe func(interfaces.AppLifecycleState, string) (bool, string, error)) (string, error) {
	interval := w.Interval
	if interval == 0 {
		interval = DefaultPollInterval
	}

	for {
		status, ip, pollErr := w.Poll(ctx)
		switch {
		case pollErr != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case pollErr != nil:
			if w.Log != nil {
				w.Log.Warn("status poll failed, will retry", "app", w.App.Hex(), "err", pollErr)
			}
		default:
			done, resultIP, err := observe(status, ip)
			if err != nil {
				return "", err
			}
			if done {
				return resultIP, nil
			}
			if w.Log != nil {
				w.Log.Debug("application not ready yet", "app", w.App.Hex(), "status", status, "ip", ip)
			}
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
