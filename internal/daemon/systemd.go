package daemon

import (
	"context"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	logx "tickwork/pkg/logx"
)

// sdNotifyFunc matches sd.SdNotify. It reports false when NOTIFY_SOCKET
// is unset, which is the normal case outside systemd.
type sdNotifyFunc func(unsetEnvironment bool, state string) (bool, error)

func (d *Daemon) sdNotify(state string) {
	sent, err := d.notifySd(false, state)
	switch {
	case err != nil:
		d.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		d.log.Debug("systemd notified", logx.String("state", state))
	}
}

// watchdogInterval returns half of WATCHDOG_USEC, or 0 when the watchdog
// is off for this process.
func watchdogInterval(log logx.Logger) time.Duration {
	iv, err := sd.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog config invalid", logx.Err(err))
		return 0
	}
	return iv / 2
}

// watchdogLoop pings systemd until ctx is done.
func (d *Daemon) watchdogLoop(ctx context.Context, every time.Duration) error {
	t := d.clock.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
			d.sdNotify(sd.SdNotifyWatchdog)
		}
	}
}
