// Package systemd reports service state to systemd via sd_notify.
// Every call is a no-op when the process is not started by systemd.
package systemd

import (
	"context"
	"time"

	logx "bumpbot/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type Notifier struct {
	log    logx.Logger
	notify func(state string) (bool, error)
}

func New(log logx.Logger) *Notifier {
	return &Notifier{
		log:    log,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Status(s string) { n.send("STATUS=" + s) }

// Watchdog pings systemd at half the configured WatchdogSec until ctx ends.
// It returns immediately when the watchdog is not enabled for this unit.
func (n *Notifier) Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	n.log.Debug("systemd watchdog enabled", logx.Duration("interval", interval))
	return n.watchdogLoop(ctx, interval/2)
}

func (n *Notifier) watchdogLoop(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
