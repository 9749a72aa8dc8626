// Package power implements the wake and display collaborators of the
// gesture dispatcher on Linux: a systemd-logind inhibitor as the wake
// source and a sysfs backlight as the display.
package power

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"

	"shakegestures/internal/gesture"
)

const (
	logindDest    = "org.freedesktop.login1"
	logindPath    = dbus.ObjectPath("/org/freedesktop/login1")
	logindInhibit = "org.freedesktop.login1.Manager.Inhibit"

	// DefaultInhibitWhat keeps the machine out of suspend and idle handling.
	DefaultInhibitWhat = "sleep:idle"
)

// Logind acquires "block" inhibitor locks from systemd-logind. The lock is
// the file descriptor returned by Inhibit; it is held until closed.
type Logind struct {
	obj  dbus.BusObject
	who  string
	what string

	conn *dbus.Conn
}

// ConnectLogind opens a private system bus connection for inhibitor calls.
func ConnectLogind(who string) (*Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	l := NewLogind(conn.Object(logindDest, logindPath), who)
	l.conn = conn
	return l, nil
}

// NewLogind returns a Logind using obj, which must be the logind manager.
func NewLogind(obj dbus.BusObject, who string) *Logind {
	if who == "" {
		who = "shakegestured"
	}
	return &Logind{obj: obj, who: who, what: DefaultInhibitWhat}
}

// Acquire takes an inhibitor lock with tag as the reason string.
func (l *Logind) Acquire(ctx context.Context, tag string) (gesture.WakeLock, error) {
	var fd dbus.UnixFD
	call := l.obj.CallWithContext(ctx, logindInhibit, 0, l.what, l.who, tag, "block")
	if err := call.Store(&fd); err != nil {
		return nil, fmt.Errorf("logind inhibit: %w", err)
	}
	if fd < 0 {
		return nil, errors.New("logind inhibit: invalid file descriptor")
	}
	return &inhibitLock{f: os.NewFile(uintptr(fd), "inhibit:"+tag)}, nil
}

// Close closes the bus connection opened by ConnectLogind.
func (l *Logind) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}

type inhibitLock struct {
	once sync.Once
	f    *os.File
	err  error
}

func (l *inhibitLock) Release() error {
	l.once.Do(func() {
		l.err = l.f.Close()
	})
	return l.err
}

// Nop is a WakeSource whose locks always succeed and hold nothing. It suits
// hosts that never suspend on their own.
type Nop struct{}

func (Nop) Acquire(context.Context, string) (gesture.WakeLock, error) {
	return nopLock{}, nil
}

type nopLock struct{}

func (nopLock) Release() error { return nil }

var (
	_ gesture.WakeSource = (*Logind)(nil)
	_ gesture.WakeSource = Nop{}
)
