package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix  = "org.mpris.MediaPlayer2."
	mprisPath    = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayer  = "org.mpris.MediaPlayer2.Player"
	dbusListName = "org.freedesktop.DBus.ListNames"
)

// ErrNoPlayer is returned when no MPRIS player is on the session bus.
var ErrNoPlayer = errors.New("handlers: no media player")

// sessionBus is the subset of *dbus.Conn used by MPRIS.
type sessionBus interface {
	BusObject() dbus.BusObject
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// MPRIS sends media key presses to a player on the D-Bus session bus.
type MPRIS struct {
	bus  sessionBus
	conn *dbus.Conn

	// preferred is a player name suffix (e.g. "spotify") tried first.
	preferred string
}

// ConnectMPRIS opens a session bus connection.
func ConnectMPRIS(preferred string) (*MPRIS, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	m := NewMPRIS(conn, preferred)
	m.conn = conn
	return m, nil
}

// NewMPRIS returns an MPRIS client using bus.
func NewMPRIS(bus sessionBus, preferred string) *MPRIS {
	return &MPRIS{bus: bus, preferred: preferred}
}

// MediaKey skips to the next track while something is playing and toggles
// play/pause otherwise.
func (m *MPRIS) MediaKey(ctx context.Context) error {
	name, err := m.player(ctx)
	if err != nil {
		return err
	}
	obj := m.bus.Object(name, mprisPath)

	method := mprisPlayer + ".PlayPause"
	status, err := obj.GetProperty(mprisPlayer + ".PlaybackStatus")
	if err == nil {
		if s, ok := status.Value().(string); ok && s == "Playing" {
			method = mprisPlayer + ".Next"
		}
	}

	if err := obj.CallWithContext(ctx, method, 0).Err; err != nil {
		return fmt.Errorf("%s %s: %w", name, method, err)
	}
	return nil
}

func (m *MPRIS) player(ctx context.Context) (string, error) {
	var names []string
	if err := m.bus.BusObject().CallWithContext(ctx, dbusListName, 0).Store(&names); err != nil {
		return "", fmt.Errorf("list bus names: %w", err)
	}

	var players []string
	for _, n := range names {
		if strings.HasPrefix(n, mprisPrefix) {
			players = append(players, n)
		}
	}
	if len(players) == 0 {
		return "", ErrNoPlayer
	}
	sort.Strings(players)

	if m.preferred != "" {
		for _, p := range players {
			if strings.HasPrefix(strings.TrimPrefix(p, mprisPrefix), m.preferred) {
				return p, nil
			}
		}
	}
	return players[0], nil
}

// Close closes the connection opened by ConnectMPRIS.
func (m *MPRIS) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}
