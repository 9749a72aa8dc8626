package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakegestures/internal/gesture"
	"shakegestures/internal/settings"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCommands_Run(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")

	c := NewCommands(map[string][]string{
		"screenshot": {"touch", marker},
		"kill_app":   {"sh", "-c", "echo no foreground app >&2; exit 3"},
		"empty":      {},
	}, time.Second)

	require.NoError(t, c.Run(context.Background(), "screenshot"))
	_, err := os.Stat(marker)
	assert.NoError(t, err, "command ran")

	err = c.Run(context.Background(), "kill_app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no foreground app")

	assert.False(t, c.Has("empty"))
	assert.ErrorIs(t, c.Run(context.Background(), "empty"), ErrNotConfigured)
}

func TestCommands_Timeout(t *testing.T) {
	c := NewCommands(map[string][]string{"toggle_ringer": {"sleep", "5"}}, 50*time.Millisecond)

	start := time.Now()
	err := c.Run(context.Background(), "toggle_ringer")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCommands_NilIsNotConfigured(t *testing.T) {
	var c *Commands
	assert.False(t, c.Has("screenshot"))
	assert.ErrorIs(t, c.Run(context.Background(), "screenshot"), ErrNotConfigured)
}

func newLED(t *testing.T, brightness, maxBrightness string) (root string) {
	t.Helper()
	root = t.TempDir()
	dir := filepath.Join(root, "white:flash")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brightness"), []byte(brightness+"\n"), 0o644))
	if maxBrightness != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "max_brightness"), []byte(maxBrightness+"\n"), 0o644))
	}
	return root
}

func TestTorch_Toggle(t *testing.T) {
	root := newLED(t, "0", "255")
	torch, err := NewTorch(root, "white:flash")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, torch.Toggle(ctx))
	data, err := os.ReadFile(filepath.Join(root, "white:flash", "brightness"))
	require.NoError(t, err)
	assert.Equal(t, "255", strings.TrimSpace(string(data)))

	on, err := torch.On()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, torch.Toggle(ctx))
	on, err = torch.On()
	require.NoError(t, err)
	assert.False(t, on)
}

func TestTorch_MissingMaxBrightness(t *testing.T) {
	root := newLED(t, "0", "")
	torch, err := NewTorch(root, "white:flash")
	require.NoError(t, err)

	require.NoError(t, torch.Toggle(context.Background()))
	data, err := os.ReadFile(filepath.Join(root, "white:flash", "brightness"))
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(string(data)))
}

func TestNewTorch_Errors(t *testing.T) {
	_, err := NewTorch(t.TempDir(), "")
	assert.Error(t, err)
	_, err = NewTorch(t.TempDir(), "white:flash")
	assert.Error(t, err)
}

type fakeDBus struct {
	dbus.BusObject
	names []string
	err   error
}

func (f *fakeDBus) CallWithContext(context.Context, string, dbus.Flags, ...interface{}) *dbus.Call {
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	return &dbus.Call{Body: []interface{}{f.names}}
}

type fakePlayer struct {
	dbus.BusObject
	status string
	calls  []string
}

func (p *fakePlayer) GetProperty(string) (dbus.Variant, error) {
	return dbus.MakeVariant(p.status), nil
}

func (p *fakePlayer) CallWithContext(_ context.Context, method string, _ dbus.Flags, _ ...interface{}) *dbus.Call {
	p.calls = append(p.calls, method)
	return &dbus.Call{}
}

type fakeSession struct {
	daemon  *fakeDBus
	players map[string]*fakePlayer
}

func newFakeSession(players map[string]*fakePlayer) *fakeSession {
	names := []string{"org.freedesktop.DBus", ":1.42"}
	for n := range players {
		names = append(names, n)
	}
	return &fakeSession{daemon: &fakeDBus{names: names}, players: players}
}

func (s *fakeSession) BusObject() dbus.BusObject { return s.daemon }

func (s *fakeSession) Object(dest string, _ dbus.ObjectPath) dbus.BusObject {
	return s.players[dest]
}

func TestMPRIS_PlayingSkipsToNext(t *testing.T) {
	player := &fakePlayer{status: "Playing"}
	m := NewMPRIS(newFakeSession(map[string]*fakePlayer{"org.mpris.MediaPlayer2.mpv": player}), "")

	require.NoError(t, m.MediaKey(context.Background()))
	assert.Equal(t, []string{"org.mpris.MediaPlayer2.Player.Next"}, player.calls)
}

func TestMPRIS_PausedTogglesPlayback(t *testing.T) {
	for _, status := range []string{"Paused", "Stopped"} {
		t.Run(status, func(t *testing.T) {
			player := &fakePlayer{status: status}
			m := NewMPRIS(newFakeSession(map[string]*fakePlayer{"org.mpris.MediaPlayer2.mpv": player}), "")

			require.NoError(t, m.MediaKey(context.Background()))
			assert.Equal(t, []string{"org.mpris.MediaPlayer2.Player.PlayPause"}, player.calls)
		})
	}
}

func TestMPRIS_PreferredPlayer(t *testing.T) {
	mpv := &fakePlayer{status: "Paused"}
	spotify := &fakePlayer{status: "Paused"}
	m := NewMPRIS(newFakeSession(map[string]*fakePlayer{
		"org.mpris.MediaPlayer2.mpv":     mpv,
		"org.mpris.MediaPlayer2.spotify": spotify,
	}), "spotify")

	require.NoError(t, m.MediaKey(context.Background()))
	assert.Empty(t, mpv.calls)
	assert.Len(t, spotify.calls, 1)
}

func TestMPRIS_NoPlayer(t *testing.T) {
	m := NewMPRIS(newFakeSession(nil), "")
	assert.ErrorIs(t, m.MediaKey(context.Background()), ErrNoPlayer)
}

type stubMedia struct {
	err   error
	calls int
}

func (s *stubMedia) MediaKey(context.Context) error {
	s.calls++
	return s.err
}

func TestRegistry_PrefersAdapters(t *testing.T) {
	root := newLED(t, "0", "1")
	torch, err := NewTorch(root, "white:flash")
	require.NoError(t, err)
	media := &stubMedia{}

	r := NewRegistry(discardLogger(), WithTorch(torch), WithMedia(media))
	ctx := context.Background()

	require.NoError(t, r.ToggleTorch(ctx))
	on, _ := torch.On()
	assert.True(t, on)

	require.NoError(t, r.DispatchMediaKey(ctx))
	assert.Equal(t, 1, media.calls)
}

func TestRegistry_FallsBackToCommands(t *testing.T) {
	dir := t.TempDir()
	touch := func(name string) []string { return []string{"touch", filepath.Join(dir, name)} }

	r := NewRegistry(discardLogger(), WithCommands(NewCommands(map[string][]string{
		"toggle_torch":        touch("torch"),
		"volume_panel":        touch("volume"),
		"clear_notifications": touch("clear"),
		"toggle_ringer":       touch("ringer"),
		"screenshot":          touch("shot"),
		"kill_app":            touch("kill"),
	}, time.Second)))
	ctx := context.Background()

	require.NoError(t, r.ToggleTorch(ctx))
	require.NoError(t, r.ToggleVolumePanel(ctx))
	require.NoError(t, r.ClearAllNotifications(ctx))
	require.NoError(t, r.ToggleRinger(ctx))
	require.NoError(t, r.TakeScreenshot(ctx))
	require.NoError(t, r.KillApp(ctx))

	for _, name := range []string{"torch", "volume", "clear", "ringer", "shot", "kill"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	assert.ErrorIs(t, r.DispatchMediaKey(ctx), ErrNotConfigured)
}

func TestRegistry_MediaFallbackOnlyWhenNoPlayer(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "media")
	cmds := NewCommands(map[string][]string{"media_key": {"touch", marker}}, time.Second)
	ctx := context.Background()

	failing := &stubMedia{err: errors.New("player crashed")}
	r := NewRegistry(discardLogger(), WithMedia(failing), WithCommands(cmds))
	assert.EqualError(t, r.DispatchMediaKey(ctx), "player crashed")
	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err))

	absent := &stubMedia{err: ErrNoPlayer}
	r = NewRegistry(discardLogger(), WithMedia(absent), WithCommands(cmds))
	require.NoError(t, r.DispatchMediaKey(ctx))
	_, err = os.Stat(marker)
	assert.NoError(t, err)
}

func TestRegistry_Bound(t *testing.T) {
	root := newLED(t, "0", "1")
	torch, err := NewTorch(root, "white:flash")
	require.NoError(t, err)

	cmds := NewCommands(map[string][]string{"screenshot": {"true"}}, time.Second)

	bare := NewRegistry(discardLogger(), WithCommands(cmds))
	assert.True(t, bare.Bound(gesture.ActionScreenshot))
	assert.False(t, bare.Bound(gesture.ActionToggleTorch))
	assert.False(t, bare.Bound(gesture.ActionMediaKey))
	assert.False(t, bare.Bound(gesture.ActionToggleRinger))

	full := NewRegistry(discardLogger(), WithTorch(torch), WithMedia(&stubMedia{}))
	assert.True(t, full.Bound(gesture.ActionToggleTorch))
	assert.True(t, full.Bound(gesture.ActionMediaKey))
	assert.False(t, full.Bound(gesture.ActionKillApp))
}

type countingWake struct {
	acquired int
}

func (w *countingWake) Acquire(context.Context, string) (gesture.WakeLock, error) {
	w.acquired++
	return nopLock{}, nil
}

type nopLock struct{}

func (nopLock) Release() error { return nil }

func TestRegistry_UnconfiguredActionIsUnboundInDispatcher(t *testing.T) {
	ctx := context.Background()
	store := gesture.NewConfigStore(settings.NewMemory(map[string]int{
		gesture.KeyEnabled: 1,
		gesture.KeyAction:  int(gesture.ActionToggleRinger),
	}), discardLogger())
	store.Refresh(ctx)

	wake := &countingWake{}
	r := NewRegistry(discardLogger(), WithCommands(NewCommands(nil, 0)))
	d := gesture.NewDispatcher(store, wake, nil,
		gesture.WithLogger(discardLogger()),
		gesture.WithHandlers(r))

	rep := d.OnGesture(ctx)

	assert.Equal(t, gesture.OutcomeUnbound, rep.Outcome)
	assert.ErrorIs(t, rep.Err, gesture.ErrHandlerUnbound)
	assert.False(t, rep.GuardHeld)
	assert.Zero(t, wake.acquired)
}
