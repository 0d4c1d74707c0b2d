package wayland

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ownmon/ownmon/pkg/window"
)

var _ window.Detector = (*Detector)(nil)

const swayTree = `{
  "type": "root", "name": "root", "focused": false,
  "nodes": [{
    "type": "output", "name": "eDP-1", "focused": false,
    "nodes": [{
      "type": "workspace", "name": "1", "focused": false,
      "nodes": [
        {"type": "con", "name": "vim", "focused": false, "app_id": "foot", "pid": 10, "nodes": []},
        {"type": "con", "name": "Spotify Premium", "focused": false, "app_id": null, "pid": 11,
         "window_properties": {"class": "Spotify", "instance": "spotify"}, "nodes": []}
      ],
      "floating_nodes": [
        {"type": "floating_con", "name": "Inbox - Mozilla Firefox", "focused": true, "app_id": "firefox", "pid": 12, "nodes": []}
      ]
    }]
  }]
}`

func TestParseSwayTree(t *testing.T) {
	info, err := parseSwayTree([]byte(swayTree))
	require.NoError(t, err)
	assert.Equal(t, "firefox", info.AppName)
	assert.Equal(t, "Inbox - Mozilla Firefox", info.WindowTitle)
	assert.Equal(t, uint32(12), info.PID)
}

func TestParseSwayTreeXWayland(t *testing.T) {
	tree := `{"type":"root","nodes":[{"type":"con","name":"Spotify Premium","focused":true,
		"window_properties":{"class":"Spotify"},"pid":11}]}`
	info, err := parseSwayTree([]byte(tree))
	require.NoError(t, err)
	assert.Equal(t, "Spotify", info.AppName)
}

func TestParseSwayTreeNoFocus(t *testing.T) {
	_, err := parseSwayTree([]byte(`{"type":"root","focused":true,"nodes":[]}`))
	assert.Error(t, err)

	_, err = parseSwayTree([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseHyprlandWindow(t *testing.T) {
	info, err := parseHyprlandWindow([]byte(`{
	"address": "0x55d1", "class": "kitty", "title": "~/src", "pid": 3150,
	"workspace": {"id": 2, "name": "2"}
}`))
	require.NoError(t, err)
	assert.Equal(t, "kitty", info.AppName)
	assert.Equal(t, "~/src", info.WindowTitle)
	assert.Equal(t, uint32(3150), info.PID)

	_, err = parseHyprlandWindow([]byte(`{}`))
	assert.Error(t, err)
}

func TestParseGnomeEval(t *testing.T) {
	out := `(true, '{\"wm_class\":\"org.gnome.Nautilus\",\"title\":\"Home\",\"pid\":2211}')`
	info, err := parseGnomeEval([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "org.gnome.Nautilus", info.AppName)
	assert.Equal(t, "Home", info.WindowTitle)
	assert.Equal(t, uint32(2211), info.PID)

	_, err = parseGnomeEval([]byte(`(false, '')`))
	assert.Error(t, err)
	_, err = parseGnomeEval([]byte(`(true, '')`))
	assert.Error(t, err)
}

func TestParseLogindHints(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	since := now.Add(-7 * time.Minute).UnixMicro()

	info := parseLogindHints("IdleHint=yes\nIdleSinceHint="+itoa(since)+"\nLockedHint=no\n", now)
	assert.Equal(t, 7*time.Minute, info.Idle)
	assert.False(t, info.IsLocked)

	info = parseLogindHints("IdleHint=no\nIdleSinceHint="+itoa(since)+"\nLockedHint=yes\n", now)
	assert.Zero(t, info.Idle)
	assert.True(t, info.IsLocked)
}

func TestDetectCompositor(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"hyprland signature", map[string]string{"HYPRLAND_INSTANCE_SIGNATURE": "abc"}, CompositorHyprland},
		{"sway socket", map[string]string{"SWAYSOCK": "/run/user/1000/sway-ipc.sock"}, CompositorSway},
		{"gnome desktop", map[string]string{"XDG_CURRENT_DESKTOP": "ubuntu:GNOME"}, CompositorGnome},
		{"sway desktop", map[string]string{"XDG_CURRENT_DESKTOP": "sway"}, CompositorSway},
		{"nothing", map[string]string{}, CompositorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCompositor(func(k string) string { return tt.env[k] }))
		})
	}
}

func fakeDetector(compositor string, outputs map[string]string) *Detector {
	return &Detector{
		compositor:    compositor,
		idleThreshold: 5 * time.Minute,
		run: func(_ context.Context, name string, _ ...string) ([]byte, error) {
			out, ok := outputs[name]
			if !ok {
				return nil, errors.New("not found")
			}
			return []byte(out), nil
		},
		lookPath: func(name string) (string, error) {
			if _, ok := outputs[name]; ok {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		},
		now: time.Now,
	}
}

func TestGetFocusedWindowWithFakeTools(t *testing.T) {
	d := fakeDetector(CompositorHyprland, map[string]string{
		"hyprctl": `{"class":"kitty","title":"htop","pid":0}`,
	})
	assert.True(t, d.IsAvailable())
	assert.Equal(t, window.DisplayWayland, d.GetDisplayServer())

	info, err := d.GetFocusedWindow()
	require.NoError(t, err)
	assert.Equal(t, "kitty", info.Name())
	assert.Equal(t, window.DisplayWayland, info.DisplayServer)
}

func TestGetFocusedWindowErrors(t *testing.T) {
	d := fakeDetector(CompositorSway, map[string]string{})
	assert.False(t, d.IsAvailable())
	_, err := d.GetFocusedWindow()
	assert.Error(t, err)

	d = fakeDetector(CompositorUnknown, map[string]string{})
	assert.False(t, d.IsAvailable())
	_, err = d.GetFocusedWindow()
	assert.Error(t, err)
}

func TestGetIdleInfoThreshold(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	d := fakeDetector(CompositorSway, map[string]string{
		"loginctl": "IdleHint=yes\nIdleSinceHint=" + itoa(now.Add(-10*time.Minute).UnixMicro()) + "\nLockedHint=no",
	})
	d.now = func() time.Time { return now }

	info, err := d.GetIdleInfo()
	require.NoError(t, err)
	assert.True(t, info.IsIdle)
	assert.Equal(t, 10*time.Minute, info.Idle)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestTimeoutForPoll(t *testing.T) {
	assert.Equal(t, defaultCommandTimeout, TimeoutForPoll(0))
	assert.Equal(t, minCommandTimeout, TimeoutForPoll(10*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, TimeoutForPoll(100*time.Millisecond))
}

func TestHungHelperIsBoundedByTimeout(t *testing.T) {
	d := fakeDetector(CompositorSway, nil)
	d.run = func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d.SetCommandTimeout(30 * time.Millisecond)

	start := time.Now()
	_, err := d.GetFocusedWindow()
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
