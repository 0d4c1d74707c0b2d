package wayland

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/process"

	"github.com/ownmon/ownmon/pkg/window"
)

// Supported compositors.
const (
	CompositorSway     = "sway"
	CompositorHyprland = "hyprland"
	CompositorGnome    = "gnome"
	CompositorUnknown  = "unknown"
)

const (
	// defaultCommandTimeout applies when no poll interval is known, as in
	// one-shot probes.
	defaultCommandTimeout = 500 * time.Millisecond
	// minCommandTimeout leaves room to spawn the helper process at all.
	minCommandTimeout = 25 * time.Millisecond
)

// TimeoutForPoll bounds helper invocations by the poll interval, so a hung
// compositor IPC delays the sampler by at most one tick.
func TimeoutForPoll(poll time.Duration) time.Duration {
	switch {
	case poll <= 0:
		return defaultCommandTimeout
	case poll < minCommandTimeout:
		return minCommandTimeout
	}
	return poll
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Detector implements window.Detector for Wayland compositors that expose
// the focused window over their IPC tool.
type Detector struct {
	compositor    string
	idleThreshold time.Duration
	timeout       time.Duration
	run           runFunc
	lookPath      func(string) (string, error)
	now           func() time.Time
}

// NewDetector creates a new Wayland detector
func NewDetector(idleThreshold time.Duration) *Detector {
	return &Detector{
		compositor:    detectCompositor(os.Getenv),
		idleThreshold: idleThreshold,
		run:           execRun,
		lookPath:      exec.LookPath,
		now:           time.Now,
	}
}

// SetCommandTimeout bounds each compositor helper call. Zero restores the
// default.
func (d *Detector) SetCommandTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// detectCompositor inspects the variables each compositor exports into
// client environments.
func detectCompositor(getenv func(string) string) string {
	switch {
	case getenv("HYPRLAND_INSTANCE_SIGNATURE") != "":
		return CompositorHyprland
	case getenv("SWAYSOCK") != "":
		return CompositorSway
	}
	desktop := strings.ToLower(getenv("XDG_CURRENT_DESKTOP"))
	switch {
	case strings.Contains(desktop, "hyprland"):
		return CompositorHyprland
	case strings.Contains(desktop, "sway"):
		return CompositorSway
	case strings.Contains(desktop, "gnome"), strings.Contains(desktop, "ubuntu"):
		return CompositorGnome
	}
	return CompositorUnknown
}

// Compositor returns the detected compositor name
func (d *Detector) Compositor() string {
	return d.compositor
}

func (d *Detector) tool() string {
	switch d.compositor {
	case CompositorSway:
		return "swaymsg"
	case CompositorHyprland:
		return "hyprctl"
	case CompositorGnome:
		return "gdbus"
	}
	return ""
}

// IsAvailable checks if Wayland detection is available
func (d *Detector) IsAvailable() bool {
	tool := d.tool()
	if tool == "" {
		return false
	}
	_, err := d.lookPath(tool)
	return err == nil
}

// GetDisplayServer returns "wayland"
func (d *Detector) GetDisplayServer() string {
	return window.DisplayWayland
}

func (d *Detector) output(name string, args ...string) ([]byte, error) {
	timeout := d.timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := d.run(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return out, nil
}

// GetFocusedWindow returns information about the currently focused window
func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	var (
		info *window.WindowInfo
		err  error
		out  []byte
	)
	switch d.compositor {
	case CompositorSway:
		if out, err = d.output("swaymsg", "-t", "get_tree", "-r"); err == nil {
			info, err = parseSwayTree(out)
		}
	case CompositorHyprland:
		if out, err = d.output("hyprctl", "activewindow", "-j"); err == nil {
			info, err = parseHyprlandWindow(out)
		}
	case CompositorGnome:
		if out, err = d.output("gdbus", "call", "--session",
			"--dest", "org.gnome.Shell",
			"--object-path", "/org/gnome/Shell",
			"--method", "org.gnome.Shell.Eval",
			gnomeScript); err == nil {
			info, err = parseGnomeEval(out)
		}
	default:
		return nil, fmt.Errorf("unsupported wayland compositor: %s", d.compositor)
	}
	if err != nil {
		return nil, err
	}

	info.DisplayServer = window.DisplayWayland
	if info.PID != 0 {
		if p, err := process.NewProcess(int32(info.PID)); err == nil {
			if name, err := p.Name(); err == nil {
				info.ProcessName = name
			}
		}
	}
	return info, nil
}

// GetIdleInfo reads the logind idle and lock hints of the current session.
// Idle is zero unless the session reports IdleHint=yes.
func (d *Detector) GetIdleInfo() (*window.IdleInfo, error) {
	args := []string{"show-session"}
	if id := os.Getenv("XDG_SESSION_ID"); id != "" {
		args = append(args, id)
	}
	args = append(args, "-p", "IdleHint", "-p", "IdleSinceHint", "-p", "LockedHint")

	out, err := d.output("loginctl", args...)
	if err != nil {
		return nil, err
	}
	info := parseLogindHints(string(out), d.now())
	info.IsIdle = d.idleThreshold > 0 && info.Idle >= d.idleThreshold
	return info, nil
}

// Close cleans up resources
func (d *Detector) Close() error {
	return nil
}

type swayNode struct {
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	Focused       bool       `json:"focused"`
	AppID         string     `json:"app_id"`
	PID           uint32     `json:"pid"`
	WindowProps   *swayProps `json:"window_properties"`
	Nodes         []swayNode `json:"nodes"`
	FloatingNodes []swayNode `json:"floating_nodes"`
}

type swayProps struct {
	Class    string `json:"class"`
	Instance string `json:"instance"`
}

func (n *swayNode) find() *swayNode {
	if n.Focused && (n.Type == "con" || n.Type == "floating_con") {
		return n
	}
	for i := range n.Nodes {
		if f := n.Nodes[i].find(); f != nil {
			return f
		}
	}
	for i := range n.FloatingNodes {
		if f := n.FloatingNodes[i].find(); f != nil {
			return f
		}
	}
	return nil
}

// parseSwayTree walks `swaymsg -t get_tree` output for the focused view.
// XWayland clients carry their class in window_properties instead of app_id.
func parseSwayTree(data []byte) (*window.WindowInfo, error) {
	var root swayNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse sway tree: %w", err)
	}
	node := root.find()
	if node == nil {
		return nil, errors.New("no focused window in sway tree")
	}

	app := node.AppID
	if app == "" && node.WindowProps != nil {
		app = node.WindowProps.Class
	}
	return &window.WindowInfo{
		AppName:     app,
		WindowTitle: node.Name,
		PID:         node.PID,
	}, nil
}

type hyprWindow struct {
	Class string `json:"class"`
	Title string `json:"title"`
	PID   int64  `json:"pid"`
}

// parseHyprlandWindow parses `hyprctl activewindow -j`. Hyprland prints
// an empty object when nothing is focused.
func parseHyprlandWindow(data []byte) (*window.WindowInfo, error) {
	var w hyprWindow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse hyprctl output: %w", err)
	}
	if w.Class == "" && w.Title == "" {
		return nil, errors.New("no focused window in hyprland")
	}
	info := &window.WindowInfo{AppName: w.Class, WindowTitle: w.Title}
	if w.PID > 0 {
		info.PID = uint32(w.PID)
	}
	return info, nil
}

const gnomeScript = `
	let fw = global.display.get_focus_window();
	fw ? JSON.stringify({
		wm_class: fw.get_wm_class() || '',
		title: fw.get_title() || '',
		pid: fw.get_pid() || 0
	}) : '';
`

type gnomeWindow struct {
	WMClass string `json:"wm_class"`
	Title   string `json:"title"`
	PID     int64  `json:"pid"`
}

// parseGnomeEval decodes the (bool, 'json') tuple printed by gdbus for
// org.gnome.Shell.Eval. Newer shells reject Eval outside unsafe mode and
// answer (false, '').
func parseGnomeEval(data []byte) (*window.WindowInfo, error) {
	out := strings.TrimSpace(string(data))
	if strings.HasPrefix(out, "(false") {
		return nil, errors.New("org.gnome.Shell.Eval is disabled")
	}
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start == -1 || end < start {
		return nil, errors.New("no focused window in gnome shell")
	}
	payload := strings.ReplaceAll(out[start:end+1], `\"`, `"`)

	var w gnomeWindow
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("failed to parse gnome shell output: %w", err)
	}
	info := &window.WindowInfo{AppName: w.WMClass, WindowTitle: w.Title}
	if w.PID > 0 {
		info.PID = uint32(w.PID)
	}
	return info, nil
}

// parseLogindHints reads `loginctl show-session -p ...` key=value lines.
// IdleSinceHint is microseconds since the epoch.
func parseLogindHints(out string, now time.Time) *window.IdleInfo {
	info := &window.IdleInfo{}
	var idle bool
	var since int64
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "IdleHint":
			idle = value == "yes"
		case "LockedHint":
			info.IsLocked = value == "yes"
		case "IdleSinceHint":
			since, _ = strconv.ParseInt(value, 10, 64)
		}
	}
	if idle && since > 0 {
		if d := now.Sub(time.UnixMicro(since)); d > 0 {
			info.Idle = d
		}
	}
	return info
}
