package x11

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"
	"github.com/shirou/gopsutil/process"

	"github.com/ownmon/ownmon/pkg/window"
)

// ErrNoActiveWindow is returned when neither _NET_ACTIVE_WINDOW nor the
// input focus resolve to a named top-level window.
var ErrNoActiveWindow = errors.New("no active x11 window")

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

// Detector implements window.Detector for X11 over a single persistent
// connection to the display.
type Detector struct {
	mu            sync.Mutex
	conn          *xgb.Conn
	root          xproto.Window
	atoms         map[string]xproto.Atom
	hasScreensave bool
	idleThreshold time.Duration
	names         map[uint32]string
}

// NewDetector connects to $DISPLAY. idleThreshold decides IdleInfo.IsIdle;
// zero disables the flag.
func NewDetector(idleThreshold time.Duration) (*Detector, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	d := &Detector{
		conn:          conn,
		root:          xproto.Setup(conn).DefaultScreen(conn).Root,
		atoms:         make(map[string]xproto.Atom, len(atomNames)),
		idleThreshold: idleThreshold,
		names:         make(map[uint32]string),
	}

	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		d.atoms[name] = reply.Atom
	}

	d.hasScreensave = screensaver.Init(conn) == nil
	return d, nil
}

// IsAvailable reports whether the connection is open
func (d *Detector) IsAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// GetDisplayServer returns "x11"
func (d *Detector) GetDisplayServer() string {
	return window.DisplayX11
}

// GetFocusedWindow returns information about the currently focused window
func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil, errors.New("x11 detector closed")
	}

	win, err := d.activeWindow()
	if err != nil {
		return nil, err
	}

	instance, class := d.windowClass(win)
	app := class
	if app == "" {
		app = instance
	}
	pid := d.windowPID(win)

	return &window.WindowInfo{
		AppName:       app,
		WindowTitle:   d.windowName(win),
		ProcessName:   d.processName(pid),
		PID:           pid,
		DisplayServer: window.DisplayX11,
	}, nil
}

// GetIdleInfo reads the time since last input from the MIT-SCREEN-SAVER
// extension. A running screen saver is reported as locked.
func (d *Detector) GetIdleInfo() (*window.IdleInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil, errors.New("x11 detector closed")
	}
	if !d.hasScreensave {
		return nil, errors.New("MIT-SCREEN-SAVER extension not available")
	}

	reply, err := screensaver.QueryInfo(d.conn, xproto.Drawable(d.root)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query screensaver info: %w", err)
	}

	idle := time.Duration(reply.MsSinceUserInput) * time.Millisecond
	return &window.IdleInfo{
		IsIdle:   d.idleThreshold > 0 && idle >= d.idleThreshold,
		IsLocked: reply.State == screensaver.StateOn,
		Idle:     idle,
	}, nil
}

// Close cleans up resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	return nil
}

func (d *Detector) property(win xproto.Window, atom, typ xproto.Atom, length uint32) []byte {
	reply, err := xproto.GetProperty(d.conn, false, win, atom, typ, 0, length).Reply()
	if err != nil || reply == nil {
		return nil
	}
	return reply.Value
}

func (d *Detector) activeWindow() (xproto.Window, error) {
	win := decodeWindow(d.property(d.root, d.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1))
	if win != 0 && d.hasName(win) {
		return win, nil
	}

	// Window managers without EWMH support leave only the input focus.
	focus, err := xproto.GetInputFocus(d.conn).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to get input focus: %w", err)
	}
	if focus.Focus == 0 || focus.Focus == d.root {
		return 0, ErrNoActiveWindow
	}
	top := d.topLevel(focus.Focus)
	if !d.hasName(top) {
		return 0, ErrNoActiveWindow
	}
	return top, nil
}

func (d *Detector) topLevel(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(d.conn, win).Reply()
		if err != nil || reply.Parent == d.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

func (d *Detector) hasName(win xproto.Window) bool {
	if len(d.property(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], 1)) > 0 {
		return true
	}
	return len(d.property(win, d.atoms["WM_NAME"], xproto.AtomString, 1)) > 0
}

func (d *Detector) windowName(win xproto.Window) string {
	if data := d.property(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], 256); len(data) > 0 {
		return trimNul(data)
	}
	return trimNul(d.property(win, d.atoms["WM_NAME"], xproto.AtomString, 256))
}

func (d *Detector) windowClass(win xproto.Window) (instance, class string) {
	return parseWMClass(d.property(win, d.atoms["WM_CLASS"], xproto.AtomString, 256))
}

func (d *Detector) windowPID(win xproto.Window) uint32 {
	data := d.property(win, d.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)
	if len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

// processName resolves pid via /proc, caching hits. The cache is dropped
// when it grows past a few hundred entries since pids get reused.
func (d *Detector) processName(pid uint32) string {
	if pid == 0 {
		return ""
	}
	if name, ok := d.names[pid]; ok {
		return name
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ""
	}
	name, err := p.Name()
	if err != nil {
		return ""
	}
	if len(d.names) > 512 {
		d.names = make(map[uint32]string)
	}
	d.names[pid] = name
	return name
}

func decodeWindow(data []byte) xproto.Window {
	if len(data) < 4 {
		return 0
	}
	return xproto.Window(binary.LittleEndian.Uint32(data))
}

func trimNul(data []byte) string {
	return strings.TrimRight(string(data), "\x00")
}

// parseWMClass splits the NUL separated instance and class of WM_CLASS.
func parseWMClass(data []byte) (instance, class string) {
	parts := strings.Split(trimNul(data), "\x00")
	if len(parts) >= 1 {
		instance = parts[0]
	}
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}
