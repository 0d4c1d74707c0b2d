// Package input counts keyboard and mouse events from Linux evdev devices.
// Only event kinds are counted; key codes are never retained.
package input

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrNoDevices is returned by Open when no input device could be opened.
var ErrNoDevices = errors.New("no input devices available")

// Counter receives one call per counted event. activity.Counters satisfies it.
type Counter interface {
	AddKeystroke()
	AddClick()
	AddScroll()
}

// Hooks owns the opened device files and their reader goroutines.
type Hooks struct {
	files []*os.File
	wg    sync.WaitGroup
	once  sync.Once
	live  atomic.Int32

	mu   sync.Mutex
	errs []error
}

// Open starts one reader per device path. With no paths, keyboards and
// pointers are discovered from /proc/bus/input/devices. Devices that fail
// to open are skipped; Open fails only when none could be opened.
func Open(counter Counter, paths []string) (*Hooks, error) {
	if len(paths) == 0 {
		var err error
		if paths, err = Discover(procDevices); err != nil {
			return nil, err
		}
	}

	h := &Hooks{}
	var lastErr error
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			lastErr = err
			continue
		}
		h.files = append(h.files, f)
	}
	if len(h.files) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoDevices, lastErr)
		}
		return nil, ErrNoDevices
	}

	for _, f := range h.files {
		h.wg.Add(1)
		h.live.Add(1)
		go h.read(f, counter)
	}
	return h, nil
}

// Devices returns the opened device paths.
func (h *Hooks) Devices() []string {
	names := make([]string, len(h.files))
	for i, f := range h.files {
		names[i] = f.Name()
	}
	return names
}

// Alive returns the number of readers still running. It drops to zero
// when every device went away, for example after an unplug or a resume
// that invalidated the device nodes.
func (h *Hooks) Alive() int {
	return int(h.live.Load())
}

// Errors returns read errors of readers that stopped before Close.
func (h *Hooks) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

// Close closes every device, which unblocks the readers, and waits for
// them to exit. It is safe to call more than once.
func (h *Hooks) Close() error {
	var err error
	h.once.Do(func() {
		for _, f := range h.files {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		h.wg.Wait()
	})
	return err
}

func (h *Hooks) read(r io.Reader, counter Counter) {
	defer h.wg.Done()
	defer h.live.Add(-1)
	if err := Pump(r, counter); err != nil && !errors.Is(err, os.ErrClosed) {
		h.mu.Lock()
		h.errs = append(h.errs, err)
		h.mu.Unlock()
	}
}

// Linux input_event on 64-bit: struct timeval (16 bytes), type, code, value.
const eventSize = 24

const (
	evKey = 0x01
	evRel = 0x02

	relHWheel = 0x06
	relWheel  = 0x08

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112

	keyMax = 0x100 // keyboard keys live below the button range

	keyPress = 1
)

// Pump decodes events from r until it fails, counting key presses,
// left/right/middle button presses and wheel steps. Autorepeat (value 2)
// and releases are ignored.
func Pump(r io.Reader, counter Counter) error {
	buf := make([]byte, eventSize*64)
	var carry int
	for {
		n, err := r.Read(buf[carry:])
		n += carry
		full := n - n%eventSize
		for off := 0; off < full; off += eventSize {
			dispatch(buf[off:off+eventSize], counter)
		}
		carry = copy(buf, buf[full:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func dispatch(ev []byte, counter Counter) {
	typ := binary.LittleEndian.Uint16(ev[16:18])
	code := binary.LittleEndian.Uint16(ev[18:20])
	value := int32(binary.LittleEndian.Uint32(ev[20:24]))

	switch typ {
	case evKey:
		if value != keyPress {
			return
		}
		switch {
		case code < keyMax:
			counter.AddKeystroke()
		case code == btnLeft, code == btnRight, code == btnMiddle:
			counter.AddClick()
		}
	case evRel:
		if (code == relWheel || code == relHWheel) && value != 0 {
			counter.AddScroll()
		}
	}
}

const procDevices = "/proc/bus/input/devices"

// Discover lists event device nodes for keyboards and relative pointers
// from a /proc/bus/input/devices style listing.
func Discover(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input device list: %w", err)
	}
	defer f.Close()
	return parseDevices(f, "/dev/input")
}

func parseDevices(r io.Reader, dir string) ([]string, error) {
	var (
		out      []string
		handlers []string
		ev       uint64
	)
	flush := func() {
		event, kbd, mouse := "", false, false
		for _, h := range handlers {
			switch {
			case strings.HasPrefix(h, "event"):
				event = h
			case h == "kbd":
				kbd = true
			case strings.HasPrefix(h, "mouse"):
				mouse = true
			}
		}
		hasKey := ev&(1<<evKey) != 0
		hasRel := ev&(1<<evRel) != 0
		if event != "" && ((kbd && hasKey) || (mouse && hasRel)) {
			out = append(out, filepath.Join(dir, event))
		}
		handlers, ev = nil, 0
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "H: Handlers="):
			handlers = strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
		case strings.HasPrefix(line, "B: EV="):
			ev, _ = strconv.ParseUint(strings.TrimPrefix(line, "B: EV="), 16, 64)
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
