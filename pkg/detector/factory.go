package detector

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ownmon/ownmon/pkg/integrations/wayland"
	"github.com/ownmon/ownmon/pkg/integrations/x11"
	"github.com/ownmon/ownmon/pkg/window"
)

// ErrNoDisplay is returned when neither a Wayland compositor nor an X
// server can be reached.
var ErrNoDisplay = errors.New("no supported display server found")

// New returns the detector for the running session. On Wayland it falls
// back to XWayland when the compositor has no supported IPC tool, which
// still reports X clients correctly. pollInterval bounds the compositor
// helper calls; zero suits one-shot probes.
func New(idleThreshold, pollInterval time.Duration) (window.Detector, error) {
	return newDetector(os.Getenv, idleThreshold,
		func(d time.Duration) window.Detector {
			det := wayland.NewDetector(d)
			det.SetCommandTimeout(wayland.TimeoutForPoll(pollInterval))
			return det
		},
		func(d time.Duration) (window.Detector, error) { return x11.NewDetector(d) },
	)
}

func newDetector(
	getenv func(string) string,
	idleThreshold time.Duration,
	newWayland func(time.Duration) window.Detector,
	newX11 func(time.Duration) (window.Detector, error),
) (window.Detector, error) {
	server := detectDisplayServer(getenv)

	var waylandErr error
	if server == window.DisplayWayland {
		det := newWayland(idleThreshold)
		if det.IsAvailable() {
			return det, nil
		}
		det.Close()
		waylandErr = errors.New("wayland compositor without supported IPC tool")
	}

	if getenv("DISPLAY") != "" {
		det, err := newX11(idleThreshold)
		if err == nil {
			return det, nil
		}
		if waylandErr != nil {
			return nil, fmt.Errorf("%v; xwayland: %w", waylandErr, err)
		}
		return nil, err
	}

	if waylandErr != nil {
		return nil, waylandErr
	}
	return nil, ErrNoDisplay
}

// DetectDisplayServer reports "wayland", "x11" or "unknown" from the
// session environment.
func DetectDisplayServer() string {
	return detectDisplayServer(os.Getenv)
}

func detectDisplayServer(getenv func(string) string) string {
	sessionType := getenv("XDG_SESSION_TYPE")

	if sessionType == "wayland" || getenv("WAYLAND_DISPLAY") != "" {
		return window.DisplayWayland
	}
	if sessionType == "x11" || getenv("DISPLAY") != "" {
		return window.DisplayX11
	}
	return "unknown"
}
