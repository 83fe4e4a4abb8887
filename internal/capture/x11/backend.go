// Package x11 is the X11 capture backend: focused-window lookup through
// EWMH properties and idle time through the MIT-SCREEN-SAVER extension.
package x11

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"

	"github.com/ChitranshGuha/system-tracker-sqlite-sub000/internal/capture"
)

// Backend polls the X server for the focused window and system idle time.
type Backend struct {
	conn *xgb.Conn
	root xproto.Window

	activeWindowAtom xproto.Atom
	wmNameAtom       xproto.Atom

	hasScreensaver bool
}

// New connects to the X server named by DISPLAY.
func New() (*Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connecting to X server: %w", err)
	}

	b := &Backend{
		conn: conn,
		root: xproto.Setup(conn).DefaultScreen(conn).Root,
	}

	if b.activeWindowAtom, err = b.atom("_NET_ACTIVE_WINDOW"); err != nil {
		conn.Close()
		return nil, err
	}
	if b.wmNameAtom, err = b.atom("_NET_WM_NAME"); err != nil {
		conn.Close()
		return nil, err
	}

	// Idle time is optional; without the extension IdleFor stays zero.
	if err := screensaver.Init(conn); err == nil {
		b.hasScreensaver = true
	}

	return b, nil
}

// Poll reads the focused window and idle time.
func (b *Backend) Poll(ctx context.Context) (capture.Sample, error) {
	sample := capture.Sample{At: time.Now()}

	window, err := b.activeWindow()
	if err != nil {
		return capture.Sample{}, err
	}
	if window != 0 {
		sample.Title = b.windowTitle(window)
		sample.App = b.windowClass(window)
		if sample.App == "" {
			sample.App = sample.Title
		}
	}

	if b.hasScreensaver {
		info, err := screensaver.QueryInfo(b.conn, xproto.Drawable(b.root)).Reply()
		if err == nil {
			sample.IdleFor = time.Duration(info.MsSinceUserInput) * time.Millisecond
		}
	}

	return sample, nil
}

// Close disconnects from the X server.
func (b *Backend) Close() error {
	b.conn.Close()
	return nil
}

func (b *Backend) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(b.conn, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("interning atom %s: %w", name, err)
	}
	return reply.Atom, nil
}

func (b *Backend) activeWindow() (xproto.Window, error) {
	prop, err := xproto.GetProperty(b.conn, false, b.root, b.activeWindowAtom,
		xproto.GetPropertyTypeAny, 0, 1).Reply()
	if err != nil {
		return 0, fmt.Errorf("reading active window: %w", err)
	}
	if len(prop.Value) < 4 {
		return 0, nil
	}
	return xproto.Window(xgb.Get32(prop.Value)), nil
}

func (b *Backend) windowTitle(window xproto.Window) string {
	prop, err := xproto.GetProperty(b.conn, false, window, b.wmNameAtom,
		xproto.GetPropertyTypeAny, 0, 256).Reply()
	if err != nil || len(prop.Value) == 0 {
		// Fall back to the legacy WM_NAME property.
		prop, err = xproto.GetProperty(b.conn, false, window, xproto.AtomWmName,
			xproto.GetPropertyTypeAny, 0, 256).Reply()
		if err != nil {
			return ""
		}
	}
	return string(prop.Value)
}

// windowClass returns the application class from WM_CLASS, which holds two
// null-terminated strings: instance and class.
func (b *Backend) windowClass(window xproto.Window) string {
	prop, err := xproto.GetProperty(b.conn, false, window, xproto.AtomWmClass,
		xproto.GetPropertyTypeAny, 0, 256).Reply()
	if err != nil || len(prop.Value) == 0 {
		return ""
	}

	parts := bytes.Split(prop.Value, []byte{0})
	if len(parts) >= 2 && len(parts[1]) > 0 {
		return string(parts[1])
	}
	if len(parts[0]) > 0 {
		return string(parts[0])
	}
	return ""
}
