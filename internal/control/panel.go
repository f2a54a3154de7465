// Package control reads start/stop commands from a push-button panel on a
// serial line and reports the tracker state back to it.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/marker.tracker/internal/lifecycle"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
)

var logf = monitoring.Prefixed("panel")

// Commands is what the panel drives, normally a *lifecycle.Controller.
type Commands interface {
	Start()
	Stop()
}

// Port is the subset of serial.Port the panel needs.
type Port interface {
	io.ReadWriteCloser
}

// Panel turns lines read from a Port into controller commands. Recognised
// lines are START and STOP (case-insensitive); everything else is answered
// with an error line.
type Panel struct {
	port Port
	cmds Commands

	writeMu sync.Mutex
	closeMu sync.Mutex
	closing bool
}

// NewPanel wraps an already open port.
func NewPanel(port Port, cmds Commands) *Panel {
	return &Panel{port: port, cmds: cmds}
}

// OpenSerialPanel opens the serial device at path.
func OpenSerialPanel(path string, opts PortOptions, cmds Commands) (*Panel, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open panel %s: %w", path, err)
	}
	return NewPanel(port, cmds), nil
}

// Monitor reads commands until ctx is cancelled or the port reaches EOF.
func (p *Panel) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(p.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			if p.isClosing() {
				return nil
			}
			return fmt.Errorf("read panel: %w", err)
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if !p.isClosing() {
						return fmt.Errorf("read panel: %w", err)
					}
				default:
				}
				return nil
			}
			p.handle(line)
		}
	}
}

func (p *Panel) handle(line string) {
	cmd := strings.ToUpper(strings.TrimSpace(line))
	switch cmd {
	case "":
		return
	case "START":
		logf("start requested")
		p.cmds.Start()
	case "STOP":
		logf("stop requested")
		p.cmds.Stop()
	default:
		logf("ignoring unknown command %q", line)
		p.send("ERR unknown command")
		return
	}
	p.send("OK " + cmd)
}

// OnTransition is a lifecycle listener that tells the panel the new state,
// which the firmware shows on its status LED.
func (p *Panel) OnTransition(t lifecycle.Transition) {
	p.send("STATE " + t.To.String())
}

func (p *Panel) send(line string) {
	if p.isClosing() {
		return
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.port, line+"\n"); err != nil {
		logf("write %q: %v", line, err)
	}
}

func (p *Panel) isClosing() bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closing
}

// Close closes the port, which also ends Monitor.
func (p *Panel) Close() error {
	p.closeMu.Lock()
	if p.closing {
		p.closeMu.Unlock()
		return nil
	}
	p.closing = true
	p.closeMu.Unlock()
	err := p.port.Close()
	if errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
