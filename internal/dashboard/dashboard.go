// Package dashboard renders a small terminal view of the live debugging
// sessions and their out-of-band event stream. It is a pure observer:
// it subscribes through the hub and never issues commands.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jesseduffield/gocui"
	"github.com/sirupsen/logrus"

	"github.com/joestump/gdb-mcp/internal/gdb"
	"github.com/joestump/gdb-mcp/internal/hub"
)

const maxEventLines = 500

// Dashboard owns the gocui instance and the event tail.
type Dashboard struct {
	manager *gdb.Manager
	hub     *hub.Hub
	log     *logrus.Entry

	mu         sync.Mutex
	events     []string
	subscribed map[string]bool
}

// New creates a dashboard over the given registry and event hub.
func New(manager *gdb.Manager, h *hub.Hub, log *logrus.Entry) *Dashboard {
	return &Dashboard{
		manager:    manager,
		hub:        h,
		log:        log,
		subscribed: make(map[string]bool),
	}
}

// Run blocks inside the gocui main loop until the user quits or the
// context is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	g, err := gocui.NewGui(gocui.NewGuiOpts{
		OutputMode:       gocui.OutputTrue,
		SupportOverlaps:  false,
		PlayRecording:    false,
		RuneReplacements: map[rune]string{},
	})
	if err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer g.Close()

	g.SetManager(gocui.ManagerFunc(d.layout))

	quit := func(*gocui.Gui, *gocui.View) error { return gocui.ErrQuit }
	if err := g.SetKeybinding("", 'q', gocui.ModNone, quit); err != nil {
		return err
	}
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		return err
	}

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.refreshLoop(tickCtx, g)

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

// refreshLoop periodically redraws and follows new sessions. The gui is
// only touched through g.Update, which is safe from other goroutines.
func (d *Dashboard) refreshLoop(ctx context.Context, g *gocui.Gui) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
			return
		case <-ticker.C:
			d.followSessions(ctx)
			g.Update(func(*gocui.Gui) error { return nil })
		}
	}
}

// followSessions subscribes to the event stream of any session seen for
// the first time.
func (d *Dashboard) followSessions(ctx context.Context) {
	for _, s := range d.manager.GetAllSessions() {
		d.mu.Lock()
		seen := d.subscribed[s.ID]
		if !seen {
			d.subscribed[s.ID] = true
		}
		d.mu.Unlock()
		if seen {
			continue
		}

		ch, unsubscribe := d.hub.Subscribe(s.ID)
		short := s.ID
		if len(short) > 8 {
			short = short[:8]
		}
		go func() {
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case line, ok := <-ch:
					if !ok {
						return
					}
					d.appendEvent(fmt.Sprintf("%s %s", short, line))
				}
			}
		}()
	}
}

func (d *Dashboard) appendEvent(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, line)
	if len(d.events) > maxEventLines {
		d.events = d.events[len(d.events)-maxEventLines:]
	}
}

// layout draws the session table on top and the event tail below it.
func (d *Dashboard) layout(g *gocui.Gui) error {
	width, height := g.Size()
	split := height / 3
	if split < 4 {
		split = 4
	}

	v, err := g.SetView("sessions", 0, 0, width-1, split, 0)
	if err != nil {
		if err.Error() != "unknown view" {
			return err
		}
		v.Title = " Sessions (q to quit) "
	}
	v.Clear()
	sessions := d.manager.GetAllSessions()
	if len(sessions) == 0 {
		fmt.Fprintln(v, "no active sessions")
	}
	for _, s := range sessions {
		age := time.Since(s.CreatedAt).Round(time.Second)
		program := s.Program
		if program == "" {
			program = "-"
		}
		fmt.Fprintf(v, "%s  %-10s  %-8s  %s\n", s.ID, s.Status, age, program)
	}

	v, err = g.SetView("events", 0, split+1, width-1, height-1, 0)
	if err != nil {
		if err.Error() != "unknown view" {
			return err
		}
		v.Title = " Events "
		v.Autoscroll = true
	}
	v.Clear()
	d.mu.Lock()
	for _, line := range d.events {
		fmt.Fprintln(v, line)
	}
	d.mu.Unlock()

	return nil
}
