package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/skycast/internal/app"
	"github.com/kjstillabower/skycast/internal/models"
)

// controller is the part of app.Controller the terminal drives.
type controller interface {
	Refresh(ctx context.Context) error
	SelectLocation(ctx context.Context, loc models.Location) error
	SelectSaved(ctx context.Context, id string) (bool, error)
	SaveActive(ctx context.Context) bool
	RemoveSaved(ctx context.Context, id string)
	SetUnits(ctx context.Context, units models.UnitSystem) error
	SetView(ctx context.Context, view models.View)
	ToggleTheme(ctx context.Context) models.Theme
	EnableNotifications(ctx context.Context, enable bool) (bool, error)
	Search(query string)
	Snapshot(ctx context.Context) app.View
}

// terminalTheme applies light/dark as ANSI styling for headings.
type terminalTheme struct {
	mu    sync.Mutex
	theme models.Theme
}

func (t *terminalTheme) ApplyTheme(th models.Theme) {
	t.mu.Lock()
	t.theme = th
	t.mu.Unlock()
}

func (t *terminalTheme) heading(s string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.theme == models.ThemeDark {
		return "\x1b[1;97;100m " + s + " \x1b[0m"
	}
	return "\x1b[1m" + s + "\x1b[0m"
}

const helpText = `commands:
  search <text>       find places (results appear as you type)
  pick <n>            show search result n
  saved               list saved locations
  open <n>            show saved location n
  save                save the current location
  remove <n>          remove saved location n
  units metric|imperial
  view hourly|daily
  theme               toggle light/dark
  notify on|off       alert notifications
  refresh             refetch weather and alerts
  show                redraw
  quit`

type repl struct {
	in    io.Reader
	theme *terminalTheme
	ctrl  controller

	mu  sync.Mutex
	out io.Writer
}

func newREPL(in io.Reader, out io.Writer, theme *terminalTheme) *repl {
	return &repl{in: in, out: out, theme: theme}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// Run reads commands until quit, EOF or ctx is done.
func (r *repl) Run(ctx context.Context) error {
	r.render(ctx)
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		r.printf("> ")
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if quit := r.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// exec runs one command line and reports whether the user asked to quit.
func (r *repl) exec(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "":
	case "quit", "exit", "q":
		return true
	case "help", "?":
		r.printf("%s\n", helpText)
	case "search", "s":
		r.ctrl.Search(arg)
	case "pick":
		v := r.ctrl.Snapshot(ctx)
		loc, ok := pickIndex(v.Results, arg)
		if !ok {
			r.printf("no search result %q\n", arg)
			return false
		}
		r.ctrl.Search("")
		r.refreshed(r.ctrl.SelectLocation(ctx, loc))
		r.render(ctx)
	case "saved":
		r.renderSaved(r.ctrl.Snapshot(ctx))
	case "open":
		loc, ok := pickIndex(r.ctrl.Snapshot(ctx).Saved, arg)
		if !ok {
			r.printf("no saved location %q\n", arg)
			return false
		}
		_, err := r.ctrl.SelectSaved(ctx, loc.ID)
		r.refreshed(err)
		r.render(ctx)
	case "save":
		if r.ctrl.SaveActive(ctx) {
			r.printf("saved\n")
		} else {
			r.printf("nothing to save\n")
		}
	case "remove", "rm":
		loc, ok := pickIndex(r.ctrl.Snapshot(ctx).Saved, arg)
		if !ok {
			r.printf("no saved location %q\n", arg)
			return false
		}
		r.ctrl.RemoveSaved(ctx, loc.ID)
		r.printf("removed %s\n", loc.Name)
	case "units":
		units, err := models.ParseUnitSystem(arg)
		if err != nil {
			r.printf("%v\n", err)
			return false
		}
		r.refreshed(r.ctrl.SetUnits(ctx, units))
		r.render(ctx)
	case "view":
		view, err := models.ParseView(arg)
		if err != nil {
			r.printf("%v\n", err)
			return false
		}
		r.ctrl.SetView(ctx, view)
		r.render(ctx)
	case "theme":
		r.printf("theme: %s\n", r.ctrl.ToggleTheme(ctx))
	case "notify":
		enabled, err := r.ctrl.EnableNotifications(ctx, arg == "on")
		switch {
		case errors.Is(err, models.ErrPermissionDenied):
			r.printf("notifications not allowed\n")
		case enabled:
			r.printf("notifications on\n")
		default:
			r.printf("notifications off\n")
		}
	case "refresh", "r":
		r.refreshed(r.ctrl.Refresh(ctx))
		r.render(ctx)
	case "show":
		r.render(ctx)
	default:
		r.printf("unknown command %q, try help\n", cmd)
	}
	return false
}

func (r *repl) refreshed(err error) {
	switch {
	case err == nil:
	case errors.Is(err, models.ErrStaleDataOnly):
		r.printf("offline, showing last saved data\n")
	default:
		r.printf("weather unavailable\n")
	}
}

// searchUpdated is the controller's change callback; it prints the latest results.
func (r *repl) searchUpdated() {
	if r.ctrl == nil {
		return
	}
	v := r.ctrl.Snapshot(context.Background())
	if v.Query == "" {
		return
	}
	var b strings.Builder
	if len(v.Results) == 0 {
		fmt.Fprintf(&b, "\nno places match %q\n", v.Query)
	} else {
		fmt.Fprintf(&b, "\n%s\n", r.theme.heading("results for "+v.Query))
		for i, l := range v.Results {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, l.Name)
		}
	}
	r.printf("%s", b.String())
}

func pickIndex(list []models.Location, arg string) (models.Location, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(list) {
		return models.Location{}, false
	}
	return list[n-1], true
}

func (r *repl) renderSaved(v app.View) {
	if len(v.Saved) == 0 {
		r.printf("no saved locations\n")
		return
	}
	var b strings.Builder
	b.WriteString(r.theme.heading("saved") + "\n")
	for i, l := range v.Saved {
		marker := " "
		if v.HasActive && l.ID == v.Active.ID {
			marker = "*"
		}
		fmt.Fprintf(&b, " %s%d. %s\n", marker, i+1, l.Name)
	}
	r.printf("%s", b.String())
}

func (r *repl) render(ctx context.Context) {
	r.printf("%s", renderView(r.ctrl.Snapshot(ctx), r.theme, time.Now()))
}

func unitLabels(u models.UnitSystem) (temp, wind string) {
	if u == models.UnitsImperial {
		return "°F", "mph"
	}
	return "°C", "km/h"
}

// renderView formats the current location, alert banner and forecast.
func renderView(v app.View, theme *terminalTheme, now time.Time) string {
	var b strings.Builder
	if !v.HasActive {
		b.WriteString("no location selected; search for a place (type help)\n")
		return b.String()
	}

	name := v.Active.Name
	if name == "" {
		name = v.Active.Coordinates()
	}
	if v.ActiveSaved {
		name += " ★"
	}
	b.WriteString(theme.heading(name) + "\n")
	if v.Banner != "" {
		fmt.Fprintf(&b, "! %s\n", v.Banner)
	}
	if !v.HasBundle {
		if v.Loading {
			b.WriteString("loading…\n")
		} else {
			b.WriteString("no weather data\n")
		}
		return b.String()
	}

	temp, wind := unitLabels(v.Settings.Units)
	c := v.Bundle.Current
	fmt.Fprintf(&b, "now %.1f%s  humidity %.0f%%  wind %.1f %s\n", c.Temperature, temp, c.Humidity, c.WindSpeed, wind)

	switch v.Settings.View {
	case models.ViewDaily:
		for _, d := range v.Bundle.Daily {
			fmt.Fprintf(&b, "  %s  %5.1f / %5.1f%s  rain %.1f  uv %.1f\n", d.Date, d.TMax, d.TMin, temp, d.Precipitation, d.UVIndex)
		}
	default:
		hours := v.Bundle.Hourly
		if len(hours) > 24 {
			hours = hours[:24]
		}
		for _, h := range hours {
			fmt.Fprintf(&b, "  %s  %5.1f%s  %3.0f%%  %4.1f %s\n", h.Time, h.Temperature, temp, h.Humidity, h.WindSpeed, wind)
		}
	}

	age := now.Sub(v.Bundle.UpdatedAt).Round(time.Minute)
	switch {
	case v.Loading:
		fmt.Fprintf(&b, "updated %s ago, refreshing…\n", age)
	case !v.Fresh:
		fmt.Fprintf(&b, "updated %s ago (offline)\n", age)
	default:
		fmt.Fprintf(&b, "updated %s ago\n", age)
	}
	return b.String()
}
