package display

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/proofer/internal/control"
)

func TestLines(t *testing.T) {
	tests := []struct {
		name      string
		st        Status
		wantLine1 string
		wantLine2 string
	}{
		{
			"heating",
			Status{Target: 27.5, Current: 26.9, HeaterOn: true, PumpOn: true, ElapsedMinutes: 42},
			"Set 27.5 Is 26.9",
			"HEAT PUMP    42m",
		},
		{
			"idle",
			Status{Target: 20, Current: 21.25, PumpOn: true},
			"Set 20.0 Is 21.2",
			"---- PUMP     0m",
		},
		{
			"all off long run",
			Status{Target: 35, Current: 34.75, ElapsedMinutes: 721},
			"Set 35.0 Is 34.8",
			"---- ----   721m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line1, line2 := Lines(tt.st)
			if line1 != tt.wantLine1 {
				t.Errorf("line1: got %q, want %q", line1, tt.wantLine1)
			}
			if line2 != tt.wantLine2 {
				t.Errorf("line2: got %q, want %q", line2, tt.wantLine2)
			}
			if len(line1) != Columns || len(line2) != Columns {
				t.Errorf("lines must be %d columns: %d, %d", Columns, len(line1), len(line2))
			}
		})
	}
}

func TestFit(t *testing.T) {
	if got := fit("E2 heater time"); got != "E2 heater time  " {
		t.Errorf("pad: got %q", got)
	}
	if got := fit("this line is far too long"); got != "this line is far" {
		t.Errorf("truncate: got %q", got)
	}
}

func TestFromControl(t *testing.T) {
	st := FromControl(control.Status{
		Target:  30,
		Current: 29.5,
		Heater:  control.StateOff,
		Pump:    control.StateOn,
		Elapsed: 90*time.Minute + 59*time.Second,
	})

	want := Status{Target: 30, Current: 29.5, HeaterOn: false, PumpOn: true, ElapsedMinutes: 90}
	if st != want {
		t.Errorf("got %+v, want %+v", st, want)
	}
}

func TestTerminalRender(t *testing.T) {
	var buf bytes.Buffer
	d := NewTerminal(&buf)

	if err := d.Render(Status{Target: 27.5, Current: 26.9, HeaterOn: true, PumpOn: true, ElapsedMinutes: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "\x1b[H\x1b[2J") {
		t.Error("expected clear-screen prefix")
	}
	for _, want := range []string{"Set 27.5 Is 26.9", "HEAT PUMP     3m"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTerminalAlert(t *testing.T) {
	var buf bytes.Buffer
	d := NewTerminal(&buf)

	if err := d.Alert(control.HaltedHeader, control.OverTemperature.Code()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"System halted", "E3 over temp"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestTerminalWriteError(t *testing.T) {
	d := NewTerminal(failWriter{})
	if err := d.Render(Status{}); err == nil {
		t.Error("expected error from failing writer")
	}
}

func TestPlain(t *testing.T) {
	var buf bytes.Buffer
	d := NewPlain(&buf)

	d.Render(Status{Target: 25, Current: 24.5, PumpOn: true, ElapsedMinutes: 7})
	d.Alert("System halted", "E1 sensor")

	want := "Set 25.0 Is 24.5 | ---- PUMP     7m\n" +
		"System halted    | E1 sensor       \n"
	if buf.String() != want {
		t.Errorf("got:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestFakeDisplay(t *testing.T) {
	var d Display = &FakeDisplay{}
	fd := d.(*FakeDisplay)

	d.Render(Status{Target: 25})
	d.Alert("System halted", "E4 run time")

	if len(fd.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(fd.Frames))
	}
	if fd.Alerts() != 1 {
		t.Errorf("expected 1 alert, got %d", fd.Alerts())
	}
	if last := fd.Last(); !last.Alert || last.Line2 != "E4 run time" {
		t.Errorf("unexpected last frame: %+v", last)
	}

	fd.RenderError = errors.New("bus error")
	if err := d.Render(Status{}); err == nil {
		t.Error("expected RenderError")
	}
}
