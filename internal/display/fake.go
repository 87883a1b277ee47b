package display

// Frame is one recorded panel update.
type Frame struct {
	Line1, Line2 string
	Alert        bool
}

// FakeDisplay records frames for test assertions.
type FakeDisplay struct {
	Frames []Frame

	// RenderError, if set, will be returned by Render and Alert.
	RenderError error
}

// Render records the formatted status lines.
func (f *FakeDisplay) Render(st Status) error {
	if f.RenderError != nil {
		return f.RenderError
	}
	line1, line2 := Lines(st)
	f.Frames = append(f.Frames, Frame{Line1: line1, Line2: line2})
	return nil
}

// Alert records the message.
func (f *FakeDisplay) Alert(line1, line2 string) error {
	if f.RenderError != nil {
		return f.RenderError
	}
	f.Frames = append(f.Frames, Frame{Line1: line1, Line2: line2, Alert: true})
	return nil
}

// Last returns the most recent frame, or the zero Frame.
func (f *FakeDisplay) Last() Frame {
	if len(f.Frames) == 0 {
		return Frame{}
	}
	return f.Frames[len(f.Frames)-1]
}

// Alerts returns the number of alert frames recorded.
func (f *FakeDisplay) Alerts() int {
	n := 0
	for _, fr := range f.Frames {
		if fr.Alert {
			n++
		}
	}
	return n
}
