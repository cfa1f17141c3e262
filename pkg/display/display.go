// Package display defines the surface-independent event vocabulary the
// engine emits while a run executes. Rendering differs per surface (the
// terminal draws, the socket server serializes frames) but the events
// are the same.
package display

// Display receives engine output events. Emit is fire-and-forget: the
// engine never waits on rendering and never sees rendering errors.
type Display interface {
	Emit(Event)
}

// Event is one unit of engine output.
type Event interface {
	eventKind() string
}

// Text is a plain body of output. Markdown bodies may be rendered
// richly where the surface supports it.
type Text struct {
	Body     string `json:"body"`
	Markdown bool   `json:"markdown,omitempty"`
}

// Header introduces a section of output.
type Header struct {
	Title string `json:"title"`
}

// ErrorNotice is a short header + reason + hint triple shown for
// denials and structural errors. Full diagnostics never travel through
// it — those go to the log.
type ErrorNotice struct {
	Header string `json:"header"`
	Reason string `json:"reason"`
	Hint   string `json:"hint,omitempty"`
}

// Menu presents an ordered set of selectable options.
type Menu struct {
	Title     string   `json:"title,omitempty"`
	Crumb     string   `json:"crumb,omitempty"` // flattened "A > B > C" banner
	Options   []Option `json:"options"`
	AllowBack bool     `json:"allow_back"`
}

// Option is one selectable menu entry.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Dialog asks for a set of input fields.
type Dialog struct {
	Prompt string  `json:"prompt,omitempty"`
	Fields []Field `json:"fields"`
}

// Field is one dialog input.
type Field struct {
	Name    string `json:"name"`
	Prompt  string `json:"prompt,omitempty"`
	Default string `json:"default,omitempty"`
	Secret  bool   `json:"secret,omitempty"`
}

func (Text) eventKind() string        { return "text" }
func (Header) eventKind() string      { return "header" }
func (ErrorNotice) eventKind() string { return "error" }
func (Menu) eventKind() string        { return "menu" }
func (Dialog) eventKind() string      { return "dialog" }

// Kind returns the wire tag for an event.
func Kind(e Event) string {
	return e.eventKind()
}

// Null is a Display that discards everything. Useful in tests and for
// headless runs.
type Null struct{}

func (Null) Emit(Event) {}
