package moveo

// Element types used by the widget instrumentation.
const (
	TypeScreen    = "screen"
	TypeButton    = "button"
	TypeText      = "text"
	TypeTextInput = "text_input"
	TypeScroll    = "scroll"
)

// Element actions used by the widget instrumentation.
const (
	ActionOpened   = "opened"
	ActionClosed   = "closed"
	ActionView     = "view"
	ActionClick    = "click"
	ActionChanged  = "changed"
	ActionScrolled = "scrolled"
)
