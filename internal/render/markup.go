package render

import "html"

// Mode selects the markup used for flagged entries.
type Mode string

const (
	ModeHTML  Mode = "html"
	ModePlain Mode = "plain"
)

// ParseMode is the transport parse mode matching m ("HTML" or "" for plain).
func (m Mode) ParseMode() string {
	if m == ModeHTML {
		return "HTML"
	}
	return ""
}

// markup escapes and emphasizes text for one Mode.
type markup struct{ mode Mode }

func (m markup) esc(s string) string {
	if m.mode == ModeHTML {
		return html.EscapeString(s)
	}
	return s
}

// bold wraps already-escaped text.
func (m markup) bold(s string) string {
	if m.mode == ModeHTML {
		return "<b>" + s + "</b>"
	}
	return s
}
