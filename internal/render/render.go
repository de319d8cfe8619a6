// Package render turns a snapshot and its delta into notification text.
//
// Rendering is pure: the same input always yields byte-identical output.
package render

import (
	"strconv"
	"strings"

	"trendwatch/internal/trend"
)

const (
	// QuietText is sent to quiet/log channels when nothing changed.
	QuietText = "(No Change) Trending list unchanged."

	markNew  = "🆕"
	markUp   = "⬆"
	markDown = "⬇"
)

// Options controls rendering policy.
type Options struct {
	Mode Mode
	// ShowChange appends the source's percentage change to each line when present.
	ShowChange bool
}

// Rendered is the output of one render call.
type Rendered struct {
	Broadcast string
	Quiet     string
	// ParseMode must be passed to the sender together with Broadcast.
	ParseMode string
}

type Renderer struct {
	opt Options
	mk  markup
}

func New(opt Options) *Renderer {
	if opt.Mode != ModePlain {
		opt.Mode = ModeHTML
	}
	return &Renderer{opt: opt, mk: markup{mode: opt.Mode}}
}

func (r *Renderer) Mode() Mode { return r.opt.Mode }

// Render formats current (in rank order) with entered and moved entries
// flagged, followed by a summary of each change.
func (r *Renderer) Render(current trend.Snapshot, delta trend.Delta) Rendered {
	var b strings.Builder
	for i := 0; i < current.Len(); i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		r.writeLine(&b, current.At(i), delta)
	}

	if summary := r.summary(delta); summary != "" {
		b.WriteString("\n\n")
		b.WriteString(summary)
	}

	return Rendered{
		Broadcast: b.String(),
		Quiet:     QuietText,
		ParseMode: r.opt.Mode.ParseMode(),
	}
}

// List formats current without any change markers.
func (r *Renderer) List(current trend.Snapshot) string {
	return r.Render(current, trend.Delta{}).Broadcast
}

func (r *Renderer) writeLine(b *strings.Builder, it trend.RankedItem, delta trend.Delta) {
	k := it.Key()
	line := "[" + strconv.Itoa(it.Rank) + "] " + r.mk.esc(k.String())
	if r.opt.ShowChange && it.ChangePct != nil {
		line += " " + formatPct(*it.ChangePct)
	}

	marker := ""
	if delta.HasEntered(k) {
		marker = markNew
	} else if mv, ok := delta.RankChanged[k]; ok {
		marker = markDown
		if mv.Up() {
			marker = markUp
		}
	}
	if marker == "" {
		b.WriteString(line)
		return
	}
	b.WriteString(r.mk.bold(line))
	b.WriteByte(' ')
	b.WriteString(marker)
}

func (r *Renderer) summary(delta trend.Delta) string {
	if delta.IsEmpty() {
		return ""
	}
	lines := []string{r.mk.bold("Changes:")}
	for _, k := range delta.Entered {
		lines = append(lines, "• "+r.mk.esc(k.String())+": new entry")
	}
	for _, k := range delta.Movers() {
		mv := delta.RankChanged[k]
		lines = append(lines, "• "+r.mk.esc(k.String())+": #"+strconv.Itoa(mv.Old)+" → #"+strconv.Itoa(mv.New))
	}
	for _, k := range delta.Left {
		line := "• " + r.mk.esc(k.String()) + ": dropped out"
		if old := delta.LeftRank[k]; old > 0 {
			line += " (was #" + strconv.Itoa(old) + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatPct(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if v >= 0 {
		s = "+" + s
	}
	return s + "%"
}
