// Package dispatch routes rendered notifications to channels and delivers
// them with per-channel failure isolation.
package dispatch

import (
	"fmt"
	"slices"

	"trendwatch/internal/render"
	"trendwatch/internal/transport"
)

type Role string

const (
	RoleAlert  Role = "alert"
	RoleLog    Role = "log"
	RoleBackup Role = "backup"
)

const (
	AlertPrefix   = "#ALERT\n📈 Trending list changed!\n\n"
	ChangedPrefix = "(Changed)\n\n"
	BackupPrefix  = "[ALERT COPY]\n\n"
	BackupQuiet   = "(No Change) Personal backup."
)

// Channel is one named destination. Role is the role a message was
// planned for; Roles lists every role the target is configured under.
type Channel struct {
	Name   string
	Role   Role
	Roles  []Role
	Target transport.ChatTarget
}

func (c Channel) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, c.Target)
}

func (c Channel) has(role Role) bool {
	return slices.Contains(c.Roles, role)
}

// Routes is the per-role routing table. A role with no targets is disabled.
type Routes struct {
	Alert  []transport.ChatTarget
	Log    []transport.ChatTarget
	Backup *transport.ChatTarget
}

func (r Routes) Empty() bool {
	return len(r.Alert) == 0 && len(r.Log) == 0 && r.Backup == nil
}

// Channels lists every destination once, in role order alert, log, backup.
// A target listed under several roles is named after its first role and
// carries all of them.
func (r Routes) Channels() []Channel {
	index := make(map[transport.ChatTarget]int)
	out := make([]Channel, 0, len(r.Alert)+len(r.Log)+1)
	add := func(role Role, i int, t transport.ChatTarget) {
		if j, dup := index[t]; dup {
			if !out[j].has(role) {
				out[j].Roles = append(out[j].Roles, role)
			}
			return
		}
		index[t] = len(out)
		out = append(out, Channel{Name: fmt.Sprintf("%s#%d", role, i+1), Role: role, Roles: []Role{role}, Target: t})
	}
	for i, t := range r.Alert {
		add(RoleAlert, i, t)
	}
	for i, t := range r.Log {
		add(RoleLog, i, t)
	}
	if r.Backup != nil {
		add(RoleBackup, 0, *r.Backup)
	}
	return out
}

// Outgoing is one message for one channel.
type Outgoing struct {
	Channel Channel
	Text    string
	Options transport.SendOptions
	Changed bool
}

// Plan builds the cycle's message set. Every target gets at most one
// message, picked from its roles: on a change alert beats log beats backup;
// on a quiet cycle log beats backup and alert-only targets get nothing.
func (r Routes) Plan(changed bool, msg render.Rendered) []Outgoing {
	rich := transport.SendOptions{ParseMode: msg.ParseMode, DisablePreview: true}
	plain := transport.SendOptions{DisablePreview: true}

	var out []Outgoing
	for _, ch := range r.Channels() {
		o := Outgoing{Channel: ch, Changed: changed}
		switch {
		case changed && ch.has(RoleAlert):
			o.Channel.Role, o.Text, o.Options = RoleAlert, AlertPrefix+msg.Broadcast, rich
		case changed && ch.has(RoleLog):
			o.Channel.Role, o.Text, o.Options = RoleLog, ChangedPrefix+msg.Broadcast, rich
		case changed && ch.has(RoleBackup):
			o.Channel.Role, o.Text, o.Options = RoleBackup, BackupPrefix+msg.Broadcast, rich
		case ch.has(RoleLog):
			o.Channel.Role, o.Text, o.Options = RoleLog, msg.Quiet, plain
		case ch.has(RoleBackup):
			o.Channel.Role, o.Text, o.Options = RoleBackup, BackupQuiet, plain
		default:
			continue
		}
		out = append(out, o)
	}
	return out
}
