// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package auth

import (
	"encoding/json"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Users contains a map of access rules for specific users, keyed on username.
type Users map[string]UserRule

// UserRule defines the access rules for a specific user.
type UserRule struct {
	Username  RString `json:"username,omitempty" yaml:"username,omitempty"`     // the username of a user
	Disallow  bool    `json:"disallow,omitempty" yaml:"disallow,omitempty"`     // deny every hi from the user
	NoOffline bool    `json:"no_offline,omitempty" yaml:"no_offline,omitempty"` // deny hi requests asking for offline delivery
}

// HiRules defines generic access rules applicable to all users.
type HiRules []HiRule

// HiRule matches usernames and decides whether their hi is accepted.
type HiRule struct {
	Username RString `json:"username,omitempty" yaml:"username,omitempty"` // the username of a user
	Allow    bool    `json:"allow,omitempty" yaml:"allow,omitempty"`       // allow or disallow the users
	Offline  bool    `json:"offline,omitempty" yaml:"offline,omitempty"`   // also allow offline delivery requests
}

// RString is a rule value string.
type RString string

// Matches returns true if the rule matches a given string. A trailing
// asterisk matches any suffix.
func (r RString) Matches(a string) bool {
	rr := string(r)
	if r == "" || r == "*" || a == rr {
		return true
	}

	i := strings.Index(rr, "*")
	if i > 0 && len(a) > i && strings.Compare(rr[:i], a[:i]) == 0 {
		return true
	}

	return false
}

// Ledger is an auth ledger containing hi access rules.
type Ledger struct {
	sync.Mutex `json:"-" yaml:"-"`
	Users      Users   `json:"users" yaml:"users"`
	Hi         HiRules `json:"hi" yaml:"hi"`
}

// Update updates the internal values of the ledger.
func (l *Ledger) Update(ln *Ledger) {
	l.Lock()
	defer l.Unlock()
	l.Users = ln.Users
	l.Hi = ln.Hi
}

// HiOk returns true if the rules indicate the user may say hi, and the index
// of the rule which matched.
func (l *Ledger) HiOk(username string, wantsOffline bool) (n int, ok bool) {
	l.Lock()
	defer l.Unlock()

	// A predefined user always takes precedence over the generic rules.
	if l.Users != nil {
		if u, ok := l.Users[username]; ok {
			return 0, !u.Disallow && !(wantsOffline && u.NoOffline)
		}
	}

	for n, rule := range l.Hi {
		if rule.Username.Matches(username) {
			return n, rule.Allow && (!wantsOffline || rule.Offline)
		}
	}

	return 0, false
}

// ToJSON encodes the values into a JSON string.
func (l *Ledger) ToJSON() (data []byte, err error) {
	return json.Marshal(l)
}

// ToYAML encodes the values into a YAML string.
func (l *Ledger) ToYAML() (data []byte, err error) {
	return yaml.Marshal(l)
}

// Unmarshal decodes a JSON or YAML string (such as a rule config from a file) into a struct.
func (l *Ledger) Unmarshal(data []byte) error {
	l.Lock()
	defer l.Unlock()
	if len(data) == 0 {
		return nil
	}

	if data[0] == '{' {
		return json.Unmarshal(data, l)
	}

	return yaml.Unmarshal(data, &l)
}
