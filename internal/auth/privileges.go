// ABOUTME: Privilege bitmask carried by native-protocol sessions
// ABOUTME: Access gates everything, Update gates writes, Admin gates status and control

package auth

import "strings"

// Privileges is a bitmask of granted rights.
type Privileges int

const (
	Access Privileges = 1 << iota
	Update
	Admin

	All = Access | Update | Admin
)

// Has reports whether p includes every bit of want.
func (p Privileges) Has(want Privileges) bool {
	return p&want == want
}

func (p Privileges) String() string {
	if p == 0 {
		return "none"
	}
	var parts []string
	if p.Has(Access) {
		parts = append(parts, "access")
	}
	if p.Has(Update) {
		parts = append(parts, "update")
	}
	if p.Has(Admin) {
		parts = append(parts, "admin")
	}
	return strings.Join(parts, "|")
}
