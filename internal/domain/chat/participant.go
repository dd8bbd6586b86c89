package chat

import "strings"

// Role distinguishes the two kinds of chat participants.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCarrier Role = "carrier"
)

// ParseRole normalizes a role string. Unknown values fall back to admin,
// which is the only role the admin widget ever sends as.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleCarrier:
		return RoleCarrier
	default:
		return RoleAdmin
	}
}

func (r Role) IsAdmin() bool { return r == RoleAdmin }

// Participant identifies the acting user of a request or widget session.
type Participant struct {
	ID   string
	Role Role
}

// UserInfo is the directory record used for display names. Every field is optional.
type UserInfo struct {
	ID             string   `json:"id"`
	FirstName      string   `json:"first_name,omitempty"`
	LastName       string   `json:"last_name,omitempty"`
	FullName       string   `json:"full_name,omitempty"`
	Username       string   `json:"username,omitempty"`
	EmailAddresses []string `json:"email_addresses,omitempty"`
	Role           Role     `json:"role,omitempty"`
}

// SystemUserID is the synthetic sender used for automated admin notices.
const SystemUserID = "admin_system"

// SystemUser returns the synthetic directory entry for SystemUserID.
func SystemUser() UserInfo {
	return UserInfo{
		ID:        SystemUserID,
		FirstName: "Admin",
		LastName:  "System",
		FullName:  "Admin System",
		Username:  "admin",
		Role:      RoleAdmin,
	}
}

// DisplayName walks the optional name fields in priority order and returns
// the first non-empty one, or "" when the record carries no name at all.
func (u UserInfo) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	if first != "" && last != "" {
		return first + " " + last
	}
	if first != "" {
		return first
	}
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	for _, email := range u.EmailAddresses {
		if email = strings.TrimSpace(email); email != "" {
			return email
		}
	}
	return ""
}

// Merge returns u with empty fields filled from other.
func (u UserInfo) Merge(other UserInfo) UserInfo {
	if u.ID == "" {
		u.ID = other.ID
	}
	if u.FirstName == "" {
		u.FirstName = other.FirstName
	}
	if u.LastName == "" {
		u.LastName = other.LastName
	}
	if u.FullName == "" {
		u.FullName = other.FullName
	}
	if u.Username == "" {
		u.Username = other.Username
	}
	if len(u.EmailAddresses) == 0 {
		u.EmailAddresses = append([]string(nil), other.EmailAddresses...)
	}
	if u.Role == "" {
		u.Role = other.Role
	}
	return u
}
