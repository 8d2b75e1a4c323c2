package models

import "encoding/json"

// Client is an ODOO partner the user can file passwords under
type Client struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Category is passed through as the server sends it
type Category = json.RawMessage

// PermissionGroup is an access group that can be granted on a password
type PermissionGroup struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	MaxPermission string `json:"max_permission,omitempty"`
}

// ClientGroups lists the groups the user may share a client's passwords with
type ClientGroups struct {
	Groups        []PermissionGroup `json:"groups"`
	MaxPermission string            `json:"max_permission"`
	CanCreate     bool              `json:"can_create"`
	OwnerGroupID  OdooID            `json:"owner_group_id,omitempty"`
	IsAdmin       bool              `json:"is_admin,omitempty"`
}

// DefaultClientGroups is returned when groups cannot be loaded
func DefaultClientGroups() *ClientGroups {
	return &ClientGroups{
		Groups:        []PermissionGroup{},
		MaxPermission: "read",
		CanCreate:     false,
	}
}
