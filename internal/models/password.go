package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// OdooID is a many2one id as serialized by ODOO: a number, or false/null when unset
type OdooID int64

// UnmarshalJSON accepts numbers, numeric strings, false and null
func (id *OdooID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*id = 0
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", s, err)
		}
		*id = OdooID(n)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = OdooID(n)
	return nil
}

// PasswordRecord is a server-owned entry as listed by the backend.
// Ownership fields are passed through as the server sends them.
type PasswordRecord struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	URI          string `json:"uri"`
	Category     string `json:"category"`
	IsOwner      bool   `json:"is_owner"`
	IsShared     *bool  `json:"is_shared,omitempty"`
	AccessLevel  string `json:"access_level"`
	PartnerID    OdooID `json:"partner_id,omitempty"`
	PartnerName  string `json:"partner_name,omitempty"`
	PartnerImage string `json:"partner_image,omitempty"`
}

// PasswordDetail is a single record including its decrypted secret.
// It is never cached.
type PasswordDetail struct {
	PasswordRecord
	PasswordPlain string `json:"password_plain"`
	Description   string `json:"description,omitempty"`
}

// PasswordInput is the payload for creating or updating a record
type PasswordInput struct {
	Name        string          `json:"name" validate:"required,max=256"`
	Username    string          `json:"username,omitempty"`
	Password    string          `json:"password,omitempty"`
	URI         string          `json:"uri,omitempty"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
	PartnerID   int64           `json:"partner_id,omitempty"`
	GroupAccess json.RawMessage `json:"group_access,omitempty"`
}

// PendingCredential is a login captured before a session existed
type PendingCredential struct {
	Username string `json:"username"`
	Password string `json:"password" validate:"required"`
	URL      string `json:"url" validate:"required"`
	SiteName string `json:"siteName"`
}

// ToPasswordInput converts a captured login into a creation request
func (p *PendingCredential) ToPasswordInput() PasswordInput {
	name := p.SiteName
	if name == "" {
		name = p.URL
	}
	return PasswordInput{
		Name:     name,
		Username: p.Username,
		Password: p.Password,
		URI:      p.URL,
		Category: "web",
	}
}

// UserInfo is the profile returned by the backend
type UserInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Login string `json:"login"`
	Email string `json:"email,omitempty"`
}
