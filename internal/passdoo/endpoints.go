package passdoo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/balduz84/passdoo/internal/models"
)

type validateResponse struct {
	Valid bool `json:"valid"`
}

type passwordsResponse struct {
	Passwords []models.PasswordRecord `json:"passwords"`
}

type passwordDetailResponse struct {
	Password *models.PasswordDetail `json:"password"`
}

type passwordResponse struct {
	Password *models.PasswordRecord `json:"password"`
}

type userResponse struct {
	User *models.UserInfo `json:"user"`
}

type clientsResponse struct {
	Clients []models.Client `json:"clients"`
}

type categoriesResponse struct {
	Categories []models.Category `json:"categories"`
}

// Validate reports whether the backend still accepts cred.
// A rejection is returned as (false, nil); transport failures as errors.
func (c *Client) Validate(ctx context.Context, cred models.AuthCredential) (bool, error) {
	var result validateResponse
	err := c.call(ctx, "validate", http.MethodGet, "/validate", nil, &cred, &result)
	if err != nil {
		if KindOf(err).SessionRejected() {
			return false, nil
		}
		return false, err
	}
	return result.Valid, nil
}

// Logout revokes cred on the backend
func (c *Client) Logout(ctx context.Context, cred models.AuthCredential) error {
	return c.call(ctx, "logout", http.MethodPost, "/logout", nil, &cred, nil)
}

// ListPasswords returns every record the user can access
func (c *Client) ListPasswords(ctx context.Context, cred models.AuthCredential) ([]models.PasswordRecord, error) {
	var result passwordsResponse
	if err := c.call(ctx, "passwords", http.MethodGet, "/passwords", nil, &cred, &result); err != nil {
		return nil, err
	}
	return nonNil(result.Passwords), nil
}

// GetPassword returns one record with its decrypted secret
func (c *Client) GetPassword(ctx context.Context, cred models.AuthCredential, id int64) (*models.PasswordDetail, error) {
	var result passwordDetailResponse
	if err := c.call(ctx, "password", http.MethodGet, fmt.Sprintf("/password/%d", id), nil, &cred, &result); err != nil {
		return nil, err
	}
	if result.Password == nil {
		return nil, &Error{Kind: KindRequestFailed, Message: "password not found", Endpoint: "/password"}
	}
	return result.Password, nil
}

// SearchPasswords runs a server-side keyword search
func (c *Client) SearchPasswords(ctx context.Context, cred models.AuthCredential, query string) ([]models.PasswordRecord, error) {
	var result passwordsResponse
	body := map[string]string{"query": query}
	if err := c.call(ctx, "passwords/search", http.MethodPost, "/passwords/search", body, &cred, &result); err != nil {
		return nil, err
	}
	return nonNil(result.Passwords), nil
}

// SearchByURL asks the backend for records matching a page URL
func (c *Client) SearchByURL(ctx context.Context, cred models.AuthCredential, url string) ([]models.PasswordRecord, error) {
	var result passwordsResponse
	body := map[string]string{"url": url}
	if err := c.call(ctx, "passwords/search", http.MethodPost, "/passwords/search", body, &cred, &result); err != nil {
		return nil, err
	}
	return nonNil(result.Passwords), nil
}

// CreatePassword stores a new record
func (c *Client) CreatePassword(ctx context.Context, cred models.AuthCredential, input models.PasswordInput) (*models.PasswordRecord, error) {
	var result passwordResponse
	if err := c.call(ctx, "passwords", http.MethodPost, "/passwords", input, &cred, &result); err != nil {
		return nil, err
	}
	return result.Password, nil
}

// UpdatePassword modifies an existing record
func (c *Client) UpdatePassword(ctx context.Context, cred models.AuthCredential, id int64, input models.PasswordInput) (*models.PasswordRecord, error) {
	var result passwordResponse
	if err := c.call(ctx, "password", http.MethodPut, fmt.Sprintf("/password/%d", id), input, &cred, &result); err != nil {
		return nil, err
	}
	return result.Password, nil
}

// LogAccess records an audit event for a password
func (c *Client) LogAccess(ctx context.Context, cred models.AuthCredential, passwordID int64, action string) error {
	body := map[string]interface{}{"password_id": passwordID, "action": action}
	return c.call(ctx, "audit", http.MethodPost, "/audit", body, &cred, nil)
}

// GetUser returns the authenticated user's profile
func (c *Client) GetUser(ctx context.Context, cred models.AuthCredential) (*models.UserInfo, error) {
	var result userResponse
	if err := c.call(ctx, "user", http.MethodGet, "/user", nil, &cred, &result); err != nil {
		return nil, err
	}
	return result.User, nil
}

// GetClients lists the partners the user can file passwords under
func (c *Client) GetClients(ctx context.Context, cred models.AuthCredential) ([]models.Client, error) {
	var result clientsResponse
	if err := c.call(ctx, "clients", http.MethodGet, "/clients", nil, &cred, &result); err != nil {
		return nil, err
	}
	if result.Clients == nil {
		return []models.Client{}, nil
	}
	return result.Clients, nil
}

// GetCategories lists password categories
func (c *Client) GetCategories(ctx context.Context, cred models.AuthCredential) ([]models.Category, error) {
	var result categoriesResponse
	if err := c.call(ctx, "categories", http.MethodGet, "/categories", nil, &cred, &result); err != nil {
		return nil, err
	}
	if result.Categories == nil {
		return []models.Category{}, nil
	}
	return result.Categories, nil
}

// GetClientGroups lists the permission groups available for a partner
func (c *Client) GetClientGroups(ctx context.Context, cred models.AuthCredential, partnerID int64) (*models.ClientGroups, error) {
	result := models.DefaultClientGroups()
	if err := c.call(ctx, "client/groups", http.MethodGet, fmt.Sprintf("/client/%d/groups", partnerID), nil, &cred, result); err != nil {
		return nil, err
	}
	if result.Groups == nil {
		result.Groups = []models.PermissionGroup{}
	}
	return result, nil
}

func nonNil(records []models.PasswordRecord) []models.PasswordRecord {
	if records == nil {
		return []models.PasswordRecord{}
	}
	return records
}
