package interfaces

import (
	"context"

	"github.com/balduz84/passdoo/internal/models"
)

// PassdooAPI is the remote backend as seen by the services.
// Every call takes the credential to attach explicitly.
type PassdooAPI interface {
	Validate(ctx context.Context, cred models.AuthCredential) (bool, error)
	Logout(ctx context.Context, cred models.AuthCredential) error

	ListPasswords(ctx context.Context, cred models.AuthCredential) ([]models.PasswordRecord, error)
	GetPassword(ctx context.Context, cred models.AuthCredential, id int64) (*models.PasswordDetail, error)
	SearchPasswords(ctx context.Context, cred models.AuthCredential, query string) ([]models.PasswordRecord, error)
	SearchByURL(ctx context.Context, cred models.AuthCredential, url string) ([]models.PasswordRecord, error)
	CreatePassword(ctx context.Context, cred models.AuthCredential, input models.PasswordInput) (*models.PasswordRecord, error)
	UpdatePassword(ctx context.Context, cred models.AuthCredential, id int64, input models.PasswordInput) (*models.PasswordRecord, error)
	LogAccess(ctx context.Context, cred models.AuthCredential, passwordID int64, action string) error

	GetUser(ctx context.Context, cred models.AuthCredential) (*models.UserInfo, error)
	GetClients(ctx context.Context, cred models.AuthCredential) ([]models.Client, error)
	GetCategories(ctx context.Context, cred models.AuthCredential) ([]models.Category, error)
	GetClientGroups(ctx context.Context, cred models.AuthCredential, partnerID int64) (*models.ClientGroups, error)
}
