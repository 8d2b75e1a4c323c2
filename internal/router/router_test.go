package router

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/balduz84/passdoo/internal/passdoo"
	"github.com/balduz84/passdoo/internal/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeSession struct {
	cred     *models.AuthCredential
	loginErr error
	logouts  int
}

func (f *fakeSession) Login(ctx context.Context) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	cred := models.NewBearerToken("tok")
	f.cred = &cred
	return nil
}

func (f *fakeSession) Logout(ctx context.Context) {
	f.logouts++
	f.cred = nil
}

func (f *fakeSession) CheckAuthStatus(ctx context.Context) bool {
	return f.cred != nil
}

func (f *fakeSession) CurrentCredential(ctx context.Context) (*models.AuthCredential, error) {
	return f.cred, nil
}

type fakeCache struct {
	err     error
	created []models.PasswordInput
	lastID  int64
	search  string
	force   bool
	panics  bool
}

func (f *fakeCache) GetAll(ctx context.Context, search string, force bool) ([]models.PasswordRecord, error) {
	if f.panics {
		panic("boom")
	}
	f.search, f.force = search, force
	return []models.PasswordRecord{{ID: 1, Name: "Mail"}}, f.err
}

func (f *fakeCache) GetByID(ctx context.Context, id int64) (*models.PasswordDetail, error) {
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return &models.PasswordDetail{PasswordRecord: models.PasswordRecord{ID: id}, PasswordPlain: "pw"}, nil
}

func (f *fakeCache) FindByURL(ctx context.Context, rawURL string) ([]models.PasswordRecord, error) {
	return []models.PasswordRecord{}, f.err
}

func (f *fakeCache) Search(ctx context.Context, query string) ([]models.PasswordRecord, error) {
	return []models.PasswordRecord{}, f.err
}

func (f *fakeCache) Create(ctx context.Context, input models.PasswordInput) (*models.PasswordRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, input)
	return &models.PasswordRecord{ID: 42, Name: input.Name}, nil
}

func (f *fakeCache) Update(ctx context.Context, id int64, input models.PasswordInput) (*models.PasswordRecord, error) {
	f.lastID = id
	return &models.PasswordRecord{ID: id, Name: input.Name}, f.err
}

func (f *fakeCache) GetUser(ctx context.Context) (*models.UserInfo, error) {
	return &models.UserInfo{ID: 2, Name: "Mario"}, f.err
}

func (f *fakeCache) GetClients(ctx context.Context) ([]models.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.Client{{ID: 1, Name: "ACME"}}, nil
}

func (f *fakeCache) GetCategories(ctx context.Context) ([]models.Category, error) {
	return nil, f.err
}

func (f *fakeCache) GetClientGroups(ctx context.Context, partnerID int64) (*models.ClientGroups, error) {
	return nil, f.err
}

func newTestRouter(t *testing.T) (*Router, *fakeSession, *fakeCache, *badger.Manager) {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	session := &fakeSession{}
	cache := &fakeCache{}
	r := New(session, cache, manager, common.NewDefaultConfig(), arbor.NewLogger())
	return r, session, cache, manager
}

// roundTrip dispatches msg and decodes the JSON payload the front-end sees
func roundTrip(t *testing.T, r *Router, msg string) map[string]interface{} {
	t.Helper()
	payload := r.Handle(context.Background(), []byte(msg))
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHandle_UnknownAction(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	out := roundTrip(t, r, `{"action":"launchRocket"}`)
	assert.Equal(t, "UNKNOWN_ACTION", out["code"])
	assert.Contains(t, out["error"], "launchRocket")

	out = roundTrip(t, r, `{}`)
	assert.Equal(t, "UNKNOWN_ACTION", out["code"])
}

func TestHandle_MalformedMessage(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	out := roundTrip(t, r, `not json`)
	assert.Equal(t, "INVALID_REQUEST", out["code"])
}

func TestHandle_RecoversFromPanic(t *testing.T) {
	r, session, cache, _ := newTestRouter(t)
	cred := models.NewBearerToken("tok")
	session.cred = &cred
	cache.panics = true

	out := roundTrip(t, r, `{"action":"getPasswords"}`)
	assert.Contains(t, out["error"], "internal error")
}

func TestHandle_VersionOutdatedPayloadAndLogout(t *testing.T) {
	r, session, cache, _ := newTestRouter(t)
	cred := models.NewBearerToken("tok")
	session.cred = &cred

	data := `{"message":"Please update","min_version":"2.0","current_version":"1.0","download_url":"/x"}`
	cache.err = &passdoo.Error{
		Kind:    passdoo.KindVersionOutdated,
		Message: "Please update",
		Status:  426,
		Data:    json.RawMessage(data),
	}

	payload := r.Handle(context.Background(), []byte(`{"action":"getPasswords"}`))
	body, ok := payload.(ErrorBody)
	require.True(t, ok)
	assert.Equal(t, "VERSION_OUTDATED", body.Error)
	assert.Equal(t, "VERSION_OUTDATED", body.Code)
	assert.Equal(t, "Please update", body.Message)
	assert.JSONEq(t, data, string(body.Data))

	assert.Equal(t, 1, session.logouts)
	assert.Nil(t, session.cred)
}

func TestHandle_ErrorsCarryCode(t *testing.T) {
	r, session, cache, _ := newTestRouter(t)
	cred := models.NewBearerToken("tok")
	session.cred = &cred

	cache.err = passdoo.NewError(passdoo.KindUnauthorized, "invalid or expired credential")
	out := roundTrip(t, r, `{"action":"getPasswords"}`)
	assert.Equal(t, "SESSION_EXPIRED", out["code"])
	assert.Equal(t, "invalid or expired credential", out["error"])

	cache.err = errors.New("plain failure")
	out = roundTrip(t, r, `{"action":"getUserInfo"}`)
	assert.Equal(t, "plain failure", out["error"])
	assert.NotContains(t, out, "code")
}

func TestAuthActions(t *testing.T) {
	r, session, _, _ := newTestRouter(t)

	out := roundTrip(t, r, `{"action":"checkAuth"}`)
	assert.Equal(t, false, out["authenticated"])

	out = roundTrip(t, r, `{"action":"login"}`)
	assert.Equal(t, true, out["success"])
	out = roundTrip(t, r, `{"action":"checkAuth"}`)
	assert.Equal(t, true, out["authenticated"])

	out = roundTrip(t, r, `{"action":"logout"}`)
	assert.Equal(t, true, out["success"])
	assert.Nil(t, session.cred)

	session.loginErr = passdoo.NewError(passdoo.KindAuthTimeout, "login timed out")
	out = roundTrip(t, r, `{"action":"login"}`)
	assert.Equal(t, "AUTH_TIMEOUT", out["code"])
}

func TestGetPasswords_PassesParams(t *testing.T) {
	r, session, cache, _ := newTestRouter(t)
	cred := models.NewBearerToken("tok")
	session.cred = &cred

	out := roundTrip(t, r, `{"action":"getPasswords","search":"mail","forceRefresh":true}`)
	assert.Len(t, out["passwords"], 1)
	assert.Equal(t, "mail", cache.search)
	assert.True(t, cache.force)
}

func TestGetPasswordByID_AcceptsStringID(t *testing.T) {
	r, _, cache, _ := newTestRouter(t)

	out := roundTrip(t, r, `{"action":"getPasswordById","id":"17"}`)
	require.Contains(t, out, "password")
	assert.Equal(t, int64(17), cache.lastID)

	out = roundTrip(t, r, `{"action":"getPasswordById"}`)
	assert.Equal(t, "INVALID_REQUEST", out["code"])
}

func TestCreatePassword_Validates(t *testing.T) {
	r, _, cache, _ := newTestRouter(t)

	out := roundTrip(t, r, `{"action":"createPassword","passwordData":{"username":"x"}}`)
	assert.Equal(t, "INVALID_REQUEST", out["code"])
	assert.Empty(t, cache.created)

	out = roundTrip(t, r, `{"action":"createPassword","passwordData":{"name":"VPN","password":"pw"}}`)
	require.Contains(t, out, "password")
	require.Len(t, cache.created, 1)
	assert.Equal(t, "VPN", cache.created[0].Name)
}

func TestSaveCredentials_PendingUntilLogin(t *testing.T) {
	r, _, cache, manager := newTestRouter(t)
	ctx := context.Background()

	out := roundTrip(t, r, `{"action":"saveCredentials","credentials":{"username":"bob","password":"pw","url":"https://mail.example.com","siteName":"Mail"}}`)
	assert.Equal(t, true, out["pending"])
	assert.Empty(t, cache.created)

	pending, err := manager.PendingStorage().GetPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)

	out = roundTrip(t, r, `{"action":"getPendingCredentials"}`)
	assert.NotNil(t, out["credentials"])

	out = roundTrip(t, r, `{"action":"login"}`)
	assert.Equal(t, true, out["success"])

	require.Len(t, cache.created, 1)
	assert.Equal(t, "Mail", cache.created[0].Name)
	assert.Equal(t, "web", cache.created[0].Category)

	pending, err = manager.PendingStorage().GetPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending, "promoted credential is cleared")

	// Signed in: saved directly
	out = roundTrip(t, r, `{"action":"saveCredentials","credentials":{"password":"pw2","url":"https://erp.acme.it"}}`)
	require.Contains(t, out, "password")
	require.Len(t, cache.created, 2)
	assert.Equal(t, "https://erp.acme.it", cache.created[1].Name)
}

func TestSaveCredentials_RequiresPasswordAndURL(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	out := roundTrip(t, r, `{"action":"saveCredentials","credentials":{"username":"bob"}}`)
	assert.Equal(t, "INVALID_REQUEST", out["code"])

	out = roundTrip(t, r, `{"action":"saveCredentials"}`)
	assert.Equal(t, "INVALID_REQUEST", out["code"])
}

func TestCatalogActionsDegrade(t *testing.T) {
	r, _, cache, _ := newTestRouter(t)
	cache.err = passdoo.NewError(passdoo.KindSessionInvalid, "not authenticated")

	out := roundTrip(t, r, `{"action":"getClients"}`)
	assert.Equal(t, []interface{}{}, out["clients"])

	out = roundTrip(t, r, `{"action":"getCategories"}`)
	assert.Equal(t, []interface{}{}, out["categories"])

	out = roundTrip(t, r, `{"action":"getClientGroups","partnerId":5}`)
	assert.Equal(t, "read", out["max_permission"])
	assert.Equal(t, false, out["can_create"])

	out = roundTrip(t, r, `{"action":"getClientGroups"}`)
	assert.Equal(t, "read", out["max_permission"])
}

func TestGeneratePassword(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	out := roundTrip(t, r, `{"action":"generatePassword","options":{"length":20,"symbols":false}}`)
	password, ok := out["password"].(string)
	require.True(t, ok)
	assert.Len(t, password, 20)

	out = roundTrip(t, r, `{"action":"generatePassword","options":{"length":2}}`)
	assert.Equal(t, "INVALID_REQUEST", out["code"])
}

func TestSettingsActions(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	out := roundTrip(t, r, `{"action":"getSettings"}`)
	settings := out["settings"].(map[string]interface{})
	assert.Equal(t, "it", settings["language"])

	out = roundTrip(t, r, `{"action":"saveSettings","settings":{"autoFill":false,"autoLockMinutes":10,"darkMode":"dark","language":"en"}}`)
	assert.Equal(t, true, out["success"])

	out = roundTrip(t, r, `{"action":"getSettings"}`)
	settings = out["settings"].(map[string]interface{})
	assert.Equal(t, "en", settings["language"])
	assert.Equal(t, false, settings["autoFill"])

	out = roundTrip(t, r, `{"action":"saveSettings","settings":{"darkMode":"neon"}}`)
	assert.Equal(t, "INVALID_REQUEST", out["code"])
}

func TestGetConfig(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	out := roundTrip(t, r, `{"action":"getConfig"}`)
	config := out["config"].(map[string]interface{})
	assert.Equal(t, "https://portal.novacs.net", config["baseUrl"])
	assert.Equal(t, float64(5), config["cacheDurationMinutes"])
}

func TestActionsCatalogComplete(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	for _, action := range []string{
		"login", "logout", "checkAuth", "getPasswords", "getPasswordById",
		"getPasswordsByUrl", "getUserInfo", "createPassword", "saveCredentials",
	} {
		assert.Contains(t, r.Actions(), action)
	}
}
