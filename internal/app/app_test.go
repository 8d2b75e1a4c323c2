package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/balduz84/passdoo/internal/passdoo"
	"github.com/balduz84/passdoo/internal/services/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestMatchOrigin(t *testing.T) {
	patterns := []string{"chrome-extension://*", "http://localhost:*"}

	assert.True(t, MatchOrigin(patterns, "chrome-extension://abcdefghijkl"))
	assert.True(t, MatchOrigin(patterns, "http://localhost:3000"))
	assert.False(t, MatchOrigin(patterns, "https://localhost:3000"))
	assert.False(t, MatchOrigin(patterns, "https://evil.example.com"))
	assert.False(t, MatchOrigin(nil, "chrome-extension://abc"))
}

func TestOriginAllowed_NoOriginHeader(t *testing.T) {
	a := &App{Config: common.NewDefaultConfig()}

	assert.True(t, a.OriginAllowed(httptest.NewRequest("GET", "/api/health", nil)))

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, a.OriginAllowed(req))
}

func TestNew_WiresComponents(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	cfg.Refresh.Enabled = false

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Router)
	assert.NotNil(t, a.WSHandler)
	assert.False(t, a.SchedulerService.IsRunning())
	assert.Contains(t, a.Router.Actions(), "login")

	// A stored session is picked up by the session manager
	ctx := context.Background()
	require.NoError(t, a.StorageManager.SessionStorage().SaveSession(ctx, &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
	}))
	cred, err := a.AuthService.CurrentCredential(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "tok", cred.Value)
}

func newBackendApp(t *testing.T, handler http.HandlerFunc) *App {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	cfg.Refresh.Enabled = false
	cfg.Passdoo.BaseURL = server.URL
	cfg.Passdoo.RateLimit = ""

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAdopt_SavesPendingCredential(t *testing.T) {
	var created atomic.Int32
	var createdName atomic.Value
	a := newBackendApp(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case passdoo.APIPrefix + "/validate":
			w.Write([]byte(`{"valid":true}`))
		case passdoo.APIPrefix + "/passwords":
			var input models.PasswordInput
			json.NewDecoder(r.Body).Decode(&input)
			createdName.Store(input.Name)
			created.Add(1)
			w.Write([]byte(`{"password":{"id":9,"name":"Mail"}}`))
		default:
			w.Write([]byte(`{}`))
		}
	})

	ctx := context.Background()
	require.NoError(t, a.StorageManager.PendingStorage().SetPending(ctx, &models.PendingCredential{
		Username: "alice",
		Password: "s3cret",
		URL:      "https://mail.example.com",
		SiteName: "Mail",
	}))

	require.NoError(t, a.Adopt(ctx, models.NewBearerToken("tok")))

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, "Mail", createdName.Load())
	pending, err := a.StorageManager.PendingStorage().GetPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, pending, "pending credential is cleared once saved")
}

func TestAdopt_RejectedTokenKeepsPendingCredential(t *testing.T) {
	a := newBackendApp(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	ctx := context.Background()
	require.NoError(t, a.StorageManager.PendingStorage().SetPending(ctx, &models.PendingCredential{
		Password: "s3cret",
		URL:      "https://mail.example.com",
	}))

	require.Error(t, a.Adopt(ctx, models.NewBearerToken("tok")))

	pending, err := a.StorageManager.PendingStorage().GetPending(ctx)
	require.NoError(t, err)
	assert.NotNil(t, pending)
}

func TestGetAll_OutdatedClientDropsStoredSession(t *testing.T) {
	a := newBackendApp(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUpgradeRequired)
		w.Write([]byte(`{"message":"please update","min_version":"2.0.0"}`))
	})

	ctx := context.Background()
	require.NoError(t, a.StorageManager.SessionStorage().SaveSession(ctx, &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
		IssuedAt:   time.Now(),
	}))

	_, err := a.PasswordService.GetAll(ctx, "", true)
	require.Error(t, err)
	assert.True(t, passdoo.IsKind(err, passdoo.KindVersionOutdated))

	record, err := a.StorageManager.SessionStorage().GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, record, "an outdated client must sign in again after updating")
	assert.NotEqual(t, auth.StateAuthenticated, a.AuthService.State())
}
