package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/balduz84/passdoo/internal/models"
	"github.com/balduz84/passdoo/internal/passdoo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const testBaseURL = "https://portal.example.com"

// fakeSessions is an in-memory SessionStorage
type fakeSessions struct {
	mu     sync.Mutex
	record *models.SessionRecord
}

func (f *fakeSessions) GetSession(ctx context.Context) (*models.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.record == nil {
		return nil, nil
	}
	copied := *f.record
	return &copied, nil
}

func (f *fakeSessions) SaveSession(ctx context.Context, record *models.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *record
	f.record = &copied
	return nil
}

func (f *fakeSessions) DeleteSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record = nil
	return nil
}

func (f *fakeSessions) DeleteSessionIf(ctx context.Context, cred models.AuthCredential) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.record == nil || f.record.Credential != cred {
		return false, nil
	}
	f.record = nil
	return true, nil
}

// fakeAPI answers Validate and Logout; the password endpoints are unused here
type fakeAPI struct {
	mu          sync.Mutex
	validateErr error
	valid       bool
	logouts     int
}

func (f *fakeAPI) Validate(ctx context.Context, cred models.AuthCredential) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid, f.validateErr
}

func (f *fakeAPI) Logout(ctx context.Context, cred models.AuthCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return errors.New("offline")
}

func (f *fakeAPI) ListPasswords(ctx context.Context, cred models.AuthCredential) ([]models.PasswordRecord, error) {
	return nil, nil
}
func (f *fakeAPI) GetPassword(ctx context.Context, cred models.AuthCredential, id int64) (*models.PasswordDetail, error) {
	return nil, nil
}
func (f *fakeAPI) SearchPasswords(ctx context.Context, cred models.AuthCredential, query string) ([]models.PasswordRecord, error) {
	return nil, nil
}
func (f *fakeAPI) SearchByURL(ctx context.Context, cred models.AuthCredential, url string) ([]models.PasswordRecord, error) {
	return nil, nil
}
func (f *fakeAPI) CreatePassword(ctx context.Context, cred models.AuthCredential, input models.PasswordInput) (*models.PasswordRecord, error) {
	return nil, nil
}
func (f *fakeAPI) UpdatePassword(ctx context.Context, cred models.AuthCredential, id int64, input models.PasswordInput) (*models.PasswordRecord, error) {
	return nil, nil
}
func (f *fakeAPI) LogAccess(ctx context.Context, cred models.AuthCredential, passwordID int64, action string) error {
	return nil
}
func (f *fakeAPI) GetUser(ctx context.Context, cred models.AuthCredential) (*models.UserInfo, error) {
	return nil, nil
}
func (f *fakeAPI) GetClients(ctx context.Context, cred models.AuthCredential) ([]models.Client, error) {
	return nil, nil
}
func (f *fakeAPI) GetCategories(ctx context.Context, cred models.AuthCredential) ([]models.Category, error) {
	return nil, nil
}
func (f *fakeAPI) GetClientGroups(ctx context.Context, cred models.AuthCredential, partnerID int64) (*models.ClientGroups, error) {
	return nil, nil
}

// fakeWindow is driven by the test through its channels
type fakeWindow struct {
	navigations chan string
	closed      chan struct{}
	currentURL  atomic.Value
	cookies     []*http.Cookie
	closeCalls  atomic.Int32
	closeOnce   sync.Once
}

func newFakeWindow() *fakeWindow {
	w := &fakeWindow{
		navigations: make(chan string, 8),
		closed:      make(chan struct{}),
	}
	w.currentURL.Store("")
	return w
}

func (w *fakeWindow) Navigations() <-chan string { return w.navigations }
func (w *fakeWindow) Closed() <-chan struct{}     { return w.closed }

func (w *fakeWindow) CurrentURL(ctx context.Context) (string, error) {
	return w.currentURL.Load().(string), nil
}

func (w *fakeWindow) Cookies(ctx context.Context, rawURL string) ([]*http.Cookie, error) {
	return w.cookies, nil
}

func (w *fakeWindow) Close() error {
	w.closeCalls.Add(1)
	return nil
}

func (w *fakeWindow) userClose() {
	w.closeOnce.Do(func() { close(w.closed) })
}

type fakeSurface struct {
	window  *fakeWindow
	opened  chan string
	openErr error
}

func (f *fakeSurface) Open(ctx context.Context, loginURL string) (Window, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.opened != nil {
		f.opened <- loginURL
	}
	return f.window, nil
}

type fixture struct {
	service  *Service
	api      *fakeAPI
	sessions *fakeSessions
	window   *fakeWindow
	surface  *fakeSurface
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		api:      &fakeAPI{valid: true},
		sessions: &fakeSessions{},
		window:   newFakeWindow(),
	}
	f.surface = &fakeSurface{window: f.window, opened: make(chan string, 1)}
	f.service = NewService(f.api, f.sessions, f.surface, testConfig(), arbor.NewLogger())
	return f
}

func testConfig() Config {
	return Config{
		BaseURL:        testBaseURL,
		LoginPath:      "/web/login",
		RedirectPath:   "/passdoo/api/extension/auth",
		CallbackPath:   "/passdoo/api/extension/callback",
		LandingPath:    "/web",
		SessionCookie:  "session_id",
		SessionTimeout: 30 * time.Minute,
		LoginTimeout:   2 * time.Second,
		FallbackDelay:  20 * time.Millisecond,
	}
}

// loginAsync starts Login and waits until the window is open
func (f *fixture) loginAsync(t *testing.T) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- f.service.Login(context.Background()) }()

	select {
	case <-f.surface.opened:
	case <-time.After(time.Second):
		t.Fatal("login window never opened")
	}
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("login did not finish")
		return nil
	}
}

func TestLoginURL(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, testBaseURL+"/web/login?redirect=/passdoo/api/extension/auth", f.service.LoginURL())
}

func TestLogin_CallbackTokenIsStored(t *testing.T) {
	f := newFixture(t)
	done := f.loginAsync(t)

	assert.Equal(t, StateAuthenticating, f.service.State())
	f.window.navigations <- testBaseURL + "/web/login"
	f.window.navigations <- testBaseURL + "/passdoo/api/extension/callback?token=tok123"

	require.NoError(t, waitErr(t, done))
	assert.Equal(t, StateAuthenticated, f.service.State())

	cred, err := f.service.CurrentCredential(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, models.NewBearerToken("tok123"), *cred)
	assert.Equal(t, int32(1), f.window.closeCalls.Load(), "window closed on success")
}

func TestLogin_CallbackSessionIDInFragment(t *testing.T) {
	f := newFixture(t)
	done := f.loginAsync(t)

	f.window.navigations <- testBaseURL + "/passdoo/api/extension/callback#session_id=sess42"

	require.NoError(t, waitErr(t, done))
	cred, err := f.service.CurrentCredential(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, models.NewSessionCookie("sess42"), *cred)
}

func TestLogin_LandingPageReadsSessionCookie(t *testing.T) {
	f := newFixture(t)
	f.window.cookies = []*http.Cookie{
		{Name: "frontend_lang", Value: "it_IT"},
		{Name: "session_id", Value: "cookie-sess"},
	}
	done := f.loginAsync(t)

	f.window.navigations <- testBaseURL + "/web#action=menu"

	require.NoError(t, waitErr(t, done))
	cred, err := f.service.CurrentCredential(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, models.CredentialSessionCookie, cred.Kind)
	assert.Equal(t, "cookie-sess", cred.Value)

	// The cookie session stays usable once the server accepts it
	assert.True(t, f.service.CheckAuthStatus(context.Background()))
	assert.NotNil(t, f.sessions.record)
	assert.Equal(t, StateAuthenticated, f.service.State())
}

func TestLogin_DelayedURLReadFindsCredential(t *testing.T) {
	f := newFixture(t)
	done := f.loginAsync(t)

	// The navigation event arrives before the parameters are attached
	f.window.currentURL.Store(testBaseURL + "/passdoo/api/extension/callback?token=late")
	f.window.navigations <- testBaseURL + "/passdoo/api/extension/callback"

	require.NoError(t, waitErr(t, done))
	cred, err := f.service.CurrentCredential(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "late", cred.Value)
}

func TestLogin_EmptyCallbackFails(t *testing.T) {
	f := newFixture(t)
	done := f.loginAsync(t)

	f.window.currentURL.Store(testBaseURL + "/passdoo/api/extension/callback")
	f.window.navigations <- testBaseURL + "/passdoo/api/extension/callback"

	err := waitErr(t, done)
	assert.Equal(t, passdoo.KindAuthFailed, passdoo.KindOf(err))
	assert.Equal(t, StateUnauthenticated, f.service.State())
}

func TestLogin_WindowClosedFails(t *testing.T) {
	f := newFixture(t)
	done := f.loginAsync(t)

	f.window.userClose()

	err := waitErr(t, done)
	assert.Equal(t, passdoo.KindAuthFailed, passdoo.KindOf(err))
	assert.Equal(t, StateUnauthenticated, f.service.State())

	cred, err := f.service.CurrentCredential(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestLogin_TimeoutFails(t *testing.T) {
	f := newFixture(t)
	f.service.config.LoginTimeout = 50 * time.Millisecond
	done := f.loginAsync(t)

	err := waitErr(t, done)
	assert.Equal(t, passdoo.KindAuthTimeout, passdoo.KindOf(err))
	assert.Equal(t, "AUTH_TIMEOUT", passdoo.KindOf(err).Code())
	assert.Equal(t, int32(1), f.window.closeCalls.Load(), "window closed on timeout")
}

func TestLogin_SecondLoginRejectedWhilePending(t *testing.T) {
	f := newFixture(t)
	done := f.loginAsync(t)

	err := f.service.Login(context.Background())
	assert.Equal(t, passdoo.KindAuthInProgress, passdoo.KindOf(err))

	f.window.navigations <- testBaseURL + "/passdoo/api/extension/callback?token=first"
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, StateAuthenticated, f.service.State())
}

func TestLogin_FailureKeepsEarlierSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("existing"),
		IssuedAt:   time.Now(),
	}))

	done := f.loginAsync(t)
	f.window.userClose()

	assert.Error(t, waitErr(t, done))
	assert.Equal(t, StateAuthenticated, f.service.State())
	cred, err := f.service.CurrentCredential(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "existing", cred.Value)
}

func TestLogin_OpenErrorFails(t *testing.T) {
	f := newFixture(t)
	f.surface.openErr = errors.New("chrome not found")
	f.surface.opened = nil

	err := f.service.Login(context.Background())
	assert.Equal(t, passdoo.KindAuthFailed, passdoo.KindOf(err))
	assert.Equal(t, StateUnauthenticated, f.service.State())
}

func TestCheckAuthStatus_NoSession(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.service.CheckAuthStatus(context.Background()))
	assert.Equal(t, StateUnauthenticated, f.service.State())
}

func TestCheckAuthStatus_ValidSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
		IssuedAt:   time.Now(),
	}))

	assert.True(t, f.service.CheckAuthStatus(context.Background()))
	assert.Equal(t, StateAuthenticated, f.service.State())
}

func TestCheckAuthStatus_LocalTimeoutClearsCookieSession(t *testing.T) {
	f := newFixture(t)
	issued := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewSessionCookie("sess"),
		IssuedAt:   issued,
	}))
	f.service.now = func() time.Time { return issued.Add(31 * time.Minute) }

	assert.False(t, f.service.CheckAuthStatus(context.Background()))
	assert.Nil(t, f.sessions.record)
}

func TestCheckAuthStatus_BearerIgnoresLocalTimeout(t *testing.T) {
	f := newFixture(t)
	issued := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
		IssuedAt:   issued,
	}))
	f.service.now = func() time.Time { return issued.Add(24 * time.Hour) }

	assert.True(t, f.service.CheckAuthStatus(context.Background()))
}

func TestCheckAuthStatus_RejectedClearsSession(t *testing.T) {
	f := newFixture(t)
	f.api.valid = false
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
		IssuedAt:   time.Now(),
	}))

	assert.False(t, f.service.CheckAuthStatus(context.Background()))
	assert.Nil(t, f.sessions.record)
	assert.Equal(t, StateUnauthenticated, f.service.State())
}

func TestCheckAuthStatus_NetworkErrorTreatedAsUnauthenticated(t *testing.T) {
	f := newFixture(t)
	f.api.validateErr = passdoo.NewError(passdoo.KindNetworkUnreachable, "offline")
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
		IssuedAt:   time.Now(),
	}))

	assert.False(t, f.service.CheckAuthStatus(context.Background()))
	assert.Nil(t, f.sessions.record)
}

func TestCheckAuthStatus_VersionOutdatedLogsOut(t *testing.T) {
	f := newFixture(t)
	f.api.validateErr = passdoo.NewError(passdoo.KindVersionOutdated, "update")
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
		IssuedAt:   time.Now(),
	}))

	assert.False(t, f.service.CheckAuthStatus(context.Background()))
	assert.Nil(t, f.sessions.record)
	assert.Equal(t, 1, f.api.logouts)
}

func TestCheckAuthStatus_CallerCancellationKeepsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid":true}`))
	}))
	defer server.Close()

	f := newFixture(t)
	f.service = NewService(passdoo.NewClient(server.URL), f.sessions, f.surface, testConfig(), arbor.NewLogger())
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
		IssuedAt:   time.Now(),
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.False(t, f.service.CheckAuthStatus(ctx))
	assert.NotNil(t, f.sessions.record, "an abandoned check must not end the session")

	// A patient caller still sees the session as valid
	assert.True(t, f.service.CheckAuthStatus(context.Background()))
}

func TestLogout_ClearsEvenWhenRemoteFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
		IssuedAt:   time.Now(),
	}))

	var notified []State
	f.service.Subscribe(func(s State) { notified = append(notified, s) })

	f.service.Logout(context.Background())

	assert.Equal(t, 1, f.api.logouts)
	assert.Nil(t, f.sessions.record)
	assert.Equal(t, StateUnauthenticated, f.service.State())
	assert.Equal(t, []State{StateUnauthenticated}, notified)
}

func TestHandleAPIError_StaleCredentialKeepsNewerSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("new"),
		IssuedAt:   time.Now(),
	}))

	// A request made with the old credential fails late
	f.service.HandleAPIError(context.Background(), models.NewBearerToken("old"),
		passdoo.NewError(passdoo.KindUnauthorized, "invalid or expired credential"))

	cred, err := f.service.CurrentCredential(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "new", cred.Value)
}

func TestHandleAPIError_RejectionExpiresSession(t *testing.T) {
	f := newFixture(t)
	cred := models.NewSessionCookie("sess")
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{Credential: cred, IssuedAt: time.Now()}))

	f.service.HandleAPIError(context.Background(), cred, passdoo.NewError(passdoo.KindSessionInvalid, "html"))
	assert.Nil(t, f.sessions.record)
	assert.Equal(t, StateUnauthenticated, f.service.State())
}

func TestHandleAPIError_TransientKeepsSession(t *testing.T) {
	f := newFixture(t)
	cred := models.NewBearerToken("tok")
	require.NoError(t, f.sessions.SaveSession(context.Background(), &models.SessionRecord{Credential: cred, IssuedAt: time.Now()}))

	f.service.HandleAPIError(context.Background(), cred, passdoo.NewError(passdoo.KindServerUnavailable, "502"))
	f.service.HandleAPIError(context.Background(), cred, passdoo.NewError(passdoo.KindNetworkUnreachable, "offline"))
	assert.NotNil(t, f.sessions.record)
}

func TestAdopt(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, passdoo.KindInvalidRequest, passdoo.KindOf(f.service.Adopt(context.Background(), models.NewBearerToken(""))))

	f.api.valid = false
	assert.Equal(t, passdoo.KindAuthFailed, passdoo.KindOf(f.service.Adopt(context.Background(), models.NewBearerToken("bad"))))
	assert.Nil(t, f.sessions.record)

	f.api.valid = true
	var notified []State
	unsubscribe := f.service.Subscribe(func(s State) { notified = append(notified, s) })
	require.NoError(t, f.service.Adopt(context.Background(), models.NewBearerToken("good")))
	assert.Equal(t, StateAuthenticated, f.service.State())
	assert.Equal(t, []State{StateAuthenticated}, notified)

	// Switching credentials notifies even though the state is unchanged
	require.NoError(t, f.service.Adopt(context.Background(), models.NewBearerToken("other")))
	assert.Len(t, notified, 2)

	unsubscribe()
	f.service.Logout(context.Background())
	assert.Len(t, notified, 2)
}

func TestNewService_InitialStateFromStorage(t *testing.T) {
	sessions := &fakeSessions{}
	require.NoError(t, sessions.SaveSession(context.Background(), &models.SessionRecord{
		Credential: models.NewBearerToken("tok"),
		IssuedAt:   time.Now(),
	}))

	service := NewService(&fakeAPI{}, sessions, &fakeSurface{}, Config{}, arbor.NewLogger())
	assert.Equal(t, StateAuthenticated, service.State())
	assert.True(t, service.State().Authenticated())
}
