package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/interfaces"
	"github.com/balduz84/passdoo/internal/metrics"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/balduz84/passdoo/internal/passdoo"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
)

// SessionManager is the part of the Session Manager the router drives
type SessionManager interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context)
	CheckAuthStatus(ctx context.Context) bool
	CurrentCredential(ctx context.Context) (*models.AuthCredential, error)
}

// PasswordCache is the Credential Cache as seen by the router
type PasswordCache interface {
	GetAll(ctx context.Context, search string, force bool) ([]models.PasswordRecord, error)
	GetByID(ctx context.Context, id int64) (*models.PasswordDetail, error)
	FindByURL(ctx context.Context, rawURL string) ([]models.PasswordRecord, error)
	Search(ctx context.Context, query string) ([]models.PasswordRecord, error)
	Create(ctx context.Context, input models.PasswordInput) (*models.PasswordRecord, error)
	Update(ctx context.Context, id int64, input models.PasswordInput) (*models.PasswordRecord, error)
	GetUser(ctx context.Context) (*models.UserInfo, error)
	GetClients(ctx context.Context) ([]models.Client, error)
	GetCategories(ctx context.Context) ([]models.Category, error)
	GetClientGroups(ctx context.Context, partnerID int64) (*models.ClientGroups, error)
}

// ErrorBody is the normalized failure shape returned to front-ends
type ErrorBody struct {
	Error   string          `json:"error"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// handlerFunc serves one action. raw is the whole message.
type handlerFunc func(ctx context.Context, raw json.RawMessage) (interface{}, error)

// Router dispatches front-end messages by action name
type Router struct {
	session  SessionManager
	cache    PasswordCache
	settings interfaces.SettingsStorage
	pending  interfaces.PendingStorage
	config   *common.Config
	validate *validator.Validate
	logger   arbor.ILogger
	handlers map[string]handlerFunc
}

// New creates the message router with the full action catalog
func New(session SessionManager, cache PasswordCache, storage interfaces.StorageManager, config *common.Config, logger arbor.ILogger) *Router {
	r := &Router{
		session:  session,
		cache:    cache,
		settings: storage.SettingsStorage(),
		pending:  storage.PendingStorage(),
		config:   config,
		validate: validator.New(),
		logger:   logger,
	}
	r.handlers = r.catalog()
	return r
}

// Actions lists the supported action names
func (r *Router) Actions() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle dispatches raw and always returns a payload: either the action
// result or an ErrorBody. Nothing escapes as a panic.
func (r *Router) Handle(ctx context.Context, raw []byte) interface{} {
	result, err := r.Dispatch(ctx, raw)
	if err != nil {
		return r.errorBody(ctx, err)
	}
	return result
}

// Dispatch looks up the handler for the message's action and runs it
func (r *Router) Dispatch(ctx context.Context, raw []byte) (result interface{}, err error) {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &passdoo.Error{Kind: passdoo.KindInvalidRequest, Message: "message is not valid JSON", Err: err}
	}

	action := envelope.Action
	handler, ok := r.handlers[action]
	if !ok {
		metrics.RecordMessage("unknown", false)
		return nil, passdoo.NewError(passdoo.KindUnknownAction, fmt.Sprintf("unknown action: %q", action))
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("action", action).
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack", common.GetStackTrace()).
				Msg("Recovered from panic in message handler")
			result = nil
			err = fmt.Errorf("internal error handling %s", action)
		}

		metrics.RecordMessage(action, err == nil)
		logEvent := r.logger.Debug()
		if err != nil {
			logEvent = r.logger.Warn().Err(err)
		}
		logEvent.
			Str("action", action).
			Dur("duration", time.Since(start)).
			Msg("Message handled")
	}()

	return handler(ctx, raw)
}

// errorBody normalizes err. VersionOutdated keeps the backend payload
// verbatim and forces a logout if a session is still stored.
func (r *Router) errorBody(ctx context.Context, err error) ErrorBody {
	perr, ok := passdoo.AsError(err)
	if !ok {
		return ErrorBody{Error: err.Error()}
	}

	if perr.Kind == passdoo.KindVersionOutdated {
		if cred, _ := r.session.CurrentCredential(ctx); cred != nil {
			r.session.Logout(ctx)
		}
		return ErrorBody{
			Error:   perr.Kind.Code(),
			Code:    perr.Kind.Code(),
			Message: perr.Message,
			Data:    perr.Data,
		}
	}

	return ErrorBody{
		Error: perr.Message,
		Code:  perr.Kind.Code(),
		Data:  perr.Data,
	}
}

// decode unmarshals the message into params and validates it
func (r *Router) decode(raw json.RawMessage, params interface{}) error {
	if err := json.Unmarshal(raw, params); err != nil {
		return &passdoo.Error{Kind: passdoo.KindInvalidRequest, Message: "invalid parameters", Err: err}
	}
	if err := r.validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &passdoo.Error{
				Kind:    passdoo.KindInvalidRequest,
				Message: fmt.Sprintf("invalid parameter %s: %s", verrs[0].Namespace(), verrs[0].Tag()),
				Err:     err,
			}
		}
		return &passdoo.Error{Kind: passdoo.KindInvalidRequest, Message: "invalid parameters", Err: err}
	}
	return nil
}
