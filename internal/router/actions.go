package router

import (
	"context"
	"encoding/json"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/balduz84/passdoo/internal/passdoo"
	"github.com/balduz84/passdoo/internal/services/generator"
)

type successResponse struct {
	Success bool `json:"success"`
}

type authResponse struct {
	Authenticated bool `json:"authenticated"`
}

type passwordsResponse struct {
	Passwords []models.PasswordRecord `json:"passwords"`
}

type passwordResponse struct {
	Password interface{} `json:"password"`
}

type pendingResponse struct {
	Pending bool `json:"pending"`
}

type configResponse struct {
	Config clientConfig `json:"config"`
}

type clientConfig struct {
	BaseURL               string `json:"baseUrl"`
	ClientVersion         string `json:"clientVersion"`
	CacheDurationMinutes  int    `json:"cacheDurationMinutes"`
	SessionTimeoutMinutes int    `json:"sessionTimeoutMinutes"`
	Version               string `json:"agentVersion"`
}

func (r *Router) catalog() map[string]handlerFunc {
	return map[string]handlerFunc{
		"login":                   r.login,
		"logout":                  r.logout,
		"checkAuth":               r.checkAuth,
		"getPasswords":            r.getPasswords,
		"getPasswordById":         r.getPasswordByID,
		"getPasswordsByUrl":       r.getPasswordsByURL,
		"searchPasswords":         r.searchPasswords,
		"getUserInfo":             r.getUserInfo,
		"createPassword":          r.createPassword,
		"updatePassword":          r.updatePassword,
		"saveCredentials":         r.saveCredentials,
		"getClients":              r.getClients,
		"getCategories":           r.getCategories,
		"getClientGroups":         r.getClientGroups,
		"generatePassword":        r.generatePassword,
		"getConfig":               r.getConfig,
		"getSettings":             r.getSettings,
		"saveSettings":            r.saveSettings,
		"getPendingCredentials":   r.getPendingCredentials,
		"clearPendingCredentials": r.clearPendingCredentials,
	}
}

// login runs the interactive login, then saves a credential captured
// while signed out.
func (r *Router) login(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	if err := r.session.Login(ctx); err != nil {
		return nil, err
	}
	r.PromotePending(ctx)
	return successResponse{Success: true}, nil
}

// PromotePending saves a credential captured while signed out. It runs
// after every successful sign-in, whichever surface started it, and
// reports whether a credential was saved.
func (r *Router) PromotePending(ctx context.Context) bool {
	pending, err := r.pending.GetPending(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to read pending credential")
		return false
	}
	if pending == nil {
		return false
	}

	if _, err := r.cache.Create(ctx, pending.ToPasswordInput()); err != nil {
		// Kept for the next login
		r.logger.Warn().Err(err).Msg("Failed to save pending credential")
		return false
	}
	if err := r.pending.ClearPending(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to clear pending credential")
	}
	r.logger.Info().Msg("Pending credential saved after login")
	return true
}

func (r *Router) logout(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	r.session.Logout(ctx)
	return successResponse{Success: true}, nil
}

func (r *Router) checkAuth(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return authResponse{Authenticated: r.session.CheckAuthStatus(ctx)}, nil
}

func (r *Router) getPasswords(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		Search       string `json:"search" validate:"max=256"`
		ForceRefresh bool   `json:"forceRefresh"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}

	records, err := r.cache.GetAll(ctx, params.Search, params.ForceRefresh)
	if err != nil {
		return nil, err
	}
	return passwordsResponse{Passwords: records}, nil
}

func (r *Router) getPasswordByID(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		ID models.OdooID `json:"id" validate:"required,gt=0"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}

	detail, err := r.cache.GetByID(ctx, int64(params.ID))
	if err != nil {
		return nil, err
	}
	return passwordResponse{Password: detail}, nil
}

func (r *Router) getPasswordsByURL(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}

	records, err := r.cache.FindByURL(ctx, params.URL)
	if err != nil {
		return nil, err
	}
	return passwordsResponse{Passwords: records}, nil
}

func (r *Router) searchPasswords(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		Query string `json:"query" validate:"required,max=256"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}

	records, err := r.cache.Search(ctx, params.Query)
	if err != nil {
		return nil, err
	}
	return passwordsResponse{Passwords: records}, nil
}

func (r *Router) getUserInfo(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	user, err := r.cache.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"user": user}, nil
}

func (r *Router) createPassword(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		PasswordData *models.PasswordInput `json:"passwordData" validate:"required"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}

	record, err := r.cache.Create(ctx, *params.PasswordData)
	if err != nil {
		return nil, err
	}
	return passwordResponse{Password: record}, nil
}

func (r *Router) updatePassword(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		ID           models.OdooID         `json:"id" validate:"required,gt=0"`
		PasswordData *models.PasswordInput `json:"passwordData" validate:"required"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}

	record, err := r.cache.Update(ctx, int64(params.ID), *params.PasswordData)
	if err != nil {
		return nil, err
	}
	return passwordResponse{Password: record}, nil
}

// saveCredentials creates the record when signed in, otherwise keeps the
// credential pending until the next login.
func (r *Router) saveCredentials(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		Credentials *models.PendingCredential `json:"credentials" validate:"required"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}

	cred, err := r.session.CurrentCredential(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		if err := r.pending.SetPending(ctx, params.Credentials); err != nil {
			return nil, err
		}
		return pendingResponse{Pending: true}, nil
	}

	record, err := r.cache.Create(ctx, params.Credentials.ToPasswordInput())
	if err != nil {
		return nil, err
	}
	return passwordResponse{Password: record}, nil
}

// getClients degrades to an empty list when signed out or on failure
func (r *Router) getClients(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	clients, err := r.cache.GetClients(ctx)
	if err != nil || clients == nil {
		r.logDegraded("getClients", err)
		clients = []models.Client{}
	}
	return map[string]interface{}{"clients": clients}, nil
}

func (r *Router) getCategories(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	categories, err := r.cache.GetCategories(ctx)
	if err != nil || categories == nil {
		r.logDegraded("getCategories", err)
		categories = []models.Category{}
	}
	return map[string]interface{}{"categories": categories}, nil
}

func (r *Router) getClientGroups(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		PartnerID models.OdooID `json:"partnerId"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}
	if params.PartnerID <= 0 {
		return models.DefaultClientGroups(), nil
	}

	groups, err := r.cache.GetClientGroups(ctx, int64(params.PartnerID))
	if err != nil || groups == nil {
		r.logDegraded("getClientGroups", err)
		return models.DefaultClientGroups(), nil
	}
	return groups, nil
}

func (r *Router) logDegraded(action string, err error) {
	if err == nil {
		return
	}
	r.logger.Debug().Err(err).Str("action", action).Msg("Returning empty result")
}

func (r *Router) generatePassword(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		Options generator.Options `json:"options"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}

	password, err := generator.Generate(params.Options)
	if err != nil {
		return nil, &passdoo.Error{Kind: passdoo.KindInvalidRequest, Message: err.Error(), Err: err}
	}
	return map[string]string{"password": password}, nil
}

func (r *Router) getConfig(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return configResponse{Config: clientConfig{
		BaseURL:               r.config.Passdoo.BaseURL,
		ClientVersion:         r.config.Passdoo.Version(),
		CacheDurationMinutes:  int(r.config.Cache.TTLDuration().Minutes()),
		SessionTimeoutMinutes: int(r.config.Auth.SessionTimeoutDuration().Minutes()),
		Version:               common.GetVersion(),
	}}, nil
}

func (r *Router) getSettings(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	settings, err := r.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"settings": settings}, nil
}

func (r *Router) saveSettings(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params struct {
		Settings *models.Settings `json:"settings" validate:"required"`
	}
	if err := r.decode(raw, &params); err != nil {
		return nil, err
	}

	if err := r.settings.SaveSettings(ctx, *params.Settings); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true, "settings": params.Settings}, nil
}

func (r *Router) getPendingCredentials(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	pending, err := r.pending.GetPending(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"credentials": pending}, nil
}

func (r *Router) clearPendingCredentials(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	if err := r.pending.ClearPending(ctx); err != nil {
		return nil, err
	}
	return successResponse{Success: true}, nil
}
