// Package httpapi exposes the core operations over HTTP. It is glue:
// every handler parses, delegates to a core component, and encodes.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/motdiem/email-kanban/internal/account"
	"github.com/motdiem/email-kanban/internal/dispatch"
	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/oauth"
	"github.com/motdiem/email-kanban/internal/provider"
	"github.com/motdiem/email-kanban/internal/store"
	"github.com/motdiem/email-kanban/internal/synccache"
	"github.com/motdiem/email-kanban/internal/token"
)

const maxBodyBytes = 1 << 20

// Server routes HTTP requests to the core components.
type Server struct {
	registry   *account.Registry
	cache      *synccache.Cache
	dispatcher *dispatch.Dispatcher
	tokens     *token.Store
	exchanger  *oauth.Exchanger
	logger     *slog.Logger
}

// New creates an HTTP server over the core components.
func New(
	registry *account.Registry,
	cache *synccache.Cache,
	dispatcher *dispatch.Dispatcher,
	tokens *token.Store,
	exchanger *oauth.Exchanger,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:   registry,
		cache:      cache,
		dispatcher: dispatcher,
		tokens:     tokens,
		exchanger:  exchanger,
		logger:     logger,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case path == "/config" && r.Method == http.MethodGet:
		s.handlePublicConfig(w)

	case path == "/accounts" && r.Method == http.MethodGet:
		s.handleListAccounts(w, r)
	case path == "/accounts" && r.Method == http.MethodPost:
		s.handleCreateAccount(w, r)
	case path == "/accounts/reorder" && r.Method == http.MethodPost:
		s.handleReorder(w, r)

	case path == "/export" && r.Method == http.MethodGet:
		s.handleExport(w, r)
	case path == "/import" && r.Method == http.MethodPost:
		s.handleImport(w, r)

	case strings.HasPrefix(path, "/accounts/"):
		s.routeAccount(w, r, strings.TrimPrefix(path, "/accounts/"))

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// routeAccount dispatches /accounts/{id}... paths.
func (s *Server) routeAccount(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	accountID := parts[0]
	if accountID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			s.handleGetAccount(w, r, accountID)
		case http.MethodPatch:
			s.handleUpdateAccount(w, r, accountID)
		case http.MethodDelete:
			s.handleDeleteAccount(w, r, accountID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}

	case len(parts) == 2 && parts[1] == "items" && r.Method == http.MethodGet:
		s.handleGetItems(w, r, accountID)
	case len(parts) == 2 && parts[1] == "sync" && r.Method == http.MethodPost:
		s.handleForceRefresh(w, r, accountID)
	case len(parts) == 2 && parts[1] == "credential" && r.Method == http.MethodPost:
		s.handleStoreCredential(w, r, accountID)
	case len(parts) == 2 && parts[1] == "authurl" && r.Method == http.MethodGet:
		s.handleAuthURL(w, r, accountID)

	case len(parts) == 4 && parts[1] == "items" && parts[3] == "action" && r.Method == http.MethodPost:
		s.handleAction(w, r, accountID, parts[2])

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handlePublicConfig reports the parameters a client needs to start a
// consent flow. Only client IDs, auth URLs and scopes appear; iCloud
// uses app-specific passwords instead of OAuth.
func (s *Server) handlePublicConfig(w http.ResponseWriter) {
	providers := make(map[string]interface{})
	for name, cfg := range s.exchanger.PublicConfig() {
		providers[name] = cfg
	}
	providers[string(model.ProviderICloud)] = map[string]interface{}{
		"requires_app_password": true,
		"help_url":              "https://support.apple.com/en-us/HT204397",
	}
	writeJSON(w, http.StatusOK, providers)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.registry.List(r.Context())
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var params account.CreateParams
	if !decodeBody(w, r, &params) {
		return
	}
	created, err := s.registry.Create(r.Context(), params)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"account": created})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request, id string) {
	acc, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": acc})
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request, id string) {
	var patch model.AccountPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	updated, err := s.registry.Update(r.Context(), id, patch)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": updated})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.registry.Delete(r.Context(), id); err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderedIDs []string `json:"ordered_ids"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.registry.Reorder(r.Context(), body.OrderedIDs); err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request, id string) {
	fetch := s.cache.GetItems
	if r.URL.Query().Get("refresh") == "1" {
		fetch = s.cache.ForceRefresh
	}
	result, err := fetch(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	if r.URL.Query().Get("grouped") == "1" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"days":       model.GroupByDay(result.Items, s.cache.Location()),
			"fetched_at": result.FetchedAt,
			"stale":      result.Stale,
		})
		return
	}
	writeItemsResult(w, result)
}

func (s *Server) handleForceRefresh(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.cache.ForceRefresh(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeItemsResult(w, result)
}

func (s *Server) handleStoreCredential(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	acc, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	var cred model.Credential
	switch {
	case body.Password != "":
		cred = model.Credential{AccountID: acc.ID, Password: body.Password}
	case body.Code != "":
		cred, err = s.exchanger.ExchangeCode(r.Context(), acc.Provider, acc.ID, body.Code)
		if err != nil {
			s.writeCoreError(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "either code or password is required")
		return
	}

	if err := s.tokens.Put(r.Context(), cred); err != nil {
		s.writeCoreError(w, err)
		return
	}
	if err := s.cache.Invalidate(r.Context(), acc.ID); err != nil {
		s.logger.Warn("invalidating cache after credential update", "account", acc.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request, id string) {
	acc, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	url, err := s.exchanger.AuthURL(acc.Provider, r.URL.Query().Get("state"))
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, accountID, itemID string) {
	var req dispatch.Request
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := s.dispatcher.PerformAction(r.Context(), accountID, itemID, req)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"item": item})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.registry.Export(r.Context())
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body")
		return
	}
	count, err := s.registry.Import(r.Context(), data)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

// writeCoreError maps core error taxonomy to HTTP status codes.
func (s *Server) writeCoreError(w http.ResponseWriter, err error) {
	var rateErr *provider.RateLimitError
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, provider.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, token.ErrNoCredential),
		errors.Is(err, token.ErrCredentialExpired),
		errors.Is(err, token.ErrCredentialRevoked),
		provider.IsAuthError(err):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
		}
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, provider.ErrUnsupported),
		errors.Is(err, account.ErrInvalid),
		errors.Is(err, oauth.ErrRefreshRejected):
		writeError(w, http.StatusBadRequest, err.Error())
	case provider.IsUnavailable(err):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeItemsResult(w http.ResponseWriter, result synccache.Result) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":      result.Items,
		"fetched_at": result.FetchedAt,
		"stale":      result.Stale,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
