package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"helix/internal/auth"
	"helix/internal/config"
	"helix/internal/metrics"
	"helix/internal/models"
	"helix/internal/service/catalog"
	"helix/internal/service/chat"
	"helix/internal/service/conversation"
	"helix/internal/store"
)

// AuthHealthChecker pings the auth service's own health endpoint.
type AuthHealthChecker interface {
	Health(ctx context.Context) (int, string, error)
}

// Options collects the handler's collaborators. Catalog and Conversations are
// nil when no privileged store is available.
type Options struct {
	Chat          *chat.Service
	Catalog       *catalog.Service
	Conversations *conversation.Service
	Verifier      *auth.Verifier
	Supabase      config.SupabaseConfig
	AuthHealth    AuthHealthChecker
}

// Handler wires HTTP routes to the chat relay and the CRUD services.
type Handler struct {
	chat          *chat.Service
	catalog       *catalog.Service
	conversations *conversation.Service
	verifier      *auth.Verifier
	supabase      config.SupabaseConfig
	authHealth    AuthHealthChecker
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		chat:          opts.Chat,
		catalog:       opts.Catalog,
		conversations: opts.Conversations,
		verifier:      opts.Verifier,
		supabase:      opts.Supabase,
		authHealth:    opts.AuthHealth,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.GET("/health", h.health)
	api.POST("/chat", h.verifier.Optional(), h.relayChat)

	authed := api.Group("")
	authed.Use(h.verifier.Required(), h.requireStore())
	authed.GET("/universes", h.listUniverses)
	authed.GET("/universes/:id/characters", h.listCharacters)
	authed.POST("/users/sync", h.syncUser)
	authed.GET("/conversations", h.listConversations)
	authed.GET("/conversations/latest", h.latestConversation)
	authed.POST("/conversations", h.createConversation)
	authed.PATCH("/conversations/:id", h.updateConversation)
	authed.GET("/conversations/:id/messages", h.listMessages)
	authed.POST("/conversations/:id/messages", h.postMessage)
	authed.POST("/messages/:id/feedback", h.rateMessage)
}

func (h *Handler) requireStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.catalog == nil || h.conversations == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": chat.MsgMisconfigured})
			return
		}
		c.Next()
	}
}

func (h *Handler) caller(c *gin.Context) (*auth.Identity, bool) {
	ident, ok := auth.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return nil, false
	}
	return ident, true
}

// Chat relay

type chatResponse struct {
	OK             bool           `json:"ok"`
	ConversationID *string        `json:"conversationId"`
	Reply          string         `json:"reply"`
	Persona        models.Persona `json:"persona"`
	HistoryCount   int            `json:"historyCount"`
	AIMessageID    *string        `json:"aiMessageId"`
	UsedFallback   bool           `json:"usedFallback"`
}

func (h *Handler) relayChat(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		metrics.RecordChatOutcome(metrics.OutcomeInvalid)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	req, msg := decodeChatRequest(body)
	if msg != "" {
		metrics.RecordChatOutcome(metrics.OutcomeInvalid)
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if ident, ok := auth.IdentityFromContext(c); ok {
		req.UserID = ident.UserID
	}

	result, err := h.chat.Relay(c.Request.Context(), req)
	if err != nil {
		status, outcome := http.StatusInternalServerError, metrics.OutcomeMisconfigured
		switch {
		case errors.Is(err, chat.ErrInvalidInput):
			status, outcome = http.StatusBadRequest, metrics.OutcomeInvalid
		case errors.Is(err, chat.ErrUpstreamLookup):
			status, outcome = http.StatusBadRequest, metrics.OutcomeLookupError
		case errors.Is(err, chat.ErrServerMisconfigured):
		default:
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("chat relay failed")
		}
		metrics.RecordChatOutcome(outcome)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	outcome := metrics.OutcomeOK
	if result.UsedFallback {
		outcome = metrics.OutcomeFallback
	}
	metrics.RecordChatOutcome(outcome)
	c.JSON(http.StatusOK, chatResponse{
		OK:             true,
		ConversationID: nullable(result.ConversationID),
		Reply:          result.Reply,
		Persona:        result.Persona,
		HistoryCount:   result.HistoryCount,
		AIMessageID:    nullable(result.AIMessageID),
		UsedFallback:   result.UsedFallback,
	})
}

// decodeChatRequest reads a syntactically valid body. Any non-object body, or a
// text field that is not a string, is reported as invalid text; ids must be
// strings or null.
func decodeChatRequest(body []byte) (chat.Request, string) {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(body, &fields)

	var req chat.Request
	if raw, ok := fields["text"]; !ok || json.Unmarshal(raw, &req.Text) != nil || strings.TrimSpace(req.Text) == "" {
		return req, chat.MsgInvalidText
	}
	var ok bool
	if req.ConversationID, ok = optionalString(fields["conversationId"]); !ok {
		return req, "Invalid 'conversationId'"
	}
	if req.CharacterID, ok = optionalString(fields["characterId"]); !ok {
		return req, "Invalid 'characterId'"
	}
	return req, ""
}

func optionalString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Health

func (h *Handler) health(c *gin.Context) {
	if h.supabase.URL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Missing SUPABASE_URL"})
		return
	}
	if h.supabase.AnonKey == "" || h.authHealth == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Missing SUPABASE_ANON_KEY"})
		return
	}

	status, body, err := h.authHealth.Health(c.Request.Context())
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("auth health unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "service": "auth", "status": "unreachable"})
		return
	}
	ok := status >= 200 && status < 300
	code, state := http.StatusOK, "healthy"
	if !ok {
		code, state = http.StatusServiceUnavailable, "unhealthy"
	}
	c.JSON(code, gin.H{
		"ok":       ok,
		"service":  "auth",
		"status":   state,
		"upstream": gin.H{"status": status, "body": body},
	})
}

// Catalog

func (h *Handler) listUniverses(c *gin.Context) {
	universes, err := h.catalog.Universes(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"universes": universes})
}

func (h *Handler) listCharacters(c *gin.Context) {
	characters, err := h.catalog.Characters(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": characters})
}

// Users and conversations

func (h *Handler) syncUser(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	user := models.User{ID: ident.UserID, Email: ident.Email}
	if err := h.conversations.SyncUser(c.Request.Context(), user); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) listConversations(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	includeArchived, _ := strconv.ParseBool(c.Query("archived"))
	conversations, err := h.conversations.List(c.Request.Context(), ident.UserID, includeArchived)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *Handler) latestConversation(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	conv, err := h.conversations.Latest(c.Request.Context(), ident.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

type createConversationRequest struct {
	CharacterID string `json:"characterId"`
}

func (h *Handler) createConversation(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	conv, err := h.conversations.Create(c.Request.Context(), ident.UserID, req.CharacterID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

func (h *Handler) updateConversation(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	var patch models.ConversationPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	conv, err := h.conversations.Update(c.Request.Context(), ident.UserID, c.Param("id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

func (h *Handler) listMessages(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	messages, err := h.conversations.Messages(c.Request.Context(), ident.UserID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type postMessageRequest struct {
	Text string `json:"text"`
}

func (h *Handler) postMessage(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	msg, err := h.conversations.PostMessage(c.Request.Context(), ident.UserID, c.Param("id"), req.Text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

type feedbackRequest struct {
	Rating int `json:"rating"`
}

func (h *Handler) rateMessage(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if err := h.conversations.RateMessage(c.Request.Context(), ident.UserID, c.Param("id"), req.Rating); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps service errors onto status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, conversation.ErrInvalidInput), errors.Is(err, conversation.ErrUnknownCharacter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
