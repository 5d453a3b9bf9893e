package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"atelier-dm/internal/domain"
	"atelier-dm/internal/service"
	"atelier-dm/internal/syncer"
)

// Contratos minimos que el handler necesita de los servicios.
type conversationResolver interface {
	GetOrCreate(ctx context.Context, participantA, participantB string) (domain.Conversation, error)
	Delete(ctx context.Context, conversationID, requesterID string) error
}

type messageSender interface {
	Send(ctx context.Context, conversationID, senderID, content string, media *domain.Media) (domain.Message, error)
}

type readMarker interface {
	MarkRead(ctx context.Context, conversationID, readerID string) error
}

// ConversationHandler mantiene dependencias para los endpoints de hilos
// directos que consume la capa de presentacion.
type ConversationHandler struct {
	logger        *zap.Logger
	sync          *syncer.Syncer
	conversations conversationResolver
	messages      messageSender
	reads         readMarker
}

// NewConversationHandler crea una instancia con las dependencias necesarias.
func NewConversationHandler(
	logger *zap.Logger,
	sync *syncer.Syncer,
	conversations conversationResolver,
	messages messageSender,
	reads readMarker,
) *ConversationHandler {
	return &ConversationHandler{
		logger:        logger,
		sync:          sync,
		conversations: conversations,
		messages:      messages,
		reads:         reads,
	}
}

// ensureIdentity alinea la identidad del syncer con la del request. El
// cambio de identidad tira abajo y reconstruye la suscripcion realtime.
func (h *ConversationHandler) ensureIdentity(c *gin.Context) (string, bool) {
	identity, ok := GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return "", false
	}
	if h.sync.Identity() != identity {
		if err := h.sync.SetIdentity(c.Request.Context(), identity); err != nil {
			h.logger.Error("identity switch failed", zap.Error(err), zap.String("user_id", identity))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load conversations"})
			return "", false
		}
	}
	return identity, true
}

// ListConversations maneja GET /conversations.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	if _, ok := h.ensureIdentity(c); !ok {
		return
	}
	c.JSON(http.StatusOK, h.sync.Snapshot())
}

// RefreshConversations maneja POST /conversations/refresh: un fetch forzado
// que saltea throttle y flag en vuelo.
func (h *ConversationHandler) RefreshConversations(c *gin.Context) {
	if _, ok := h.ensureIdentity(c); !ok {
		return
	}
	if err := h.sync.FetchAll(c.Request.Context(), true); err != nil {
		h.respondError(c, err, "could not refresh conversations")
		return
	}
	c.JSON(http.StatusOK, h.sync.Snapshot())
}

// ResolveConversation maneja POST /conversations/resolve: encuentra o crea
// el hilo canonico con el partner e inserta la vista de forma optimista.
func (h *ConversationHandler) ResolveConversation(c *gin.Context) {
	identity, ok := h.ensureIdentity(c)
	if !ok {
		return
	}

	var req struct {
		PartnerID string `json:"partner_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resolve request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	conv, err := h.conversations.GetOrCreate(c.Request.Context(), identity, req.PartnerID)
	if err != nil {
		h.respondError(c, err, "could not resolve conversation")
		return
	}

	h.sync.AddConversation(domain.ConversationView{
		Conversation: conv,
		Partner:      domain.User{ID: conv.OtherParticipant(identity)},
	})

	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// SendMessage maneja POST /conversations/:id/messages.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	identity, ok := h.ensureIdentity(c)
	if !ok {
		return
	}

	var req struct {
		Content string        `json:"content"`
		Media   *domain.Media `json:"media"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid send request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), c.Param("id"), identity, req.Content, req.Media)
	if err != nil {
		h.respondError(c, err, "could not send message")
		return
	}

	h.sync.UpdateConversationWithMessage(msg.ConversationID, msg)

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkConversationRead maneja POST /conversations/:id/read.
func (h *ConversationHandler) MarkConversationRead(c *gin.Context) {
	identity, ok := h.ensureIdentity(c)
	if !ok {
		return
	}

	conversationID := c.Param("id")
	if err := h.reads.MarkRead(c.Request.Context(), conversationID, identity); err != nil {
		h.respondError(c, err, "could not mark conversation read")
		return
	}

	h.sync.MarkConversationAsRead(conversationID)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ActivateConversation maneja POST /conversations/:id/activate.
func (h *ConversationHandler) ActivateConversation(c *gin.Context) {
	if _, ok := h.ensureIdentity(c); !ok {
		return
	}
	h.sync.SetActiveConversation(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// DeleteConversation maneja DELETE /conversations/:id.
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	identity, ok := h.ensureIdentity(c)
	if !ok {
		return
	}

	conversationID := c.Param("id")
	if err := h.conversations.Delete(c.Request.Context(), conversationID, identity); err != nil {
		h.respondError(c, err, "could not delete conversation")
		return
	}

	h.sync.RemoveConversation(conversationID)

	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrConversationInvalidInput),
		errors.Is(err, service.ErrMessageInvalidInput),
		errors.Is(err, service.ErrReadStateInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case domain.KindAuthorization:
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
	default:
		h.logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
