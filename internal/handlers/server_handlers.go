package handlers

import (
	"net/http"

	"chat-gateway/internal/models"
	"chat-gateway/internal/services"
)

type ServerHandlers struct {
	invites    *services.InviteService
	moderation *services.ModerationService
	channels   *services.ChannelService
	direct     *services.DirectService
	messages   *services.MessageService
}

func NewServerHandlers(invites *services.InviteService, moderation *services.ModerationService,
	channels *services.ChannelService, direct *services.DirectService, messages *services.MessageService) *ServerHandlers {
	return &ServerHandlers{
		invites:    invites,
		moderation: moderation,
		channels:   channels,
		direct:     direct,
		messages:   messages,
	}
}

// AcceptInvite handles POST /invites/{code}/accept.
func (h *ServerHandlers) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	server, err := h.invites.Accept(r.Context(), r.PathValue("code"), UserID(r.Context()))
	if err != nil {
		fail(w, "Accept invite", err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

// KickMember handles POST /servers/{serverId}/members/{userId}/kick.
func (h *ServerHandlers) KickMember(w http.ResponseWriter, r *http.Request) {
	err := h.moderation.Kick(r.Context(), r.PathValue("serverId"), UserID(r.Context()), r.PathValue("userId"))
	if err != nil {
		fail(w, "Kick member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BanMember handles POST /servers/{serverId}/members/{userId}/ban. The body
// is optional.
func (h *ServerHandlers) BanMember(w http.ResponseWriter, r *http.Request) {
	var req models.BanRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	err := h.moderation.Ban(r.Context(), r.PathValue("serverId"), UserID(r.Context()), r.PathValue("userId"), req.Reason)
	if err != nil {
		fail(w, "Ban member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartThread handles POST /direct/threads.
func (h *ServerHandlers) StartThread(w http.ResponseWriter, r *http.Request) {
	var req models.StartThreadRequest
	if !decode(w, r, &req) {
		return
	}
	thread, err := h.direct.StartThread(r.Context(), UserID(r.Context()), req.UserID)
	if err != nil {
		fail(w, "Start thread", err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// SendMessage handles POST /channels/{channelId}/messages.
func (h *ServerHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.messages.Send(r.Context(), r.PathValue("channelId"), UserID(r.Context()), req.Content)
	if err != nil {
		fail(w, "Send message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// EditMessage handles PATCH /messages/{messageId}.
func (h *ServerHandlers) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.messages.Edit(r.Context(), r.PathValue("messageId"), UserID(r.Context()), req.Content)
	if err != nil {
		fail(w, "Edit message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// DeleteMessage handles DELETE /messages/{messageId}.
func (h *ServerHandlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.messages.Delete(r.Context(), r.PathValue("messageId"), UserID(r.Context())); err != nil {
		fail(w, "Delete message", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddReaction handles POST /messages/{messageId}/reactions.
func (h *ServerHandlers) AddReaction(w http.ResponseWriter, r *http.Request) {
	var req models.ReactionRequest
	if !decode(w, r, &req) {
		return
	}
	reaction, err := h.messages.AddReaction(r.Context(), r.PathValue("messageId"), UserID(r.Context()), req.Emoji)
	if err != nil {
		fail(w, "Add reaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, reaction)
}

// RemoveReaction handles DELETE /messages/{messageId}/reactions/{emoji}.
func (h *ServerHandlers) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	err := h.messages.RemoveReaction(r.Context(), r.PathValue("messageId"), UserID(r.Context()), r.PathValue("emoji"))
	if err != nil {
		fail(w, "Remove reaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateChannel handles POST /servers/{serverId}/channels.
func (h *ServerHandlers) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req models.CreateChannelRequest
	if !decode(w, r, &req) {
		return
	}
	ch, err := h.channels.Create(r.Context(), r.PathValue("serverId"), UserID(r.Context()), req)
	if err != nil {
		fail(w, "Create channel", err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

// UpdateChannel handles PATCH /channels/{channelId}.
func (h *ServerHandlers) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateChannelRequest
	if !decode(w, r, &req) {
		return
	}
	ch, err := h.channels.Update(r.Context(), r.PathValue("channelId"), UserID(r.Context()), req)
	if err != nil {
		fail(w, "Update channel", err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// DeleteChannel handles DELETE /channels/{channelId}.
func (h *ServerHandlers) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := h.channels.Delete(r.Context(), r.PathValue("channelId"), UserID(r.Context())); err != nil {
		fail(w, "Delete channel", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendDirectMessage handles POST /direct/threads/{threadId}/messages.
func (h *ServerHandlers) SendDirectMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.direct.Send(r.Context(), r.PathValue("threadId"), UserID(r.Context()), req.Content)
	if err != nil {
		fail(w, "Send direct message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// EditDirectMessage handles PATCH /direct/messages/{messageId}.
func (h *ServerHandlers) EditDirectMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.direct.Edit(r.Context(), r.PathValue("messageId"), UserID(r.Context()), req.Content)
	if err != nil {
		fail(w, "Edit direct message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// DeleteDirectMessage handles DELETE /direct/messages/{messageId}.
func (h *ServerHandlers) DeleteDirectMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.direct.Delete(r.Context(), r.PathValue("messageId"), UserID(r.Context())); err != nil {
		fail(w, "Delete direct message", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddDirectReaction handles POST /direct/messages/{messageId}/reactions.
func (h *ServerHandlers) AddDirectReaction(w http.ResponseWriter, r *http.Request) {
	var req models.ReactionRequest
	if !decode(w, r, &req) {
		return
	}
	reaction, err := h.direct.AddReaction(r.Context(), r.PathValue("messageId"), UserID(r.Context()), req.Emoji)
	if err != nil {
		fail(w, "Add direct reaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, reaction)
}

// RemoveDirectReaction handles DELETE /direct/messages/{messageId}/reactions/{emoji}.
func (h *ServerHandlers) RemoveDirectReaction(w http.ResponseWriter, r *http.Request) {
	err := h.direct.RemoveReaction(r.Context(), r.PathValue("messageId"), UserID(r.Context()), r.PathValue("emoji"))
	if err != nil {
		fail(w, "Remove direct reaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
