package app

import (
	"context"
	"crypto/hmac"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"checklists/api/internal/auth"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"checks": map[string]any{"store": map[string]any{"status": "error"}},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"checks": map[string]any{"store": map[string]any{"status": "ok"}},
	})
}

// handleIdentityUser is the hand-off from the sign-in layer: it registers
// or refreshes the user and mints their bearer token.
func (s *HTTPServer) handleIdentityUser(w http.ResponseWriter, r *http.Request) {
	if s.opts.IdentityKey == "" {
		writeError(w, http.StatusNotFound, string(KindNotFound), "Not found", nil)
		return
	}
	presented := r.Header.Get("X-Identity-Key")
	if !hmac.Equal([]byte(presented), []byte(s.opts.IdentityKey)) {
		s.writeErr(w, unauthorized())
		return
	}

	var input EnsureUserInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	user, err := s.service.EnsureUser(r.Context(), originOf(r), input)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	expiresAt := time.Now().Add(s.opts.TokenTTL)
	token, err := s.opts.Tokens.Issue(auth.Claims{
		Sub:   strconv.FormatInt(user.ID, 10),
		Email: user.Email,
		Name:  user.Name,
		JTI:   uuid.NewString(),
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		s.logger.Error("issue token failed", zap.Int64("user_id", user.ID), zap.Error(err))
		s.writeErr(w, storageFailure())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         userView(user),
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt.UTC(),
	})
}

func (s *HTTPServer) handlePublicChecklist(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetPublicChecklist(r.Context(), strings.ToLower(chi.URLParam(r, "token")))
	s.respond(w, http.StatusOK, view, err)
}

// Checklists

func (s *HTTPServer) handleListChecklists(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.ListChecklists(r.Context(), callerFrom(r), r.URL.Query().Get("search"), queryInt(r, "page", 1))
	s.respond(w, http.StatusOK, page, err)
}

func (s *HTTPServer) handleCreateChecklist(w http.ResponseWriter, r *http.Request) {
	var input ChecklistInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.CreateChecklist(r.Context(), callerFrom(r), input)
	s.respond(w, http.StatusCreated, view, err)
}

func (s *HTTPServer) handleListShared(w http.ResponseWriter, r *http.Request) {
	views, err := s.service.ListSharedChecklists(r.Context(), callerFrom(r))
	s.respond(w, http.StatusOK, map[string]any{"checklists": views}, err)
}

func (s *HTTPServer) handleListTrash(w http.ResponseWriter, r *http.Request) {
	views, err := s.service.ListTrash(r.Context(), callerFrom(r))
	s.respond(w, http.StatusOK, map[string]any{"checklists": views}, err)
}

func (s *HTTPServer) handleGetChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	detail, err := s.service.GetChecklist(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, detail, err)
}

func (s *HTTPServer) handleUpdateChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input ChecklistInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.UpdateChecklist(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusOK, view, err)
}

func (s *HTTPServer) handleDeleteChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	err = s.service.DeleteChecklist(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleRestoreChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.RestoreChecklist(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, view, err)
}

// Sections

func (s *HTTPServer) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input SectionInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.CreateSection(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusCreated, view, err)
}

func (s *HTTPServer) handleReorderSections(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input ReorderInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	err = s.service.ReorderSections(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleRenameSection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input SectionInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.RenameSection(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusOK, view, err)
}

func (s *HTTPServer) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	err = s.service.DeleteSection(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, map[string]any{"ok": true}, err)
}

// Items

func (s *HTTPServer) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input ItemInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.CreateItem(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusCreated, view, err)
}

func (s *HTTPServer) handleReorderItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input ReorderInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	err = s.service.ReorderItems(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input ItemInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.UpdateItem(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusOK, view, err)
}

func (s *HTTPServer) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	err = s.service.DeleteItem(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleToggleItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.ToggleItem(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, view, err)
}

func (s *HTTPServer) handleBulkItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input BulkItemsInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	result, err := s.service.BulkUpdateItems(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusOK, result, err)
}

// Tags

func (s *HTTPServer) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.service.ListTags(r.Context(), callerFrom(r))
	s.respond(w, http.StatusOK, map[string]any{"tags": tags}, err)
}

func (s *HTTPServer) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var input TagInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.CreateTag(r.Context(), callerFrom(r), input)
	s.respond(w, http.StatusCreated, view, err)
}

func (s *HTTPServer) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input TagInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.UpdateTag(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusOK, view, err)
}

func (s *HTTPServer) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	err = s.service.DeleteTag(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) itemAndTag(r *http.Request) (int64, int64, error) {
	itemID, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	tagID, err := pathID(r, "tagID")
	if err != nil {
		return 0, 0, err
	}
	return itemID, tagID, nil
}

func (s *HTTPServer) handleAssignTag(w http.ResponseWriter, r *http.Request) {
	itemID, tagID, err := s.itemAndTag(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	err = s.service.AssignTag(r.Context(), callerFrom(r), itemID, tagID)
	s.respond(w, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleUnassignTag(w http.ResponseWriter, r *http.Request) {
	itemID, tagID, err := s.itemAndTag(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	err = s.service.UnassignTag(r.Context(), callerFrom(r), itemID, tagID)
	s.respond(w, http.StatusOK, map[string]any{"ok": true}, err)
}

// Collaboration and sharing

func (s *HTTPServer) handleListCollaborators(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	members, err := s.service.ListCollaborators(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, map[string]any{"collaborators": members}, err)
}

func (s *HTTPServer) handleInviteCollaborator(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input InviteInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	member, err := s.service.InviteCollaborator(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusCreated, member, err)
}

func (s *HTTPServer) checklistAndUser(r *http.Request) (int64, int64, error) {
	checklistID, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		return 0, 0, err
	}
	return checklistID, userID, nil
}

func (s *HTTPServer) handleChangeCollaboratorRole(w http.ResponseWriter, r *http.Request) {
	checklistID, userID, err := s.checklistAndUser(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input RoleInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	member, err := s.service.ChangeCollaboratorRole(r.Context(), callerFrom(r), checklistID, userID, input)
	s.respond(w, http.StatusOK, member, err)
}

func (s *HTTPServer) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	checklistID, userID, err := s.checklistAndUser(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	err = s.service.RemoveCollaborator(r.Context(), callerFrom(r), checklistID, userID)
	s.respond(w, http.StatusOK, map[string]any{"ok": true}, err)
}

func (s *HTTPServer) handleEnableSharing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.EnablePublicSharing(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, view, err)
}

func (s *HTTPServer) handleDisableSharing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.DisablePublicSharing(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, view, err)
}

// Admin

func (s *HTTPServer) handleHardDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	result, err := s.service.HardDeleteChecklist(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, result, err)
}

func (s *HTTPServer) handleRecover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	view, err := s.service.RecoverChecklist(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, view, err)
}

func (s *HTTPServer) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	query := AuditQuery{
		EventType: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("event_type"))),
		Page:      queryInt(r, "page", 1),
		PerPage:   queryInt(r, "per_page", 0),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeErr(w, invalidInput("Invalid user_id", nil))
			return
		}
		query.UserID = &userID
	}
	page, err := s.service.ListAuditLog(r.Context(), callerFrom(r), query)
	s.respond(w, http.StatusOK, page, err)
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var input UserUpdateInput
	if err := decodeBody(r, &input); err != nil {
		s.writeErr(w, err)
		return
	}
	user, err := s.service.UpdateUser(r.Context(), callerFrom(r), id, input)
	s.respond(w, http.StatusOK, user, err)
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, err)
		return
	}
	result, err := s.service.DeleteUser(r.Context(), callerFrom(r), id)
	s.respond(w, http.StatusOK, result, err)
}
