package handlers

import (
	"net/http"

	"buddywalk/internal/api"
	"buddywalk/internal/engine/actors"
	"buddywalk/internal/models"
)

// HandleSendMessage stores a message from the caller. Content is ciphertext
// when iv is set and plaintext otherwise.
func (s *Server) HandleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		senderID, ok := s.callerID(w, r)
		if !ok {
			return
		}
		var req api.SendMessageRequest
		if !s.decode(w, r, &req) {
			return
		}

		result, ok := s.ask(w, s.Engine.GetDirectMessageActor(), &actors.SendDirectMessageMsg{
			SenderID:   senderID,
			ReceiverID: req.ReceiverID,
			Content:    req.Content,
			IV:         req.IV,
		})
		if !ok {
			return
		}

		writeJSON(w, http.StatusCreated, result.(*models.DirectMessage))
	}
}

func (s *Server) HandleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}

		result, ok := s.ask(w, s.Engine.GetDirectMessageActor(), &actors.GetConversationMsg{
			UserID:  userID,
			OtherID: r.PathValue("userId"),
		})
		if !ok {
			return
		}

		writeJSON(w, http.StatusOK, result.(*models.History))
	}
}

func (s *Server) HandleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}

		if _, ok := s.ask(w, s.Engine.GetDirectMessageActor(), &actors.MarkConversationReadMsg{
			UserID:  userID,
			OtherID: r.PathValue("userId"),
		}); !ok {
			return
		}
		writeJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	}
}

// HandleUnreadCount returns the number of partners with unread messages.
func (s *Server) HandleUnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}

		result, ok := s.ask(w, s.Engine.GetDirectMessageActor(), &actors.GetUnreadCountMsg{UserID: userID})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, api.UnreadCountResponse{Count: result.(int)})
	}
}

func (s *Server) HandleInbox() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}

		result, ok := s.ask(w, s.Engine.GetDirectMessageActor(), &actors.GetInboxMsg{UserID: userID})
		if !ok {
			return
		}

		items := result.([]*models.InboxItem)
		if items == nil {
			items = []*models.InboxItem{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func (s *Server) HandlePartnerName() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}

		result, ok := s.ask(w, s.Engine.GetDirectMessageActor(), &actors.GetPartnerNameMsg{
			UserID:  userID,
			OtherID: r.PathValue("userId"),
		})
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, api.PartnerNameResponse{Name: result.(string)})
	}
}

// HandleDeleteMessage soft-deletes one of the caller's own messages.
func (s *Server) HandleDeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}

		if _, ok := s.ask(w, s.Engine.GetDirectMessageActor(), &actors.DeleteMessageMsg{
			MessageID: r.PathValue("id"),
			UserID:    userID,
		}); !ok {
			return
		}
		writeJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	}
}

// HandleDeleteConversation hides the conversation from the caller only.
func (s *Server) HandleDeleteConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}

		if _, ok := s.ask(w, s.Engine.GetDirectMessageActor(), &actors.DeleteConversationMsg{
			UserID:  userID,
			OtherID: r.PathValue("userId"),
		}); !ok {
			return
		}
		writeJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	}
}
