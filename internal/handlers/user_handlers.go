package handlers

import (
	"log"
	"net/http"

	"buddywalk/internal/api"
	"buddywalk/internal/engine/actors"
	"buddywalk/internal/models"
	"buddywalk/internal/utils"
)

// HandleUserRegistration creates an account, optionally with a keypair that
// was generated and wrapped on the registering device.
func (s *Server) HandleUserRegistration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.RegisterUserRequest
		if !s.decode(w, r, &req) {
			return
		}

		result, ok := s.ask(w, s.Engine.GetUserActor(), &actors.RegisterUserMsg{
			Name:                req.Name,
			DogName:             req.DogName,
			Email:               req.Email,
			Password:            req.Password,
			Gender:              req.Gender,
			VisibleToGender:     req.VisibleToGender,
			PublicKey:           req.PublicKey,
			EncryptedPrivateKey: req.EncryptedPrivateKey,
		})
		if !ok {
			return
		}

		writeJSON(w, http.StatusCreated, api.NewProfile(result.(*models.User)))
	}
}

// HandleUserLogin verifies credentials through the user actor and issues a
// bearer token. The wrapped private key travels back with the token so the
// client can unwrap it locally.
func (s *Server) HandleUserLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		if !s.decode(w, r, &req) {
			return
		}

		result, ok := s.ask(w, s.Engine.GetUserActor(), &actors.LoginMsg{
			Email:    req.Email,
			Password: req.Password,
		})
		if !ok {
			return
		}
		user := result.(*models.User)

		token, err := s.Tokens.GenerateToken(user.ID)
		if err != nil {
			log.Printf("HTTP Handler: Failed to generate token for %s: %v", user.ID, err)
			s.writeError(w, utils.NewAppError(utils.ErrDatabase, "Failed to generate token", err))
			return
		}

		writeJSON(w, http.StatusOK, api.LoginResponse{
			Success:             true,
			Token:               token,
			UserID:              user.ID.String(),
			PublicKey:           user.PublicKey,
			EncryptedPrivateKey: user.EncryptedPrivateKey,
		})
	}
}

func (s *Server) HandleUserProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}

		result, ok := s.ask(w, s.Engine.GetUserActor(), &actors.GetUserProfileMsg{UserID: userID})
		if !ok {
			return
		}

		writeJSON(w, http.StatusOK, api.NewProfile(result.(*models.User)))
	}
}

// HandleGetPublicKey returns a user's public key, or null when none has been
// issued yet.
func (s *Server) HandleGetPublicKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requester, ok := s.callerID(w, r)
		if !ok {
			return
		}

		result, ok := s.ask(w, s.Engine.GetUserActor(), &actors.GetPublicKeyMsg{
			RequesterID: requester,
			UserID:      r.PathValue("userId"),
		})
		if !ok {
			return
		}

		key := result.(*actors.PublicKeyResult)
		writeJSON(w, http.StatusOK, api.PublicKeyResponse{UserID: key.UserID, PublicKey: key.PublicKey})
	}
}

func (s *Server) HandleUploadKeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}
		var req api.UploadKeysRequest
		if !s.decode(w, r, &req) {
			return
		}

		if _, ok := s.ask(w, s.Engine.GetUserActor(), &actors.UploadKeysMsg{
			UserID:              userID,
			PublicKey:           req.PublicKey,
			EncryptedPrivateKey: req.EncryptedPrivateKey,
		}); !ok {
			return
		}

		writeJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	}
}

func (s *Server) HandleBlockUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}
		var req api.BlockRequest
		if !s.decode(w, r, &req) {
			return
		}

		if _, ok := s.ask(w, s.Engine.GetUserActor(), &actors.BlockUserMsg{UserID: userID, TargetID: req.UserID}); !ok {
			return
		}
		writeJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	}
}

func (s *Server) HandleUnblockUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}
		var req api.BlockRequest
		if !s.decode(w, r, &req) {
			return
		}

		if _, ok := s.ask(w, s.Engine.GetUserActor(), &actors.UnblockUserMsg{UserID: userID, TargetID: req.UserID}); !ok {
			return
		}
		writeJSON(w, http.StatusOK, api.SuccessResponse{Success: true})
	}
}

// HandleListBlocks lists the blocks the caller has placed.
func (s *Server) HandleListBlocks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.callerID(w, r)
		if !ok {
			return
		}

		result, ok := s.ask(w, s.Engine.GetUserActor(), &actors.ListBlocksMsg{UserID: userID})
		if !ok {
			return
		}

		blocks := result.([]*models.BlockRelation)
		if blocks == nil {
			blocks = []*models.BlockRelation{}
		}
		writeJSON(w, http.StatusOK, blocks)
	}
}
