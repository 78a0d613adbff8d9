package main

import (
	"net/http"

	"golang.org/x/exp/slog"
)

type HandleCreateSubscriptionResponse struct {
	Message string       `json:"message"`
	ID      int64        `json:"id"`
	Item    Subscription `json:"item"`
}

type HandleUpdateSubscriptionResponse struct {
	Message string       `json:"message"`
	Item    Subscription `json:"item"`
}

func (s *APIServer) HandleListSubscriptions(userID int64, w http.ResponseWriter, r *http.Request) error {
	items, err := s.db.ListSubscriptions(r.Context(), userID)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, items)
}

func (s *APIServer) HandleCreateSubscription(userID int64, w http.ResponseWriter, r *http.Request) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}

	sub, err := ParseNewSubscription(body)
	if err != nil {
		return err
	}

	sub.UserID = userID

	created, err := s.db.CreateSubscription(r.Context(), sub)
	if err != nil {
		return err
	}

	slog.Debug("Created a subscription", "user_id", userID, "id", created.ID)

	return writeJSON(w, http.StatusCreated, HandleCreateSubscriptionResponse{
		Message: "Subscription added",
		ID:      created.ID,
		Item:    created,
	})
}

func (s *APIServer) HandleGetSubscription(userID int64, w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	sub, err := s.db.GetSubscription(r.Context(), userID, id)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, sub)
}

func (s *APIServer) HandleUpdateSubscription(userID int64, w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	body, err := readBody(w, r)
	if err != nil {
		return err
	}

	patch, err := ParseSubscriptionPatch(body)
	if err != nil {
		return err
	}

	updated, err := s.db.UpdateSubscription(r.Context(), userID, id, patch)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, HandleUpdateSubscriptionResponse{
		Message: "Subscription updated",
		Item:    updated,
	})
}

func (s *APIServer) HandleDeleteSubscription(userID int64, w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	if err := s.db.DeleteSubscription(r.Context(), userID, id); err != nil {
		return err
	}

	slog.Debug("Deleted a subscription", "user_id", userID, "id", id)

	return writeJSON(w, http.StatusOK, messageResponse{Message: "Subscription deleted"})
}
