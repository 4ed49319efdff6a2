package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/appointment-notifications/internal/auth"
)

func listNotificationsHandler(history NotificationHistory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := auth.PrincipalFrom(r.Context())

		list, err := history.History(r.Context(), caller.ID)
		if err != nil {
			logger.Error("list notifications failed", zap.Int64("user_id", caller.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "could not load notifications")
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}
