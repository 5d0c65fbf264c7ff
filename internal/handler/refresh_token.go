package handler

import (
	"fmt"
	"net/http"
)

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// RefreshToken issues a new access JWT for a valid session.
func RefreshToken(a Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := a.Sessions.Validate(r.Context(), SessionToken(r))
		if err != nil {
			WriteError(w, r, err)
			return
		}

		jwt, err := a.Tokens.MakeJWT(acct, a.AccessTTL)
		if err != nil {
			WriteError(w, r, fmt.Errorf("failed to create JWT: %w", err))
			return
		}

		a.Cookies.SetAccess(w, jwt, a.AccessTTL)
		WriteJSON(w, http.StatusOK, refreshResponse{
			AccessToken: jwt,
			ExpiresIn:   int(a.AccessTTL.Seconds()),
		})
	}
}
