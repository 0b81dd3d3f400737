// Package subject defines the (user, session) key that identifies one assessment run.
package subject

import "github.com/danielpatrickdp/assessment-engine/internal/apperr"

// Key identifies one assessment run. Both parts are opaque.
type Key struct {
	UserID    string `json:"user_id" yaml:"user"`
	SessionID string `json:"session_id" yaml:"session"`
}

// Validate rejects keys with an empty part.
func (k Key) Validate() error {
	if k.UserID == "" {
		return apperr.Validation("user_id is required")
	}
	if k.SessionID == "" {
		return apperr.Validation("session_id is required")
	}
	return nil
}

func (k Key) String() string {
	return k.UserID + "/" + k.SessionID
}
