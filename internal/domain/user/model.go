package user

import "time"

// Profile is the users/{uid} document written by the sign-up flow. The
// backend reads it for contact details and push tokens.
type Profile struct {
	UID         string `firestore:"uid" json:"uid"`
	Email       string `firestore:"email,omitempty" json:"email,omitempty"`
	DisplayName string `firestore:"displayName,omitempty" json:"displayName,omitempty"`
	Role        string `firestore:"role,omitempty" json:"role,omitempty"`

	// FCMTokens are registered by the mobile/web clients.
	FCMTokens []string `firestore:"fcmTokens,omitempty" json:"-"`

	CreatedAt time.Time `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}
