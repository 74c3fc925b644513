package volunteer

import (
	"strings"
	"time"
)

// Volunteer is stored at volunteers/{uid}. Weekly availability lives in the
// availability subcollection.
type Volunteer struct {
	UID               string     `firestore:"uid" json:"uid"`
	DisplayName       string     `firestore:"displayName,omitempty" json:"displayName,omitempty"`
	PersonalID        string     `firestore:"personalId,omitempty" json:"personalId,omitempty"`
	Villages          []string   `firestore:"villages" json:"villages"`
	VillagesUpdatedAt *time.Time `firestore:"villagesUpdatedAt,omitempty" json:"villagesUpdatedAt,omitempty"`
	HolidayMode       bool       `firestore:"holidayMode" json:"holidayMode"`

	Paid                 bool       `firestore:"paid" json:"paid"`
	ExpiryDate           *time.Time `firestore:"expiryDate,omitempty" json:"expiryDate,omitempty"`
	StripeCustomerID     string     `firestore:"stripeCustomerId,omitempty" json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string     `firestore:"stripeSubscriptionId,omitempty" json:"stripeSubscriptionId,omitempty"`

	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// Approved is true once an administrator assigned a Personal ID.
func (v Volunteer) Approved() bool {
	return strings.TrimSpace(v.PersonalID) != ""
}

// SubscriptionValid reports whether the membership still counts at now. With
// no expiry recorded the paid flag decides; otherwise the membership runs
// until expiry plus the grace period, whatever the flag says.
func (v Volunteer) SubscriptionValid(now time.Time, grace time.Duration) bool {
	if v.ExpiryDate == nil {
		return v.Paid
	}
	return now.Before(v.ExpiryDate.Add(grace))
}

// Eligible reports whether the volunteer contributes slots at now.
func (v Volunteer) Eligible(now time.Time, grace time.Duration) bool {
	return v.Approved() && !v.HolidayMode && v.SubscriptionValid(now, grace)
}

func (v Volunteer) CoversVillage(village string) bool {
	for _, x := range v.Villages {
		if x == village {
			return true
		}
	}
	return false
}

// VillagesLockedUntil returns the end of the current cool-down, or nil when
// villages were never set.
func (v Volunteer) VillagesLockedUntil(cooldown time.Duration) *time.Time {
	if v.VillagesUpdatedAt == nil || len(v.Villages) == 0 {
		return nil
	}
	t := v.VillagesUpdatedAt.Add(cooldown)
	return &t
}

// Dashboard is the read model returned to the volunteer's own screens.
type Dashboard struct {
	Volunteer         Volunteer  `json:"volunteer"`
	Approved          bool       `json:"approved"`
	SubscriptionValid bool       `json:"subscriptionValid"`
	Eligible          bool       `json:"eligible"`
	VillagesLockedTil *time.Time `json:"villagesLockedUntil,omitempty"`
}

// BillingMatch selects volunteers by either stored billing identifier.
type BillingMatch struct {
	SubscriptionID string
	CustomerID     string
}

func (m BillingMatch) Empty() bool {
	return m.SubscriptionID == "" && m.CustomerID == ""
}

// Accepts reports whether st may be written to v. A volunteer reached only
// through its customer id keeps a different stored subscription unless the
// incoming one is live; late events from a replaced subscription are skipped.
func (m BillingMatch) Accepts(v Volunteer, st SubscriptionState) bool {
	if m.SubscriptionID != "" && v.StripeSubscriptionID == m.SubscriptionID {
		return true
	}
	if v.StripeSubscriptionID == "" || v.StripeSubscriptionID == st.SubscriptionID {
		return true
	}
	return st.Paid
}

// SubscriptionState is the full billing state written to matched volunteers.
// It is computed from the latest provider object, never as a delta.
type SubscriptionState struct {
	Paid           bool
	ExpiryDate     time.Time
	SubscriptionID string
	CustomerID     string
}

// SubscriptionEvent is the audit record kept per processed billing event.
type SubscriptionEvent struct {
	EventID        string    `firestore:"eventId" json:"eventId"`
	Type           string    `firestore:"type" json:"type"`
	SubscriptionID string    `firestore:"subscriptionId,omitempty" json:"subscriptionId,omitempty"`
	Status         string    `firestore:"status,omitempty" json:"status,omitempty"`
	Paid           bool      `firestore:"paid" json:"paid"`
	ExpiryDate     time.Time `firestore:"expiryDate" json:"expiryDate"`
	RecordedAt     time.Time `firestore:"recordedAt" json:"recordedAt"`
}

type SetHolidayInput struct {
	HolidayMode bool `json:"holidayMode"`
}

type SetVillagesInput struct {
	Villages []string `json:"villages"`
}

func (in *SetVillagesInput) Trim() {
	for i := range in.Villages {
		in.Villages[i] = strings.TrimSpace(in.Villages[i])
	}
}
