package volunteer

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) volunteers() *firestore.CollectionRef {
	return r.fs.Collection("volunteers")
}

func (r *Repo) Get(ctx context.Context, uid string) (*Volunteer, error) {
	doc, err := r.volunteers().Doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: volunteer not found", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get volunteer: %w", err)
	}

	var v Volunteer
	if err := doc.DataTo(&v); err != nil {
		return nil, fmt.Errorf("failed to parse volunteer: %w", err)
	}
	v.UID = doc.Ref.ID
	return &v, nil
}

// ListByVillage returns every volunteer whose covered villages include village.
func (r *Repo) ListByVillage(ctx context.Context, village string) ([]Volunteer, error) {
	iter := r.volunteers().Where("villages", "array-contains", village).Documents(ctx)
	defer iter.Stop()

	out := []Volunteer{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate volunteers: %w", err)
		}
		var v Volunteer
		if err := doc.DataTo(&v); err != nil {
			continue
		}
		v.UID = doc.Ref.ID
		out = append(out, v)
	}
	return out, nil
}

func (r *Repo) SetHolidayMode(ctx context.Context, uid string, on bool, now time.Time) error {
	_, err := r.volunteers().Doc(uid).Set(ctx, map[string]any{
		"uid":         uid,
		"holidayMode": on,
		"updatedAt":   now,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to update holiday mode: %w", err)
	}
	return nil
}

func (r *Repo) SetVillages(ctx context.Context, uid string, villages []string, now time.Time) error {
	_, err := r.volunteers().Doc(uid).Set(ctx, map[string]any{
		"uid":               uid,
		"villages":          villages,
		"villagesUpdatedAt": now,
		"updatedAt":         now,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to update villages: %w", err)
	}
	return nil
}

func (r *Repo) SetPersonalID(ctx context.Context, uid, personalID string, now time.Time) error {
	_, err := r.volunteers().Doc(uid).Set(ctx, map[string]any{
		"uid":        uid,
		"personalId": personalID,
		"updatedAt":  now,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to set personal id: %w", err)
	}
	return nil
}

// LinkBilling stores the Stripe identifiers produced by a completed checkout.
func (r *Repo) LinkBilling(ctx context.Context, uid, customerID, subscriptionID string, now time.Time) error {
	fields := map[string]any{"uid": uid, "updatedAt": now}
	if customerID != "" {
		fields["stripeCustomerId"] = customerID
	}
	if subscriptionID != "" {
		fields["stripeSubscriptionId"] = subscriptionID
	}
	if _, err := r.volunteers().Doc(uid).Set(ctx, fields, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to link billing ids: %w", err)
	}
	return nil
}

// ApplySubscription writes st to every volunteer matched by subscription id
// OR customer id, in one query, and returns the matched uids. Volunteers the
// match does not accept (see BillingMatch.Accepts) are left untouched.
func (r *Repo) ApplySubscription(ctx context.Context, m BillingMatch, st SubscriptionState, now time.Time) ([]string, error) {
	var filters []firestore.EntityFilter
	if m.SubscriptionID != "" {
		filters = append(filters, firestore.PropertyFilter{Path: "stripeSubscriptionId", Operator: "==", Value: m.SubscriptionID})
	}
	if m.CustomerID != "" {
		filters = append(filters, firestore.PropertyFilter{Path: "stripeCustomerId", Operator: "==", Value: m.CustomerID})
	}
	if len(filters) == 0 {
		return nil, nil
	}

	var q firestore.Query
	if len(filters) == 1 {
		q = r.volunteers().WhereEntity(filters[0])
	} else {
		q = r.volunteers().WhereEntity(firestore.OrFilter{Filters: filters})
	}

	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query volunteers by billing ids: %w", err)
	}

	updates := []firestore.Update{
		{Path: "paid", Value: st.Paid},
		{Path: "expiryDate", Value: st.ExpiryDate},
		{Path: "updatedAt", Value: now},
	}
	if st.SubscriptionID != "" {
		updates = append(updates, firestore.Update{Path: "stripeSubscriptionId", Value: st.SubscriptionID})
	}
	if st.CustomerID != "" {
		updates = append(updates, firestore.Update{Path: "stripeCustomerId", Value: st.CustomerID})
	}

	matched := make([]string, 0, len(docs))
	for _, doc := range docs {
		var v Volunteer
		if err := doc.DataTo(&v); err != nil {
			return matched, fmt.Errorf("failed to decode volunteer %s: %w", doc.Ref.ID, err)
		}
		if !m.Accepts(v, st) {
			continue
		}
		if _, err := doc.Ref.Update(ctx, updates); err != nil {
			return matched, fmt.Errorf("failed to update volunteer %s: %w", doc.Ref.ID, err)
		}
		matched = append(matched, doc.Ref.ID)
	}
	return matched, nil
}

// RecordSubscriptionEvent keys the audit entry by event id so redelivery
// overwrites rather than duplicates.
func (r *Repo) RecordSubscriptionEvent(ctx context.Context, uid string, ev SubscriptionEvent) error {
	_, err := r.volunteers().Doc(uid).Collection("subscriptionEvents").Doc(ev.EventID).Set(ctx, ev)
	if err != nil {
		return fmt.Errorf("failed to record subscription event: %w", err)
	}
	return nil
}
