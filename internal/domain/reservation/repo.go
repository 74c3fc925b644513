package reservation

import (
	"context"
	"fmt"

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

func (r *Repo) reservations() *firestore.CollectionRef {
	return r.fs.Collection("reservations")
}

// bookingLock is read and written by every booking transaction for a
// volunteer/day so concurrent inserts conflict and get retried.
func (r *Repo) bookingLock(volunteerID, date string) *firestore.DocumentRef {
	return r.fs.Collection("volunteers").Doc(volunteerID).Collection("bookingLocks").Doc(date)
}

// Insert runs check against the volunteer's reservations for the same date
// and creates res only if check passes, atomically.
func (r *Repo) Insert(ctx context.Context, res Reservation, check func(existing []Reservation) error) (*Reservation, error) {
	lock := r.bookingLock(res.VolunteerID, res.ReservationDate)
	var out Reservation

	err := r.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(lock); err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		q := r.reservations().
			Where("volunteerId", "==", res.VolunteerID).
			Where("reservationDate", "==", res.ReservationDate)
		docs, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		existing := make([]Reservation, 0, len(docs))
		for _, doc := range docs {
			var e Reservation
			if err := doc.DataTo(&e); err != nil {
				continue
			}
			e.ID = doc.Ref.ID
			existing = append(existing, e)
		}

		if err := check(existing); err != nil {
			return err
		}

		ref := r.reservations().NewDoc()
		out = res
		out.ID = ref.ID
		if err := tx.Set(lock, map[string]any{
			"volunteerId": res.VolunteerID,
			"date":        res.ReservationDate,
			"updatedAt":   res.CreatedAt,
		}); err != nil {
			return err
		}
		return tx.Create(ref, out)
	})
	if err != nil {
		if IsErrConflict(err) || IsErrBadRequest(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	return &out, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Reservation, error) {
	doc, err := r.reservations().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: reservation not found", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	var res Reservation
	if err := doc.DataTo(&res); err != nil {
		return nil, fmt.Errorf("failed to parse reservation: %w", err)
	}
	res.ID = doc.Ref.ID
	return &res, nil
}

// Mutate re-reads the reservation inside a transaction, applies fn and
// writes the result back.
func (r *Repo) Mutate(ctx context.Context, id string, fn func(Reservation) (Reservation, error)) (*Reservation, error) {
	ref := r.reservations().Doc(id)
	var out Reservation

	err := r.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: reservation not found", ErrNotFound)
		}
		if err != nil {
			return err
		}
		var cur Reservation
		if err := doc.DataTo(&cur); err != nil {
			return err
		}
		cur.ID = ref.ID

		next, err := fn(cur)
		if err != nil {
			return err
		}
		out = next
		return tx.Set(ref, next)
	})
	if err != nil {
		if IsErrNotFound(err) || IsErrConflict(err) || IsErrBadRequest(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update reservation: %w", err)
	}
	return &out, nil
}

// ListByVillage lists reservations of a village with from <= date <= to.
func (r *Repo) ListByVillage(ctx context.Context, village, from, to string) ([]Reservation, error) {
	q := r.reservations().
		Where("village", "==", village).
		Where("reservationDate", ">=", from).
		Where("reservationDate", "<=", to).
		OrderBy("reservationDate", firestore.Asc).
		OrderBy("startTime", firestore.Asc)
	return r.collect(ctx, q)
}

// ListByVolunteer lists a volunteer's reservations; empty bounds are open.
func (r *Repo) ListByVolunteer(ctx context.Context, volunteerID, from, to string) ([]Reservation, error) {
	q := r.reservations().Where("volunteerId", "==", volunteerID)
	if from != "" {
		q = q.Where("reservationDate", ">=", from)
	}
	if to != "" {
		q = q.Where("reservationDate", "<=", to)
	}
	q = q.OrderBy("reservationDate", firestore.Asc).OrderBy("startTime", firestore.Asc)
	return r.collect(ctx, q)
}

func (r *Repo) ListByClient(ctx context.Context, clientID string) ([]Reservation, error) {
	q := r.reservations().
		Where("clientId", "==", clientID).
		OrderBy("reservationDate", firestore.Asc).
		OrderBy("startTime", firestore.Asc)
	return r.collect(ctx, q)
}

func (r *Repo) collect(ctx context.Context, q firestore.Query) ([]Reservation, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	out := []Reservation{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate reservations: %w", err)
		}
		var res Reservation
		if err := doc.DataTo(&res); err != nil {
			continue
		}
		res.ID = doc.Ref.ID
		out = append(out, res)
	}
	return out, nil
}
