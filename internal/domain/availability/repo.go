package availability

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

// windowsCollection returns the availability subcollection of a volunteer.
func (r *Repo) windowsCollection(volunteerID string) *firestore.CollectionRef {
	return r.fs.Collection("volunteers").Doc(volunteerID).Collection("availability")
}

// ListByVolunteer lists a volunteer's windows ordered by day, then start.
func (r *Repo) ListByVolunteer(ctx context.Context, volunteerID string) ([]Window, error) {
	q := r.windowsCollection(volunteerID).
		OrderBy("dayOfWeek", firestore.Asc).
		OrderBy("startTime", firestore.Asc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var windows []Window
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate availability: %w", err)
		}

		var w Window
		if err := doc.DataTo(&w); err != nil {
			continue
		}
		w.ID = doc.Ref.ID
		w.VolunteerID = volunteerID
		windows = append(windows, w)
	}

	if windows == nil {
		windows = []Window{}
	}
	return windows, nil
}

// Replace swaps the whole weekly schedule in one transaction.
func (r *Repo) Replace(ctx context.Context, volunteerID string, windows []Window, now time.Time) ([]Window, error) {
	col := r.windowsCollection(volunteerID)
	out := make([]Window, 0, len(windows))

	err := r.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		out = out[:0]
		existing, err := tx.Documents(col).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range existing {
			if err := tx.Delete(doc.Ref); err != nil {
				return err
			}
		}
		for _, w := range windows {
			ref := col.NewDoc()
			w.ID = ref.ID
			w.VolunteerID = volunteerID
			w.CreatedAt = now
			w.UpdatedAt = now
			if err := tx.Create(ref, w); err != nil {
				return err
			}
			out = append(out, w)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace availability: %w", err)
	}
	return out, nil
}
