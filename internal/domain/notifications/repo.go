package notifications

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) notificationsCol(uid string) *firestore.CollectionRef {
	return r.fs.Collection("users").Doc(uid).Collection("notifications")
}

func (r *Repo) Add(ctx context.Context, uid string, n Notification) error {
	ref := r.notificationsCol(uid).NewDoc()
	n.ID = ref.ID
	if _, err := ref.Set(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// List returns the newest notifications first.
func (r *Repo) List(ctx context.Context, uid string, limit int) ([]Notification, error) {
	iter := r.notificationsCol(uid).OrderBy("createdAt", firestore.Desc).Limit(limit).Documents(ctx)
	defer iter.Stop()

	out := []Notification{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get notifications: %w", err)
		}
		var n Notification
		if err := doc.DataTo(&n); err != nil {
			continue
		}
		n.ID = doc.Ref.ID
		out = append(out, n)
	}
	return out, nil
}
