package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrNotFound = errors.New("not found")

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

func (r *Repo) Get(ctx context.Context, uid string) (*Profile, error) {
	doc, err := r.fs.Collection("users").Doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, uid)
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := doc.DataTo(&p); err != nil {
		return nil, err
	}
	if p.UID == "" {
		p.UID = uid
	}
	return &p, nil
}

func (r *Repo) SetRole(ctx context.Context, uid, role string) error {
	ref := r.fs.Collection("users").Doc(uid)
	_, err := ref.Set(ctx, map[string]any{
		"uid":       uid,
		"role":      role,
		"updatedAt": time.Now().UTC(),
	}, firestore.MergeAll)
	return err
}

// AddPushToken registers a messaging token on the user document.
func (r *Repo) AddPushToken(ctx context.Context, uid, token string) error {
	_, err := r.fs.Collection("users").Doc(uid).Set(ctx, map[string]any{
		"uid":       uid,
		"fcmTokens": firestore.ArrayUnion(token),
		"updatedAt": time.Now().UTC(),
	}, firestore.MergeAll)
	return err
}

func (r *Repo) RemovePushToken(ctx context.Context, uid, token string) error {
	_, err := r.fs.Collection("users").Doc(uid).Set(ctx, map[string]any{
		"fcmTokens": firestore.ArrayRemove(token),
		"updatedAt": time.Now().UTC(),
	}, firestore.MergeAll)
	return err
}
