package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"villagewalks/backend/internal/authctx"
	"villagewalks/backend/internal/config"
	"villagewalks/backend/internal/domain/user"
	"villagewalks/backend/internal/domain/volunteer"
	"villagewalks/backend/internal/firebase"

	"github.com/spf13/cobra"
)

var (
	uid        string
	role       string
	personalID string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "set-claims",
		Short: "Assign a role claim and, for volunteers, a Personal ID",
		Long: `Sets the Firebase custom claims that the API reads the caller role from,
mirrors the role on users/{uid}, and optionally approves a volunteer by
assigning the Personal ID that makes them eligible to offer slots.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	rootCmd.Flags().StringVar(&uid, "uid", "", "target firebase uid (required)")
	rootCmd.Flags().StringVar(&role, "role", string(authctx.RoleVolunteer), "client, volunteer or admin")
	rootCmd.Flags().StringVar(&personalID, "personal-id", "", "volunteer Personal ID to assign")
	_ = rootCmd.MarkFlagRequired("uid")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	switch authctx.Role(role) {
	case authctx.RoleClient, authctx.RoleVolunteer, authctx.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	if personalID != "" && authctx.Role(role) == authctx.RoleClient {
		return fmt.Errorf("--personal-id only applies to volunteers")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	app, err := firebase.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("firebase app: %w", err)
	}
	authClient, err := firebase.NewAuthClient(ctx, app)
	if err != nil {
		return fmt.Errorf("auth client: %w", err)
	}
	fs, err := firebase.NewFirestore(ctx, app)
	if err != nil {
		return fmt.Errorf("firestore: %w", err)
	}
	defer fs.Close()

	claims := map[string]any{"role": role}
	if authctx.Role(role) == authctx.RoleAdmin {
		claims["admin"] = true
	}
	if err := authClient.SetCustomUserClaims(ctx, uid, claims); err != nil {
		return fmt.Errorf("set custom claims: %w", err)
	}
	if err := user.NewRepo(fs.Client).SetRole(ctx, uid, role); err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	fmt.Printf("ok: role %s set for %s\n", role, uid)

	if personalID != "" {
		if err := volunteer.NewRepo(fs.Client).SetPersonalID(ctx, uid, personalID, time.Now().UTC()); err != nil {
			return fmt.Errorf("set personal id: %w", err)
		}
		fmt.Printf("ok: personal id %s assigned to %s\n", personalID, uid)
	}
	return nil
}
