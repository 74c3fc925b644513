package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"villagewalks/backend/internal/clientsync"
	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/logging"
	"villagewalks/backend/internal/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	baseURL  string
	token    string
	timezone string
	days     int
	backoff  time.Duration
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "villagewatch",
		Short: "Follow live slot and reservation changes of a village",
	}
	rootCmd.PersistentFlags().StringVar(&baseURL, "api", "http://localhost:8080", "API base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("VILLAGEWATCH_TOKEN"), "ID token (or VILLAGEWATCH_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&timezone, "tz", "Europe/Paris", "timezone of reservation dates")
	rootCmd.PersistentFlags().IntVar(&days, "days", 7, "number of days to show, starting today")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(bookCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	log     *zap.Logger
	clock   clock.Clock
	loc     *time.Location
	session clientsync.Session
	from    string
	to      string
}

func setup() (*app, error) {
	logger, err := logging.New(logLevel, "console")
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	if days < 1 {
		days = 1
	}
	clk := clock.Real{}
	today := clk.Now().In(loc)
	return &app{
		log:     logger,
		clock:   clk,
		loc:     loc,
		session: clientsync.Session{BaseURL: baseURL, Token: token},
		from:    today.Format(utils.DateLayout),
		to:      today.AddDate(0, 0, days-1).Format(utils.DateLayout),
	}, nil
}

func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ws"
	return u.String(), nil
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch VILLAGE",
		Short: "Keep a reconciled view of a village and print every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			village := utils.NormalizeVillage(args[0])

			ws, err := wsURL(baseURL)
			if err != nil {
				return fmt.Errorf("api url: %w", err)
			}

			proj := clientsync.NewProjection(a.clock, a.loc)
			booker := clientsync.NewBooker(clientsync.NewAPI(nil), a.session, proj, village, a.from, a.to, a.log)

			conn := clientsync.NewConnManager(clientsync.ConnConfig{
				URL:     ws,
				Token:   token,
				Village: village,
				Backoff: backoff,
			}, a.clock, a.log)
			conn.OnStateChange(func(s clientsync.State) {
				fmt.Printf("[%s] channel %s\n", a.clock.Now().In(a.loc).Format("15:04:05"), s)
			})
			conn.OnConnect(func(ctx context.Context) {
				booker.Refresh(ctx)
				printSummary(proj, village)
			})
			conn.OnUpdate(func(r reservation.Reservation) {
				if proj.ApplyUpdate(r) {
					printUpdate(r, a.clock.Now(), a.loc)
				}
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := conn.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			conn.Stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&backoff, "backoff", clientsync.DefaultBackoff, "delay between reconnect attempts")
	return cmd
}

func bookCmd() *cobra.Command {
	var in reservation.CreateReservationInput
	cmd := &cobra.Command{
		Use:   "book VILLAGE DATE HH:00",
		Short: "Book a one-hour slot, then print the refreshed view",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()

			in.Village = utils.NormalizeVillage(args[0])
			in.Date = args[1]
			in.StartTime = args[2]

			proj := clientsync.NewProjection(a.clock, a.loc)
			booker := clientsync.NewBooker(clientsync.NewAPI(nil), a.session, proj, in.Village, in.Date, in.Date, a.log)
			r, err := booker.Book(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("booking failed: %w", err)
			}
			fmt.Printf("booked %s with %s (%s)\n", r.ID, r.VolunteerID, r.Status)
			printSummary(proj, in.Village)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.VolunteerID, "volunteer", "", "volunteer id; picked automatically when empty")
	cmd.Flags().StringVar(&in.DogID, "dog", "", "dog id (required)")
	_ = cmd.MarkFlagRequired("dog")
	return cmd
}

func printSummary(p *clientsync.Projection, village string) {
	fmt.Printf("== %s ==\n", village)
	for _, d := range p.Days() {
		free := []string{}
		for _, s := range d.Slots {
			if s.Bookable {
				free = append(free, s.Time)
			}
		}
		if len(free) == 0 {
			fmt.Printf("%s  no availability\n", d.Date)
			continue
		}
		fmt.Printf("%s  %s\n", d.Date, strings.Join(free, " "))
	}
	fmt.Printf("%d reservations\n", len(p.Reservations()))
}

func printUpdate(r reservation.Reservation, now time.Time, loc *time.Location) {
	fmt.Printf("[%s] %s %s %s-%s volunteer=%s %s (v%d)\n",
		now.In(loc).Format("15:04:05"),
		r.ID, r.ReservationDate, r.StartTime, r.EndTime,
		r.VolunteerID, reservation.DeriveStatus(r, now, loc), r.Version)
}
