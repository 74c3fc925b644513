package clientsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/domain/slots"
)

// Session identifies the caller on every request.
type Session struct {
	BaseURL string
	Token   string
}

// API is a thin client for the engine's HTTP surface.
type API struct {
	hc *http.Client
}

func NewAPI(hc *http.Client) *API {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &API{hc: hc}
}

func (a *API) Slots(ctx context.Context, s Session, village, from, to string) ([]slots.Day, error) {
	var out []slots.Day
	q := url.Values{"from": {from}, "to": {to}}
	err := a.do(ctx, s, http.MethodGet, "/v1/villages/"+url.PathEscape(village)+"/slots?"+q.Encode(), nil, &out)
	return out, err
}

func (a *API) VillageReservations(ctx context.Context, s Session, village, from, to string) ([]reservation.Reservation, error) {
	var out []reservation.Reservation
	q := url.Values{"from": {from}, "to": {to}}
	err := a.do(ctx, s, http.MethodGet, "/v1/villages/"+url.PathEscape(village)+"/reservations?"+q.Encode(), nil, &out)
	return out, err
}

func (a *API) MyReservations(ctx context.Context, s Session, as reservation.ListAs) ([]reservation.Reservation, error) {
	var out []reservation.Reservation
	q := url.Values{"as": {string(as)}}
	err := a.do(ctx, s, http.MethodGet, "/v1/reservations/mine?"+q.Encode(), nil, &out)
	return out, err
}

func (a *API) CreateReservation(ctx context.Context, s Session, in reservation.CreateReservationInput) (*reservation.Reservation, error) {
	var out reservation.Reservation
	if err := a.do(ctx, s, http.MethodPost, "/v1/reservations", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type apiError struct {
	Message string `json:"message"`
}

func (a *API) do(ctx context.Context, s Session, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(s.BaseURL, "/")+path, rdr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Message == "" {
			e.Message = resp.Status
		}
		return fmt.Errorf("%w: %s", statusErr(resp.StatusCode), e.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrTransient, path, err)
	}
	return nil
}

func statusErr(code int) error {
	switch {
	case code == http.StatusBadRequest:
		return ErrBadRequest
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	}
	return ErrTransient
}
