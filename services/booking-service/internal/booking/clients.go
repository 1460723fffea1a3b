package booking

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,62}[a-z0-9])$`)

type NewClient struct {
	Name        string
	BookingSlug string
	Timezone    string
	Email       string
	Phone       string
}

// ClientConfig is everything that shapes a client's availability.
type ClientConfig struct {
	Client   model.Client             `json:"client"`
	Settings model.ClientSettings     `json:"settings"`
	Rules    []model.AvailabilityRule `json:"availability"`
}

// CreateClient registers a client under agencyID with default settings and a
// Monday to Friday 09:00-17:00 week.
func (s *Service) CreateClient(ctx context.Context, agencyID string, in NewClient) (ClientConfig, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.BookingSlug = strings.ToLower(strings.TrimSpace(in.BookingSlug))
	in.Timezone = strings.TrimSpace(in.Timezone)
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}
	switch {
	case len([]rune(in.Name)) < 2:
		return ClientConfig{}, validationError("name must be at least 2 characters", map[string]any{"field": "name"})
	case !slugPattern.MatchString(in.BookingSlug):
		return ClientConfig{}, validationError("booking_slug must be 3-64 lowercase letters, digits or dashes", map[string]any{"field": "booking_slug"})
	case in.Email != "" && !validEmail(strings.TrimSpace(in.Email)):
		return ClientConfig{}, validationError("email is invalid", map[string]any{"field": "email"})
	}
	if _, err := time.LoadLocation(in.Timezone); err != nil {
		return ClientConfig{}, validationError("unknown timezone "+in.Timezone, map[string]any{"field": "timezone"})
	}

	id := uuid.NewString()
	client := model.Client{
		ID:          id,
		AgencyID:    agencyID,
		Name:        in.Name,
		BookingSlug: in.BookingSlug,
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		Timezone:    in.Timezone,
		IsActive:    true,
	}
	settings := model.DefaultSettings(id)
	rules := model.DefaultRules(id)
	created, err := s.store.CreateClient(ctx, client, settings, rules)
	if errors.Is(err, ErrDuplicate) {
		return ClientConfig{}, validationError("booking_slug is already taken", map[string]any{"field": "booking_slug"})
	}
	if err != nil {
		return ClientConfig{}, internal("create client", err)
	}
	return ClientConfig{Client: created, Settings: settings, Rules: rules}, nil
}

// ClientPatch carries the profile fields an owner may change. Nil fields are
// left as they are; the booking slug is fixed once created.
type ClientPatch struct {
	Name     *string
	Email    *string
	Phone    *string
	Timezone *string
	IsActive *bool
}

func (s *Service) ListClients(ctx context.Context, agencyID string) ([]model.Client, error) {
	clients, err := s.store.ListClients(ctx, agencyID)
	if err != nil {
		return nil, internal("list clients", err)
	}
	if clients == nil {
		clients = []model.Client{}
	}
	return clients, nil
}

// UpdateClient applies p to a client of agencyID. A timezone or activity
// change alters every cached grid, so the client's cache is dropped.
func (s *Service) UpdateClient(ctx context.Context, agencyID, clientID string, p ClientPatch) (model.Client, error) {
	client, err := s.ownedClient(ctx, agencyID, clientID)
	if err != nil {
		return model.Client{}, err
	}
	if p.Name != nil {
		client.Name = strings.TrimSpace(*p.Name)
		if len([]rune(client.Name)) < 2 {
			return model.Client{}, validationError("name must be at least 2 characters", map[string]any{"field": "name"})
		}
	}
	if p.Email != nil {
		client.Email = strings.TrimSpace(*p.Email)
		if client.Email != "" && !validEmail(client.Email) {
			return model.Client{}, validationError("email is invalid", map[string]any{"field": "email"})
		}
	}
	if p.Phone != nil {
		client.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Timezone != nil {
		client.Timezone = strings.TrimSpace(*p.Timezone)
		if _, err := time.LoadLocation(client.Timezone); err != nil || client.Timezone == "" {
			return model.Client{}, validationError("unknown timezone "+client.Timezone, map[string]any{"field": "timezone"})
		}
	}
	if p.IsActive != nil {
		client.IsActive = *p.IsActive
	}

	updated, err := s.store.UpdateClient(ctx, client)
	if errors.Is(err, ErrNotFound) {
		return model.Client{}, notFound("client")
	}
	if err != nil {
		return model.Client{}, internal("update client", err)
	}
	s.invalidateClient(ctx, updated.ID)
	return updated, nil
}

// DeleteClient removes a client of agencyID together with its settings,
// rules, appointments and busy blocks.
func (s *Service) DeleteClient(ctx context.Context, agencyID, clientID string) error {
	client, err := s.ownedClient(ctx, agencyID, clientID)
	if err != nil {
		return err
	}
	err = s.store.DeleteClient(ctx, client.ID)
	if errors.Is(err, ErrNotFound) {
		return notFound("client")
	}
	if err != nil {
		return internal("delete client", err)
	}
	s.logger.InfoContext(ctx, "client deleted", "client_id", client.ID, "agency_id", agencyID)
	s.invalidateClient(ctx, client.ID)
	return nil
}

func (s *Service) GetClientConfig(ctx context.Context, agencyID, clientID string) (ClientConfig, error) {
	client, err := s.ownedClient(ctx, agencyID, clientID)
	if err != nil {
		return ClientConfig{}, err
	}
	settings, err := s.store.Settings(ctx, client.ID)
	if err != nil {
		return ClientConfig{}, internal("load settings", err)
	}
	rules, err := s.store.Rules(ctx, client.ID)
	if err != nil {
		return ClientConfig{}, internal("load rules", err)
	}
	return ClientConfig{Client: client, Settings: settings, Rules: rules}, nil
}

// PutSettings replaces the client's booking policy. Existing appointments are
// untouched; the new values apply to later reads and bookings.
func (s *Service) PutSettings(ctx context.Context, agencyID, clientID string, in model.ClientSettings) (model.ClientSettings, error) {
	client, err := s.ownedClient(ctx, agencyID, clientID)
	if err != nil {
		return model.ClientSettings{}, err
	}
	in.ClientID = client.ID
	if err := in.Validate(); err != nil {
		return model.ClientSettings{}, fieldError(err)
	}
	if err := s.store.SaveSettings(ctx, in); err != nil {
		return model.ClientSettings{}, internal("save settings", err)
	}
	s.invalidateClient(ctx, client.ID)
	return in, nil
}

// PutAvailability replaces the weekly rules; at most one rule per weekday.
func (s *Service) PutAvailability(ctx context.Context, agencyID, clientID string, rules []model.AvailabilityRule) ([]model.AvailabilityRule, error) {
	client, err := s.ownedClient(ctx, agencyID, clientID)
	if err != nil {
		return nil, err
	}
	seen := map[int]bool{}
	out := make([]model.AvailabilityRule, 0, len(rules))
	for _, r := range rules {
		r.ClientID = client.ID
		if err := r.Validate(); err != nil {
			return nil, fieldError(err)
		}
		if seen[r.DayOfWeek] {
			return nil, validationError("duplicate rule for day_of_week", map[string]any{"day_of_week": r.DayOfWeek})
		}
		seen[r.DayOfWeek] = true
		out = append(out, r)
	}
	if err := s.store.ReplaceRules(ctx, client.ID, out); err != nil {
		return nil, internal("save rules", err)
	}
	s.invalidateClient(ctx, client.ID)
	return out, nil
}

// ApplyBusyBlock records or removes an externally synced busy interval.
func (s *Service) ApplyBusyBlock(ctx context.Context, b model.BusyBlock, deleted bool) error {
	client, err := s.store.ClientByRef(ctx, b.ClientID)
	if errors.Is(err, ErrNotFound) {
		return notFound("client")
	}
	if err != nil {
		return internal("load client", err)
	}
	b.ClientID = client.ID
	if deleted {
		prev, err := s.store.DeleteBusyBlock(ctx, client.ID, b.Source, b.ExternalID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return internal("delete busy block", err)
		}
		s.invalidate(ctx, client, prev.StartTime, prev.EndTime, 0)
		return nil
	}
	if b.ExternalID == "" || !b.EndTime.After(b.StartTime) {
		return validationError("busy block needs an external id and end after start", nil)
	}
	if err := s.store.UpsertBusyBlock(ctx, b); err != nil {
		return internal("save busy block", err)
	}
	// An update may have moved the block to another date.
	s.invalidateClient(ctx, client.ID)
	return nil
}

func fieldError(err error) *Error {
	var fe *model.FieldError
	if errors.As(err, &fe) {
		return validationError(fe.Error(), map[string]any{"field": fe.Field})
	}
	return validationError(err.Error(), nil)
}
