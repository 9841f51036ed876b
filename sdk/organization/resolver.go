// Package organization resolves the organization that owns a room subdomain.
package organization

import (
	"context"
	"errors"
	"net/http"

	"github.com/adwski/roomsdk/sdk/api"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/rs/zerolog"
)

var (
	ErrFetch    = errors.New("unable to fetch organization")
	ErrNotFound = errors.New("organization not found")
)

type (
	API interface {
		Do(ctx context.Context, method, path string, creds *model.Credentials, in, out any) error
	}

	Config struct {
		Logger *zerolog.Logger
		API    API
	}

	Resolver struct {
		logger zerolog.Logger
		api    API
	}
)

func NewResolver(cfg Config) *Resolver {
	return &Resolver{
		logger: cfg.Logger.With().Str("component", "organization").Logger(),
		api:    cfg.API,
	}
}

// Resolve looks the subdomain up on behalf of the identified device.
func (r *Resolver) Resolve(ctx context.Context, creds model.Credentials, subdomain string) (model.Organization, error) {
	if subdomain == "" {
		return model.Organization{}, model.NewError(model.KindValidation, "empty subdomain", nil)
	}
	var org model.Organization
	err := r.api.Do(ctx, http.MethodGet, api.Path("organization-subdomains", subdomain)+"/?fields=permissions", &creds, nil, &org)
	switch {
	case errors.Is(err, api.ErrNotFound):
		return model.Organization{}, model.NewError(model.KindUnavailable, ErrNotFound.Error(), err)
	case err != nil:
		r.logger.Error().Err(err).Str("subdomain", subdomain).Msg("organization fetch failed")
		return model.Organization{}, model.NewError(model.KindTransient, ErrFetch.Error(), err)
	}
	if org.ID == "" {
		return model.Organization{}, model.NewError(model.KindUnavailable, ErrNotFound.Error(), nil)
	}
	if org.Subdomain == "" {
		org.Subdomain = subdomain
	}
	r.logger.Debug().Str("subdomain", subdomain).Str("organizationID", org.ID).Msg("organization resolved")
	return org, nil
}
