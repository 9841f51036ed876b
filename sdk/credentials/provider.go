// Package credentials obtains device credentials and keeps them for the
// lifetime of the provider.
package credentials

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/adwski/roomsdk/sdk/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const devicesPath = "/devices"

var ErrFetch = errors.New("unable to fetch device credentials")

type (
	// API is the slice of the api client the provider needs.
	API interface {
		Do(ctx context.Context, method, path string, creds *model.Credentials, in, out any) error
	}

	Config struct {
		Logger *zerolog.Logger
		API    API
	}

	Provider struct {
		logger zerolog.Logger
		api    API
		group  singleflight.Group

		mx     *sync.RWMutex
		cached *model.Credentials
	}

	deviceResponse struct {
		Credentials struct {
			UUID string `json:"uuid"`
		} `json:"credentials"`
		HMAC   string `json:"hmac"`
		UserID string `json:"userId"`
	}
)

func NewProvider(cfg Config) *Provider {
	return &Provider{
		logger: cfg.Logger.With().Str("component", "credentials").Logger(),
		api:    cfg.API,
		mx:     &sync.RWMutex{},
	}
}

// Get returns cached credentials or fetches them. Concurrent callers share
// one request. Failures are not cached.
func (p *Provider) Get(ctx context.Context) (model.Credentials, error) {
	if c, ok := p.Cached(); ok {
		return c, nil
	}
	v, err, shared := p.group.Do("device", func() (any, error) {
		if c, ok := p.Cached(); ok {
			return c, nil
		}
		return p.fetch(ctx)
	})
	if err != nil {
		return model.Credentials{}, err
	}
	p.logger.Trace().Bool("shared", shared).Msg("credentials resolved")
	return v.(model.Credentials), nil
}

func (p *Provider) Cached() (model.Credentials, bool) {
	p.mx.RLock()
	defer p.mx.RUnlock()
	if p.cached == nil {
		return model.Credentials{}, false
	}
	return *p.cached, true
}

func (p *Provider) fetch(ctx context.Context) (model.Credentials, error) {
	var resp deviceResponse
	if err := p.api.Do(ctx, http.MethodPost, devicesPath, nil, struct{}{}, &resp); err != nil {
		p.logger.Error().Err(err).Msg("credentials fetch failed")
		return model.Credentials{}, model.NewError(model.KindTransient, ErrFetch.Error(), err)
	}
	c := model.Credentials{UUID: resp.Credentials.UUID, HMAC: resp.HMAC, UserID: resp.UserID}

	p.mx.Lock()
	p.cached = &c
	p.mx.Unlock()
	p.logger.Debug().Str("userID", c.UserID).Msg("credentials fetched")
	return c, nil
}
