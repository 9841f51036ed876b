// Package session validates the intent to join a room.
package session

import (
	"net/url"
	"strings"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
)

const DefaultBaseDomain = "whereby.com"

const (
	errMissingRoom      = "Missing room attribute"
	errMissingSubdomain = "Missing subdomain attribute"
	errBadRoomURL       = "Could not parse room URL"
)

// Room is a parsed room location.
type Room struct {
	Subdomain string
	URL       *url.URL
}

// Name is the room path, e.g. "/my-room".
func (r Room) Name() string {
	return r.URL.Path
}

// ParseRoomURLAndSubdomain extracts the subdomain from a room URL of the
// form https://<subdomain>.<baseDomain>/<room>. A subdomain given explicitly
// is used when the URL carries none, but the URL must still be a room URL.
func ParseRoomURLAndSubdomain(roomURL, subdomain, baseDomain string) (Room, error) {
	if roomURL == "" {
		return Room{}, model.NewError(model.KindValidation, errMissingRoom, nil)
	}
	if baseDomain == "" {
		baseDomain = DefaultBaseDomain
	}

	u, err := url.Parse(roomURL)
	var fromURL string
	matched := err == nil && u.Scheme == "https" && len(strings.TrimPrefix(u.Path, "/")) > 0
	if matched {
		label, ok := strings.CutSuffix(u.Hostname(), "."+baseDomain)
		matched = ok && label != "" && !strings.Contains(label, ".")
		if matched {
			fromURL = label
		}
	}
	if fromURL != "" {
		subdomain = fromURL
	}
	if subdomain == "" {
		return Room{}, model.NewError(model.KindValidation, errMissingSubdomain, nil)
	}
	if !matched {
		return Room{}, model.NewError(model.KindValidation, errBadRoomURL, err)
	}
	return Room{Subdomain: subdomain, URL: u}, nil
}

// Options are the consumer supplied parts of a join.
type Options struct {
	Subdomain     string
	BaseDomain    string
	RoomKey       string
	DisplayName   string
	ExternalID    string
	SDKVersion    string
	HasLocalMedia bool
}

// NewJoinParams validates roomURL and builds the parameters recorded by a join.
func NewJoinParams(roomURL string, opts Options) (event.JoinParams, error) {
	room, err := ParseRoomURLAndSubdomain(roomURL, opts.Subdomain, opts.BaseDomain)
	if err != nil {
		return event.JoinParams{}, err
	}
	return event.JoinParams{
		RoomURL:       room.URL.String(),
		RoomName:      room.Name(),
		Subdomain:     room.Subdomain,
		RoomKey:       opts.RoomKey,
		DisplayName:   strings.TrimSpace(opts.DisplayName),
		ExternalID:    opts.ExternalID,
		SDKVersion:    opts.SDKVersion,
		HasLocalMedia: opts.HasLocalMedia,
	}, nil
}
