// Package media serves device-appropriate variants of team media from
// object storage. Images are streamed from pre-rendered variants produced
// by an external resizing pipeline; other media types are handed to the
// client as short-lived presigned URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/logging"
)

// Response is either a body to stream or a URL to redirect to.
type Response struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	ETag          string
	Variant       Profile
	RedirectURL   string
}

type Gateway struct {
	store  ObjectStore
	urlTTL time.Duration
	logger logging.Logger
}

func NewGateway(store ObjectStore, urlTTL time.Duration, logger logging.Logger) *Gateway {
	return &Gateway{
		store:  store,
		urlTTL: urlTTL,
		logger: logger.With("module", "media"),
	}
}

func ObjectKey(id string) string {
	return "media/" + id
}

func VariantKey(id string, p Profile) string {
	return "media/" + id + "/" + string(p)
}

// Serve resolves media id for a device profile. Ids may not contain path
// separators.
func (g *Gateway) Serve(ctx context.Context, id string, profile Profile) (*Response, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return nil, fmt.Errorf("%w: invalid media id", common.ErrBadRequest)
	}

	info, err := g.store.Head(ctx, ObjectKey(id))
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(info.ContentType, "image/") {
		url, err := g.store.PresignGet(ctx, info.Key, g.urlTTL)
		if err != nil {
			return nil, err
		}
		return &Response{RedirectURL: url, ContentType: info.ContentType}, nil
	}

	body, vinfo, err := g.store.Get(ctx, VariantKey(id, profile))
	variant := profile
	if errors.Is(err, common.ErrorNotFound) {
		g.logger.Debug(ctx, "variant missing, serving original", "id", id, "profile", profile)
		body, vinfo, err = g.store.Get(ctx, info.Key)
		variant = ""
	}
	if err != nil {
		return nil, err
	}

	ct := vinfo.ContentType
	if ct == "" {
		ct = info.ContentType
	}
	return &Response{
		Body:          body,
		ContentType:   ct,
		ContentLength: vinfo.ContentLength,
		ETag:          vinfo.ETag,
		Variant:       variant,
	}, nil
}
