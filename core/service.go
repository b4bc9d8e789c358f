// Package core runs the content request pipeline: verify the caller, decide
// entitlement, locate the stored object and issue a signed grant.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PaulFidika/contentgate/assets"
	"github.com/PaulFidika/contentgate/content"
	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/PaulFidika/contentgate/identity"
	"github.com/PaulFidika/contentgate/metrics"
	"github.com/PaulFidika/contentgate/objectstore"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/PaulFidika/contentgate/core"

// DefaultMaxDocumentBytes caps PDF bodies streamed through the service.
const DefaultMaxDocumentBytes = 64 << 20

// Options wires a Service.
type Options struct {
	Verifier identity.Verifier
	Checker  *entitlements.Checker
	Locator  *assets.Locator
	Issuer   *assets.Issuer

	// DocumentClient fetches PDF bodies from signed URLs.
	DocumentClient   *http.Client
	MaxDocumentBytes int64
	Logger           logrus.FieldLogger
}

// Service is safe for concurrent use. It holds no per-request state; every
// decision and grant is computed fresh.
type Service struct {
	verifier identity.Verifier
	checker  *entitlements.Checker
	locator  *assets.Locator
	issuer   *assets.Issuer
	docs     *http.Client
	maxDoc   int64
	log      logrus.FieldLogger
	tracer   trace.Tracer
}

func NewService(o Options) (*Service, error) {
	if o.Verifier == nil || o.Checker == nil || o.Locator == nil || o.Issuer == nil {
		return nil, errors.New("core: verifier, checker, locator and issuer are required")
	}
	if o.DocumentClient == nil {
		o.DocumentClient = objectstore.NewHTTPClient(30 * time.Second)
	}
	if o.MaxDocumentBytes <= 0 {
		o.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return &Service{
		verifier: o.Verifier,
		checker:  o.Checker,
		locator:  o.Locator,
		issuer:   o.Issuer,
		docs:     o.DocumentClient,
		maxDoc:   o.MaxDocumentBytes,
		log:      o.Logger,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// TTL is the lifetime of issued grants.
func (s *Service) TTL() time.Duration { return s.issuer.TTL() }

// Authenticate verifies a presented credential.
func (s *Service) Authenticate(ctx context.Context, credential string) (identity.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "identity.verify")
	defer span.End()
	id, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return identity.Identity{}, err
	}
	return id, nil
}

// Grant runs entitlement, location and issuance for an already verified
// identity. A denial is returned as *entitlements.DeniedError.
func (s *Service) Grant(ctx context.Context, id identity.Identity, ref content.Ref, kind content.Kind) (assets.Grant, error) {
	ctx, span := s.tracer.Start(ctx, "content.grant", trace.WithAttributes(
		attribute.String("content.id", ref.ID),
		attribute.String("content.kind", string(kind)),
	))
	defer span.End()

	if !content.ValidSegment(ref.ID) || !content.ValidSegment(ref.ChapterID) {
		return assets.Grant{}, ErrInvalidRequest
	}

	decision, _, err := s.checker.Check(ctx, id, ref, kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "entitlement check failed")
		return assets.Grant{}, err
	}
	metrics.ObserveDecision(decision.Allowed, string(decision.Reason))
	if !decision.Allowed {
		span.SetAttributes(attribute.String("entitlement.reason", string(decision.Reason)))
		return assets.Grant{}, decision.Err()
	}

	asset, err := s.locator.Locate(ctx, ref, kind)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return assets.Grant{}, err
	}
	g, err := s.issuer.Issue(ctx, asset, ref.ID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return assets.Grant{}, err
	}
	span.SetAttributes(attribute.String("grant.id", g.ID))
	return g, nil
}

// Open is the whole pipeline for one request: credential in, grant out.
func (s *Service) Open(ctx context.Context, credential string, ref content.Ref, kind content.Kind) (assets.Grant, error) {
	id, err := s.Authenticate(ctx, credential)
	if err != nil {
		return assets.Grant{}, err
	}
	g, err := s.Grant(ctx, id, ref, kind)
	if err != nil {
		return assets.Grant{}, fmt.Errorf("identity %s: %w", id.ID, err)
	}
	return g, nil
}
