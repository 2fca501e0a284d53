// Package telemetry carries the service's metric instruments. The detached
// refresh-persistence path reports failures here instead of to the caller,
// so dropped writes are observable even when the issuance result has already
// been returned.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics holds the counters recorded by the authentication flow.
// A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	issuanceSuccess       metric.Int64Counter
	issuanceFailure       metric.Int64Counter
	refreshRotations      metric.Int64Counter
	persistFailures       metric.Int64Counter
	detachedPersistWrites metric.Int64Counter
}

// NewAuthMetrics creates the auth counters on the given meter.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	issuanceSuccess, err := meter.Int64Counter("authcore.issuance.success",
		metric.WithDescription("Successful token issuances"))
	if err != nil {
		return nil, err
	}
	issuanceFailure, err := meter.Int64Counter("authcore.issuance.failure",
		metric.WithDescription("Failed authentication attempts"))
	if err != nil {
		return nil, err
	}
	refreshRotations, err := meter.Int64Counter("authcore.refresh.rotations",
		metric.WithDescription("Refresh token rotations"))
	if err != nil {
		return nil, err
	}
	persistFailures, err := meter.Int64Counter("authcore.refresh.persist_failures",
		metric.WithDescription("Refresh-token store writes that failed"))
	if err != nil {
		return nil, err
	}
	detachedWrites, err := meter.Int64Counter("authcore.refresh.detached_writes",
		metric.WithDescription("Refresh-token store writes submitted without awaiting completion"))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{
		issuanceSuccess:       issuanceSuccess,
		issuanceFailure:       issuanceFailure,
		refreshRotations:      refreshRotations,
		persistFailures:       persistFailures,
		detachedPersistWrites: detachedWrites,
	}, nil
}

// IssuanceSuccess records one successful token issuance.
func (m *AuthMetrics) IssuanceSuccess(ctx context.Context) {
	if m == nil {
		return
	}
	m.issuanceSuccess.Add(ctx, 1)
}

// IssuanceFailure records one failed authentication attempt.
func (m *AuthMetrics) IssuanceFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.issuanceFailure.Add(ctx, 1)
}

// RefreshRotation records one refresh-token rotation.
func (m *AuthMetrics) RefreshRotation(ctx context.Context) {
	if m == nil {
		return
	}
	m.refreshRotations.Add(ctx, 1)
}

// PersistFailure records one failed refresh-token store write.
func (m *AuthMetrics) PersistFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.persistFailures.Add(ctx, 1)
}

// DetachedPersistWrite records one store write submitted on the detached path.
func (m *AuthMetrics) DetachedPersistWrite(ctx context.Context) {
	if m == nil {
		return
	}
	m.detachedPersistWrites.Add(ctx, 1)
}
