// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus counters for identity and credential
// operations. A nil *Metrics records nothing.
type Metrics struct {
	IdentitiesCreated   prometheus.Counter
	PasswordChecks      *prometheus.CounterVec
	TokensIssued        *prometheus.CounterVec
	TokenChecks         *prometheus.CounterVec
	CredentialsReplaced *prometheus.CounterVec
}

// Token kinds used as metric labels.
const (
	tokenKindConfirmation = "email_confirmation"
	tokenKindReset        = "password_reset"
)

// NewMetrics creates and registers the counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IdentitiesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_identities_created_total",
			Help: "Total number of identities created",
		}),
		PasswordChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_password_checks_total",
			Help: "Total number of password verifications by source and result",
		}, []string{"source", "result"}),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_tokens_issued_total",
			Help: "Total number of confirmation and reset tokens issued",
		}, []string{"kind"}),
		TokenChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_token_checks_total",
			Help: "Total number of token redemptions by kind and result",
		}, []string{"kind", "result"}),
		CredentialsReplaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_credentials_replaced_total",
			Help: "Total number of credential replacements by type family",
		}, []string{"type_class"}),
	}

	reg.MustRegister(
		m.IdentitiesCreated,
		m.PasswordChecks,
		m.TokensIssued,
		m.TokenChecks,
		m.CredentialsReplaced,
	)
	return m
}

func (m *Metrics) identityCreated() {
	if m == nil {
		return
	}
	m.IdentitiesCreated.Inc()
}

func (m *Metrics) passwordChecked(source string, ok bool) {
	if m == nil {
		return
	}
	m.PasswordChecks.WithLabelValues(source, resultLabel(ok)).Inc()
}

func (m *Metrics) tokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) tokenChecked(kind string, ok bool) {
	if m == nil {
		return
	}
	m.TokenChecks.WithLabelValues(kind, resultLabel(ok)).Inc()
}

func (m *Metrics) credentialReplaced(typ CredentialType) {
	if m == nil {
		return
	}
	m.CredentialsReplaced.WithLabelValues(typ.Class()).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
