package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmflow/auth-service/internal/core/port"
)

const namespace = "auth"

// AuthMetrics records OTP and login outcomes as Prometheus collectors.
type AuthMetrics struct {
	challengesIssued  *prometheus.CounterVec
	challengesChecked *prometheus.CounterVec
	deliveryFailures  *prometheus.CounterVec
	logins            *prometheus.CounterVec
}

var _ port.AuthMetrics = (*AuthMetrics)(nil)

// NewAuthMetrics registers the auth flow collectors with reg (the default registerer when nil).
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	issued, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "challenges_issued_total",
		Help:      "One-time codes issued partitioned by purpose.",
	}, []string{"purpose"}))
	if err != nil {
		return nil, err
	}

	checked, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "challenges_checked_total",
		Help:      "One-time code checks partitioned by purpose and outcome.",
	}, []string{"purpose", "outcome"}))
	if err != nil {
		return nil, err
	}

	failures, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "delivery_failures_total",
		Help:      "One-time code emails the gateway failed to deliver, partitioned by purpose.",
	}, []string{"purpose"}))
	if err != nil {
		return nil, err
	}

	logins, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		challengesIssued:  issued,
		challengesChecked: checked,
		deliveryFailures:  failures,
		logins:            logins,
	}, nil
}

func (m *AuthMetrics) ChallengeIssued(purpose port.ChallengePurpose) {
	m.challengesIssued.WithLabelValues(string(purpose)).Inc()
}

func (m *AuthMetrics) ChallengeChecked(purpose port.ChallengePurpose, outcome string) {
	m.challengesChecked.WithLabelValues(string(purpose), outcome).Inc()
}

func (m *AuthMetrics) DeliveryFailed(purpose port.ChallengePurpose) {
	m.deliveryFailures.WithLabelValues(string(purpose)).Inc()
}

func (m *AuthMetrics) LoginCompleted(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

// Register registers c with reg, reusing an identical collector that is already registered.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}
