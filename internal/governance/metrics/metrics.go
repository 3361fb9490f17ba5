package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AdmissionDenials    *prometheus.CounterVec
	StoreFailures       *prometheus.CounterVec
	ReferralRedemptions prometheus.Counter
	ReferralRejections  *prometheus.CounterVec
	CreditsDebited      prometheus.Counter
	CreditsGranted      prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		AdmissionDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "teagate_admission_denials_total",
			Help: "Total admission denials by limiting stage",
		}, []string{"kind"}),
		StoreFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "teagate_counter_store_failures_total",
			Help: "Counter store failures by check and applied policy (open/closed)",
		}, []string{"check", "policy"}),
		ReferralRedemptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "teagate_referral_redemptions_total",
			Help: "Total successful referral redemptions",
		}),
		ReferralRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "teagate_referral_rejections_total",
			Help: "Total rejected referral redemption attempts by reason",
		}, []string{"reason"}),
		CreditsDebited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "teagate_credits_debited_total",
			Help: "Total credits debited by successful admissions",
		}),
		CreditsGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "teagate_credits_granted_total",
			Help: "Total credits granted by referral rewards",
		}),
	}
}

func (m *Metrics) RecordDenial(kind string) {
	m.AdmissionDenials.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordStoreFailure(check, policy string) {
	m.StoreFailures.WithLabelValues(check, policy).Inc()
}
