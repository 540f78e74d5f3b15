package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	MessagesStored       prometheus.Counter
	NotificationsSent    *prometheus.CounterVec
	NotificationErrors   *prometheus.CounterVec
	AccessDenied         prometheus.Counter
	SubscriptionsGranted *prometheus.CounterVec
	PaymentsTotal        prometheus.Counter
	ReferralsAttributed  prometheus.Counter
	ExpiredSubscriptions prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "bizwatch_messages_stored_total",
			Help: "Business messages recorded in the shadow store",
		}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bizwatch_notifications_sent_total",
			Help: "Edit and delete notifications delivered to owners",
		}, []string{"kind"}),
		NotificationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bizwatch_notification_errors_total",
			Help: "Notifications that failed to send",
		}, []string{"kind"}),
		AccessDenied: f.NewCounter(prometheus.CounterOpts{
			Name: "bizwatch_access_denied_total",
			Help: "Changes dropped because the owner had no access",
		}),
		SubscriptionsGranted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bizwatch_subscriptions_granted_total",
			Help: "Subscription grants by tier",
		}, []string{"tier"}),
		PaymentsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bizwatch_payments_total",
			Help: "Successful Stars payments",
		}),
		ReferralsAttributed: f.NewCounter(prometheus.CounterOpts{
			Name: "bizwatch_referrals_attributed_total",
			Help: "New users attributed to a referrer",
		}),
		ExpiredSubscriptions: f.NewCounter(prometheus.CounterOpts{
			Name: "bizwatch_subscriptions_expired_total",
			Help: "Subscriptions deactivated by the sweeper",
		}),
	}
}

func (m *Metrics) MessageStored() {
	if m == nil {
		return
	}
	m.MessagesStored.Inc()
}

func (m *Metrics) NotificationSent(kind string) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.NotificationErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Denied() {
	if m == nil {
		return
	}
	m.AccessDenied.Inc()
}

func (m *Metrics) Granted(tier string) {
	if m == nil {
		return
	}
	m.SubscriptionsGranted.WithLabelValues(tier).Inc()
}

func (m *Metrics) Payment() {
	if m == nil {
		return
	}
	m.PaymentsTotal.Inc()
}

func (m *Metrics) Referral() {
	if m == nil {
		return
	}
	m.ReferralsAttributed.Inc()
}

func (m *Metrics) Expired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpiredSubscriptions.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
