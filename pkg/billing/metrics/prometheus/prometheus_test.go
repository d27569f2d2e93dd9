package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestBillingMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	m.RecordWebhookProcessingDuration("stripe", "checkout.session.completed", 10*time.Millisecond)
	m.RecordWebhookError("stripe", "invalid_signature")
	m.RecordAPICall("stripe", "checkout_sessions.create", "success")
	m.RecordAPICallDuration("stripe", "checkout_sessions.create", time.Millisecond)
	m.RecordCheckoutSession("stripe", "premium", "success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]bool{
		"test_billing_webhook_events_total":                false,
		"test_billing_webhook_processing_duration_seconds": false,
		"test_billing_webhook_errors_total":                false,
		"test_billing_api_calls_total":                     false,
		"test_billing_api_call_duration_seconds":           false,
		"test_billing_checkout_sessions_total":             false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not gathered", name)
		}
	}
}
