package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AltairaLabs/EdenKit/events"
	"github.com/AltairaLabs/EdenKit/money"
)

func resetMetrics() {
	workflowStepsTotal.Reset()
	workflowStepDuration.Reset()
	decisionsPending.Set(0)
	workflowsTotal.Reset()
	ledgerEntriesTotal.Reset()
	paymentsTotal.Reset()
	feesDistributedTotal.Reset()
}

func TestRecordStep(t *testing.T) {
	resetMetrics()

	RecordStep("booking", "process", statusSuccess, 0.5)
	RecordStep("booking", "process", statusSuccess, 0.2)
	RecordStep("booking", "", statusError, 0)

	if got := testutil.ToFloat64(workflowStepsTotal.WithLabelValues("booking", "process", "success")); got != 2 {
		t.Errorf("Expected 2 successful steps, got %f", got)
	}
	if got := testutil.ToFloat64(workflowStepsTotal.WithLabelValues("booking", "", "error")); got != 1 {
		t.Errorf("Expected 1 failed step, got %f", got)
	}
	if count := testutil.CollectAndCount(workflowStepDuration); count != 1 {
		t.Errorf("Expected one duration series, got %d", count)
	}
}

func TestRecordDecisions(t *testing.T) {
	resetMetrics()

	RecordDecisionRequested()
	RecordDecisionRequested()
	RecordDecisionEnded()

	if got := testutil.ToFloat64(decisionsPending); got != 1 {
		t.Errorf("Expected 1 pending decision, got %f", got)
	}
}

func TestRecordPayment(t *testing.T) {
	resetMetrics()
	before := testutil.ToFloat64(paymentAmountTotal)

	RecordPayment(statusSuccess, 1000)
	RecordPayment(statusFailed, 0)
	RecordPayment(statusSuccess, 250)

	if got := testutil.ToFloat64(paymentsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("Expected 2 successful payments, got %f", got)
	}
	if got := testutil.ToFloat64(paymentsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("Expected 1 failed payment, got %f", got)
	}
	if got := testutil.ToFloat64(paymentAmountTotal) - before; got != 1250 {
		t.Errorf("Expected 1250 minor units debited, got %f", got)
	}
}

func TestRecordFeeShareZero(t *testing.T) {
	resetMetrics()

	RecordFeeShare("tax", 0)

	if count := testutil.CollectAndCount(feesDistributedTotal); count != 0 {
		t.Errorf("Expected no series for zero shares, got %d", count)
	}
}

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":9091")
	if exporter.Registry() == nil {
		t.Fatal("Expected registry")
	}
	if exporter.Addr() != ":9091" {
		t.Errorf("Expected addr :9091, got %s", exporter.Addr())
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(workflowsTotal)
	exporter := NewExporterWithRegistry(":9093", reg)

	workflowsTotal.Reset()
	RecordWorkflow(statusStarted)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exporter.HTTPHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `edenkit_workflows_total{status="started"} 1`) {
		t.Errorf("Expected workflows_total in output, got:\n%s", body)
	}
}

func TestExporterHealth(t *testing.T) {
	exporter := NewExporterWithRegistry(":9094", prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	exporter.HTTPHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("Expected 200 ok, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestExporterRegister(t *testing.T) {
	exporter := NewExporterWithRegistry(":9095", prometheus.NewRegistry())
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "extra_total", Help: "extra"})
	if err := exporter.Register(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := exporter.Register(c); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestExporterStartShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry("127.0.0.1:0", prometheus.NewRegistry())

	errCh := make(chan error, 1)
	go func() {
		errCh <- exporter.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exporter.Shutdown(ctx); err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}

func TestMetricsListener(t *testing.T) {
	resetMetrics()
	listener := NewMetricsListener()
	bus := events.NewEventBus()
	bus.SubscribeAll(listener.Listener())

	em := events.NewEmitter(bus, "exec-1", "booking")
	em.WorkflowStarted("1.0.0", "collect")
	em.StepExecuted("collect", "input", 1, 20*time.Millisecond)
	em.DecisionRequested("choose", "Pick", 2, 0)
	em.DecisionResolved("choose", "m1")
	em.LedgerEntryAdded(&events.LedgerEntryAddedData{EntryID: "e1", Amount: money.FromMinor(1000)})
	em.PaymentProcessed("e1", "alice", "cashier-1", money.FromMinor(1000), money.FromMinor(500))
	em.LedgerEntrySettled("e1", "tx-1", "completed", false)
	em.FeesDistributed("e1", money.FromMinor(100), []events.FeeShare{
		{Party: "authority", Recipient: "root-ca", Amount: money.FromMinor(20)},
		{Party: "garden", Recipient: "garden-1", Amount: money.FromMinor(30)},
		{Party: "provider", Recipient: "amc", Amount: money.FromMinor(50)},
	})
	em.PaymentFailed(&events.PaymentFailedData{EntryID: "e2", Payer: "bob"})
	em.Completed("confirmed", 4)
	em.Failed("charge", context.Canceled)
	bus.Wait()

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"workflows started", testutil.ToFloat64(workflowsTotal.WithLabelValues("started")), 1},
		{"workflows completed", testutil.ToFloat64(workflowsTotal.WithLabelValues("completed")), 1},
		{"workflows failed", testutil.ToFloat64(workflowsTotal.WithLabelValues("failed")), 1},
		{"steps", testutil.ToFloat64(workflowStepsTotal.WithLabelValues("booking", "input", "success")), 1},
		{"failed steps", testutil.ToFloat64(workflowStepsTotal.WithLabelValues("booking", "", "error")), 1},
		{"pending decisions", testutil.ToFloat64(decisionsPending), 0},
		{"entries pending", testutil.ToFloat64(ledgerEntriesTotal.WithLabelValues("pending")), 1},
		{"entries processed", testutil.ToFloat64(ledgerEntriesTotal.WithLabelValues("processed")), 1},
		{"entries completed", testutil.ToFloat64(ledgerEntriesTotal.WithLabelValues("completed")), 1},
		{"entries failed", testutil.ToFloat64(ledgerEntriesTotal.WithLabelValues("failed")), 1},
		{"payments ok", testutil.ToFloat64(paymentsTotal.WithLabelValues("success")), 1},
		{"payments failed", testutil.ToFloat64(paymentsTotal.WithLabelValues("failed")), 1},
		{"garden fees", testutil.ToFloat64(feesDistributedTotal.WithLabelValues("garden")), 30},
		{"provider fees", testutil.ToFloat64(feesDistributedTotal.WithLabelValues("provider")), 50},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %f, got %f", c.name, c.want, c.got)
		}
	}
}

func TestMetricsListenerIgnoresUnknownEvents(t *testing.T) {
	resetMetrics()
	listener := NewMetricsListener()

	listener.Handle(&events.Event{Type: events.EventCertificateIssued})
	listener.Handle(&events.Event{Type: events.EventWorkflowStepExecuted})

	if count := testutil.CollectAndCount(workflowStepsTotal); count != 0 {
		t.Errorf("Expected no step series, got %d", count)
	}
}
