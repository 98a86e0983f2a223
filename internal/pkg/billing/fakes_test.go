package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/HoldFox/internal/pkg/cache"
)

const testWebhookSecret = "whsec_test"

// fakeProvider is an in-memory Provider. Authorizations follow the same
// status rules as the real provider: capture needs requires_capture, cancel
// needs a non-terminal status.
type fakeProvider struct {
	mu sync.Mutex

	paymentMethodErr error
	price            *Price
	priceErr         error
	customerErr      error
	customers        map[string]*Customer

	authStatus AuthorizationStatus
	authErr    error
	authInputs []AuthorizationInput
	auths      map[string]*Authorization

	captureErr   error
	cancelErr    error
	captureCalls int
	cancelCalls  int

	scheduleErr      error
	scheduleInputs   []ScheduleInput
	schedules        []*Schedule
	listSchedulesErr error

	updateErr error
	updates   []SubscriptionPriceUpdate
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		price:      &Price{ID: "price_trial", UnitAmount: 4900, Currency: "usd"},
		customers:  map[string]*Customer{},
		authStatus: StatusRequiresCapture,
		auths:      map[string]*Authorization{},
	}
}

func (f *fakeProvider) putAuthorization(id string, status AuthorizationStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auths[id] = &Authorization{ID: id, Amount: 4900, Currency: "usd", Status: status}
}

func (f *fakeProvider) statusOf(id string) AuthorizationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths[id].Status
}

func (f *fakeProvider) CreatePaymentMethod(_ context.Context, methodType, cardToken string) (string, error) {
	if f.paymentMethodErr != nil {
		return "", f.paymentMethodErr
	}
	return "pm_" + cardToken, nil
}

func (f *fakeProvider) GetPrice(_ context.Context, priceID string) (*Price, error) {
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	p := *f.price
	p.ID = priceID
	return &p, nil
}

func (f *fakeProvider) CreateCustomer(_ context.Context, email, paymentMethodID string) (*Customer, error) {
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &Customer{ID: fmt.Sprintf("cus_%d", len(f.customers)+1), Email: email, DefaultPaymentMethod: paymentMethodID}
	f.customers[c.ID] = c
	return c, nil
}

func (f *fakeProvider) GetCustomer(_ context.Context, customerID string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok {
		return nil, errors.New("no such customer")
	}
	return c, nil
}

func (f *fakeProvider) CreateAuthorization(_ context.Context, in AuthorizationInput) (*Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authInputs = append(f.authInputs, in)
	if f.authErr != nil {
		return nil, f.authErr
	}
	id := fmt.Sprintf("pi_%d", len(f.authInputs))
	a := &Authorization{
		ID:              id,
		Amount:          in.Amount,
		Currency:        in.Currency,
		CustomerID:      in.CustomerID,
		PaymentMethodID: in.PaymentMethodID,
		Status:          f.authStatus,
		ClientSecret:    id + "_secret",
		Metadata:        in.Metadata,
	}
	f.auths[id] = a
	cp := *a
	return &cp, nil
}

func (f *fakeProvider) GetAuthorization(_ context.Context, id string) (*Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auths[id]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeProvider) CaptureAuthorization(_ context.Context, id string) (*Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	a, ok := f.auths[id]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	if a.Status != StatusRequiresCapture {
		return nil, fmt.Errorf("payment_intent %s has status %s", id, a.Status)
	}
	a.Status = StatusSucceeded
	f.captureCalls++
	cp := *a
	return &cp, nil
}

func (f *fakeProvider) CancelAuthorization(_ context.Context, id string) (*Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	a, ok := f.auths[id]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	if a.Status.Terminal() {
		return nil, fmt.Errorf("payment_intent %s has status %s", id, a.Status)
	}
	a.Status = StatusCanceled
	f.cancelCalls++
	cp := *a
	return &cp, nil
}

func (f *fakeProvider) CreateSchedule(_ context.Context, in ScheduleInput) (*Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduleInputs = append(f.scheduleInputs, in)
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	s := &Schedule{
		ID:          fmt.Sprintf("sub_sched_%d", len(f.scheduleInputs)),
		CustomerID:  in.CustomerID,
		Status:      "not_started",
		EndBehavior: in.EndBehavior,
		Metadata:    in.Metadata,
		Phases:      in.Phases,
	}
	f.schedules = append(f.schedules, s)
	return s, nil
}

func (f *fakeProvider) ListSchedules(_ context.Context, customerID string) ([]*Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listSchedulesErr != nil {
		return nil, f.listSchedulesErr
	}
	var out []*Schedule
	for _, s := range f.schedules {
		if s.CustomerID == customerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeProvider) UpdateSubscriptionPrice(_ context.Context, in SubscriptionPriceUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, in)
	return nil
}

// recordingSink keeps every appended line.
type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *recordingSink) contains(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

func (s *recordingSink) joined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

// memoryStore is a KeyValueStore without expiry.
type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) SetXX(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.values[key]; !ok {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) GetDel(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	delete(m.values, key)
	return v, nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok, nil
}

// signedEvent builds an event envelope around object and signs it the way
// Stripe does: v1 = hex(hmac_sha256(secret, "<ts>.<payload>")).
func signedEvent(t *testing.T, id, eventType string, object interface{}) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2022-11-15",
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, sign(payload, testWebhookSecret, time.Now())
}

func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
