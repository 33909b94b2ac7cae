package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kyungseok/course-payments/services/payment/internal/domain"
	"github.com/kyungseok/course-payments/services/payment/internal/gateway"
	"github.com/kyungseok/course-payments/services/payment/internal/repository"
)

// memStore is an in-memory stand-in for the payments database with transaction rollback
type memStore struct {
	mu          sync.Mutex
	payments    map[string]domain.Payment
	enrollments map[[2]string]domain.Enrollment
	courses     map[string]domain.Course
	profiles    map[string]domain.Profile
	outbox      []repository.OutboxEvent
	nextID      int64

	createErr error
	upsertErr error
}

func newMemStore() *memStore {
	return &memStore{
		payments:    make(map[string]domain.Payment),
		enrollments: make(map[[2]string]domain.Enrollment),
		courses:     make(map[string]domain.Course),
		profiles:    make(map[string]domain.Profile),
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.DBTX) error) error {
	m.mu.Lock()
	payments := make(map[string]domain.Payment, len(m.payments))
	for k, v := range m.payments {
		payments[k] = v
	}
	enrollments := make(map[[2]string]domain.Enrollment, len(m.enrollments))
	for k, v := range m.enrollments {
		enrollments[k] = v
	}
	outbox := append([]repository.OutboxEvent(nil), m.outbox...)
	m.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		m.mu.Lock()
		m.payments, m.enrollments, m.outbox = payments, enrollments, outbox
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) payment(transactionID string) (domain.Payment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[transactionID]
	return p, ok
}

func (m *memStore) enrollmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

func (m *memStore) outboxTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []string
	for _, e := range m.outbox {
		types = append(types, e.EventType)
	}
	return types
}

type memPayments struct{ *memStore }

func (m memPayments) CreateTx(_ context.Context, _ repository.DBTX, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, dup := m.payments[p.TransactionID]; dup {
		return repository.ErrDuplicate
	}
	m.nextID++
	p.ID = m.nextID
	m.payments[p.TransactionID] = *p
	return nil
}

func (m memPayments) FindByTransactionID(_ context.Context, id string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m memPayments) FindByTransactionIDForUpdateTx(ctx context.Context, _ repository.DBTX, id string) (*domain.Payment, error) {
	return m.FindByTransactionID(ctx, id)
}

func (m memPayments) MarkCompletedTx(_ context.Context, _ repository.DBTX, id, gatewayTxID string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return repository.ErrNotFound
	}
	p.Status = domain.PaymentStatusCompleted
	p.GatewayTransactionID = gatewayTxID
	p.PaymentDate = &paidAt
	m.payments[id] = p
	return nil
}

func (m memPayments) MarkFailedTx(_ context.Context, _ repository.DBTX, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return repository.ErrNotFound
	}
	p.Status = domain.PaymentStatusFailed
	p.FailureReason = reason
	m.payments[id] = p
	return nil
}

type memEnrollments struct{ *memStore }

func (m memEnrollments) UpsertTx(_ context.Context, _ repository.DBTX, e *domain.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.enrollments[[2]string{e.StudentID, e.CourseID}] = *e
	return nil
}

func (m memEnrollments) Exists(_ context.Context, studentID, courseID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[[2]string{studentID, courseID}]
	return ok && e.Status == domain.EnrollmentStatusActive, nil
}

type memCourses struct{ *memStore }

func (m memCourses) FindByID(_ context.Context, id string) (*domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

type memProfiles struct{ *memStore }

func (m memProfiles) FindByID(_ context.Context, id string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

type memOutbox struct{ *memStore }

func (m memOutbox) Insert(ctx context.Context, e *repository.OutboxEvent) error {
	return m.InsertTx(ctx, nil, e)
}

func (m memOutbox) InsertTx(_ context.Context, _ repository.DBTX, e *repository.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.outbox) + 1)
	m.outbox = append(m.outbox, *e)
	return nil
}

func (m memOutbox) FindPending(context.Context, int) ([]*repository.OutboxEvent, error) {
	return nil, nil
}

func (m memOutbox) MarkSent(context.Context, int64) error {
	return nil
}

type gatewayMock struct {
	mock.Mock
	method domain.PaymentMethod
}

func (g *gatewayMock) Method() domain.PaymentMethod { return g.method }

func (g *gatewayMock) Begin(ctx context.Context, session gateway.Session) (*gateway.Checkout, error) {
	args := g.Called(ctx, session)
	c, _ := args.Get(0).(*gateway.Checkout)
	return c, args.Error(1)
}

func (g *gatewayMock) Confirm(ctx context.Context, reference string) (*gateway.Outcome, error) {
	args := g.Called(ctx, reference)
	o, _ := args.Get(0).(*gateway.Outcome)
	return o, args.Error(1)
}

type lockMock struct{ mock.Mock }

func (l *lockMock) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := l.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (l *lockMock) Release(ctx context.Context, key, token string) error {
	return l.Called(ctx, key, token).Error(0)
}
