package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"farmBoxAPI/internal/types/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationService records lifecycle notices and pushes them out through
// a small worker pool. Callers fire and forget: a full queue drops the
// notice rather than blocking a lifecycle operation.
type NotificationService struct {
	db           *pgxpool.Pool
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *notifyJob
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

type notifyJob struct {
	customerID uuid.UUID
	notifType  notification.NotificationType
	title      string
	body       string
	data       map[string]any
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	s := &NotificationService{
		db:       db,
		workers:  3,
		jobQueue: make(chan *notifyJob, 100),
		stopChan: make(chan struct{}),
	}

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	return s
}

// SetPushProvider injects the real FCM provider from main.go. Without one,
// notices are still recorded in the DB.
func (s *NotificationService) SetPushProvider(provider PushNotificationProvider) {
	s.pushProvider = provider
}

// Notify queues a notice for a customer. Never blocks the caller.
func (s *NotificationService) Notify(customerID uuid.UUID, notifType notification.NotificationType, title, body string, data map[string]any) {
	job := &notifyJob{
		customerID: customerID,
		notifType:  notifType,
		title:      title,
		body:       body,
		data:       data,
	}

	select {
	case s.jobQueue <- job:
	default:
		log.Printf("Notification queue full, dropping %s for customer %s", notifType, customerID)
	}
}

func (s *NotificationService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *NotificationService) worker() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobQueue:
			s.processJob(job)
		case <-s.stopChan:
			return
		}
	}
}

func (s *NotificationService) processJob(job *notifyJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notif := notification.Notification{
		ID:         uuid.New(),
		CustomerID: job.customerID,
		Type:       job.notifType,
		Title:      job.title,
		Body:       job.body,
		Data:       job.data,
		CreatedAt:  time.Now(),
	}

	insertQuery := `
		INSERT INTO notifications (id, customer_id, type, title, body, data, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`
	_, err := s.db.Exec(ctx, insertQuery,
		notif.ID,
		notif.CustomerID,
		notif.Type,
		notif.Title,
		notif.Body,
		notif.Data,
		notif.CreatedAt,
	)
	if err != nil {
		log.Printf("Failed to record notification %s: %v", notif.Type, err)
		return
	}

	if s.pushProvider == nil {
		return
	}

	tokens, err := s.deviceTokens(ctx, job.customerID)
	if err != nil {
		log.Printf("Failed to load device tokens for %s: %v", job.customerID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	if err := s.pushProvider.SendPush(ctx, tokens, job.title, job.body, job.data); err != nil {
		log.Printf("Push failed for customer %s: %v", job.customerID, err)
	}
}

func (s *NotificationService) deviceTokens(ctx context.Context, customerID uuid.UUID) ([]notification.DeviceToken, error) {
	query := `SELECT token, platform FROM device_tokens WHERE customer_id = $1`

	rows, err := s.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}
