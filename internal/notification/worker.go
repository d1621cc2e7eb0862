package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"lablog-console/internal/model"
	"lablog-console/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is one "ready for download" event for an operator.
type Job struct {
	UserEmail string
	Job       model.LogCollectionJob
}

// Payload is the JSON the service worker receives.
type Payload struct {
	Title         string `json:"title"`
	Body          string `json:"body"`
	TransactionID string `json:"transaction_id"`
	URL           string `json:"url"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*16),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			log.Printf("Worker %d processing transaction %s for %s", id, job.Job.TransactionID, job.UserEmail)
			wp.sendNotificationsForJob(ctx, job)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a notification. It never blocks; when the queue is full
// the notification is dropped and logged.
func (wp *WorkerPool) Dispatch(job Job) {
	select {
	case wp.jobs <- job:
	default:
		log.Printf("Notification queue full, dropping transaction %s for %s", job.Job.TransactionID, job.UserEmail)
	}
}

// DispatchReady queues one notification per job. Its signature matches the
// dashboard's ready hook.
func (wp *WorkerPool) DispatchReady(userEmail string, jobs []model.LogCollectionJob) {
	for _, j := range jobs {
		wp.Dispatch(Job{UserEmail: userEmail, Job: j})
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// NewPayload renders the notification shown for a ready job.
func NewPayload(j model.LogCollectionJob) Payload {
	body := fmt.Sprintf("Logs for cabinet %s are ready for download.", j.CabinetID)
	if j.TaskDescription != "" {
		body = fmt.Sprintf("%q for cabinet %s is ready for download.", j.TaskDescription, j.CabinetID)
	}
	return Payload{
		Title:         "Log collection ready",
		Body:          body,
		TransactionID: j.TransactionID,
		URL:           "/dashboard",
	}
}

func (wp *WorkerPool) sendNotificationsForJob(ctx context.Context, job Job) {
	subscriptions, err := wp.store.SubscriptionsFor(ctx, job.UserEmail)
	if err != nil {
		log.Printf("Error fetching subscriptions for %s: %v", job.UserEmail, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(NewPayload(job.Job))
	if err != nil {
		log.Printf("Error encoding notification for %s: %v", job.Job.TransactionID, err)
		return
	}

	log.Printf("Sending %d notifications for transaction %s", len(subscriptions), job.Job.TransactionID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
