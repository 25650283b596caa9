// Package push sends push notifications to an employee's registered devices through Firebase Cloud Messaging.
package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrNoDevices means the employee has no registered push tokens.
var ErrNoDevices = errors.New("push: employee has no registered devices")

// Messenger is the subset of *messaging.Client used here.
type Messenger interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// TokenSource lists device tokens per employee.
type TokenSource interface {
	ListPushTokens(ctx context.Context, employeeID string) ([]string, error)
}

// NewFirebaseMessaging initializes a Firebase app from a service account file and returns its messaging client.
func NewFirebaseMessaging(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase: init app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: messaging client: %w", err)
	}
	return client, nil
}

// FCMSender fans a notification out to every device of an employee.
type FCMSender struct {
	client Messenger
	tokens TokenSource
	logger *zap.Logger
}

// NewFCMSender returns a sender. logger may be nil.
func NewFCMSender(client Messenger, tokens TokenSource, logger *zap.Logger) *FCMSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FCMSender{client: client, tokens: tokens, logger: logger}
}

// Push sends title/body/data to all devices of employeeID. It fails only when no device accepted the message.
func (s *FCMSender) Push(ctx context.Context, employeeID, title, body string, data map[string]string) error {
	tokens, err := s.tokens.ListPushTokens(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("push: list tokens: %w", err)
	}
	if len(tokens) == 0 {
		return ErrNoDevices
	}
	resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10", "apns-push-type": "alert"},
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
		},
	})
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	for i, r := range resp.Responses {
		if r != nil && !r.Success && messaging.IsUnregistered(r.Error) {
			s.logger.Info("push: device token no longer registered", zap.String("employee_id", employeeID), zap.Int("index", i))
		}
	}
	if resp.SuccessCount == 0 {
		return fmt.Errorf("push: all %d devices rejected the message", resp.FailureCount)
	}
	return nil
}

// LogSender writes notifications to the logger instead of pushing them. Used when FCM is not configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Push(ctx context.Context, employeeID, title, body string, data map[string]string) error {
	s.Logger.Info("push (not sent, FCM not configured)",
		zap.String("employee_id", employeeID), zap.String("title", title), zap.String("body", body))
	return nil
}
