package clients

import (
	"context"
	"fmt"

	"eventhub/entity"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

func NewFirebaseApp(ctx context.Context, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	return app, nil
}

type FirebaseAuth struct {
	client *auth.Client
}

func NewFirebaseAuth(ctx context.Context, app *firebase.App) (FirebaseAuth, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return FirebaseAuth{}, fmt.Errorf("initializing firebase auth: %w", err)
	}
	return FirebaseAuth{client: client}, nil
}

// Authenticate verifies a Firebase ID token and returns the signed-in user.
func (a FirebaseAuth) Authenticate(ctx context.Context, idToken string) (entity.Buyer, error) {
	token, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return entity.Buyer{}, fmt.Errorf("verifying id token: %w", err)
	}

	email, _ := token.Claims["email"].(string)
	return entity.Buyer{ID: token.UID, Email: email}, nil
}

// PushNotifier sends notifications to the FCM topic each buyer's devices
// subscribe to.
type PushNotifier struct {
	client *messaging.Client
}

func NewPushNotifier(ctx context.Context, app *firebase.App) (PushNotifier, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return PushNotifier{}, fmt.Errorf("initializing firebase messaging: %w", err)
	}
	return PushNotifier{client: client}, nil
}

func BuyerTopic(buyerID string) string {
	return "buyer-" + buyerID
}

func (n PushNotifier) NotifyBuyer(ctx context.Context, buyerID, title, body string, data map[string]string) error {
	_, err := n.client.Send(ctx, &messaging.Message{
		Topic: BuyerTopic(buyerID),
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("sending push notification: %w", err)
	}
	return nil
}

// LogNotifier stands in for PushNotifier when Firebase is not configured.
type LogNotifier struct{}

func (LogNotifier) NotifyBuyer(ctx context.Context, buyerID, title, body string, _ map[string]string) error {
	log.FromContext(ctx).WithFields(logrus.Fields{
		"buyer_id": buyerID,
		"title":    title,
	}).Info("Push notifications disabled, skipping: " + body)
	return nil
}
