// Package alerts manages SMS alert subscribers and sends alerts through an
// SMS provider.
package alerts

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/mr1hm/disaster-response/internal/models"
	"github.com/mr1hm/disaster-response/internal/repository"
)

var ErrInvalidPhoneFormat = errors.New("invalid phone number format, use E.164 (e.g. +1234567890)")

var e164 = regexp.MustCompile(`^\+\d{10,15}$`)

// NormalizePhone trims whitespace and checks the E.164 shape.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if !e164.MatchString(phone) {
		return "", ErrInvalidPhoneFormat
	}
	return phone, nil
}

type Registry struct {
	store repository.SubscriptionRepository
}

func NewRegistry(store repository.SubscriptionRepository) *Registry {
	return &Registry{store: store}
}

// Subscribe stores the phone number. Subscribing twice succeeds without a
// second entry.
func (r *Registry) Subscribe(ctx context.Context, phone string) (models.Subscription, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return models.Subscription{}, err
	}

	sub := models.Subscription{Phone: phone}
	if _, err := r.store.AddSubscription(ctx, &sub); err != nil {
		return models.Subscription{}, err
	}
	return sub, nil
}

func (r *Registry) Subscribers(ctx context.Context) ([]models.Subscription, error) {
	return r.store.ListSubscriptions(ctx)
}
