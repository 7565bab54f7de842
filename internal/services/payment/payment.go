// Package payment связывает оформление подписки через оплату с платёжным шлюзом:
// создаёт pending-запись и платёж, по которому шлюз позже пришлёт вебхук.
package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/apperr"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/models"
	"github.com/magabrotheeeer/paywall/internal/paymentprovider"
)

// Checkouter создаёт pending-запись подписки.
type Checkouter interface {
	Checkout(ctx context.Context, req models.SubscribeRequest) (*models.SubscribeResult, error)
}

// Provider создаёт платёж в шлюзе.
type Provider interface {
	CreatePayment(ctx context.Context, idempotenceKey string, req paymentprovider.CreatePaymentRequest) (*paymentprovider.CreatePaymentResponse, error)
}

// Service оформляет подписку через оплату.
type Service struct {
	subs     Checkouter
	provider Provider // nil: шлюз не настроен
	cfg      config.PaymentProvider
	log      *slog.Logger
}

// New создает Service. При provider == nil StartCheckout только создаёт pending-запись.
func New(subs Checkouter, provider Provider, cfg config.PaymentProvider, log *slog.Logger) *Service {
	return &Service{
		subs:     subs,
		provider: provider,
		cfg:      cfg,
		log:      log,
	}
}

// StartCheckout создаёт pending-запись и платёж на её итоговую цену.
// Идентификатор записи служит ключом идемпотентности и уходит в metadata платежа,
// откуда вебхук берёт его для подтверждения.
// Если шлюз не ответил, запись остаётся pending и будет удалена очисткой.
func (s *Service) StartCheckout(ctx context.Context, req models.SubscribeRequest) (*models.CheckoutResult, error) {
	const op = "payment.StartCheckout"
	log := s.log.With(slog.String("op", op), slog.String("user_id", req.UserID))

	res, err := s.subs.Checkout(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := &models.CheckoutResult{
		Subscription: res.Subscription,
		Breakdown:    res.Breakdown,
	}
	if s.provider == nil {
		log.Debug("payment provider disabled, returning pending record only")
		return out, nil
	}

	sub := res.Subscription
	payReq := paymentprovider.CreatePaymentRequest{
		Amount: paymentprovider.Amount{
			Value:    sub.FinalPrice.StringFixed(2),
			Currency: s.cfg.Currency,
		},
		Capture: true,
		Confirmation: paymentprovider.Confirmation{
			Type:      "redirect",
			ReturnURL: s.cfg.ReturnURL,
		},
		Description: fmt.Sprintf("Subscription %s (%s)", sub.PlanName, sub.PlanType),
		Metadata: map[string]string{
			"subscription_id": sub.ID,
			"user_id":         sub.UserID,
		},
	}
	pay, err := s.provider.CreatePayment(ctx, sub.ID, payReq)
	if err != nil {
		log.Error("failed to create payment", slog.String("subscription_id", sub.ID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrPaymentUnavailable, err)
	}

	log.Info("payment created",
		slog.String("subscription_id", sub.ID),
		slog.String("payment_id", pay.ID),
	)
	out.PaymentID = pay.ID
	out.ConfirmationURL = pay.Confirmation.ConfirmationURL
	return out, nil
}
