package models

import "time"

// PaymentURL закэшированная ссылка на оплату, живёт до ExpiredAt.
type PaymentURL struct {
	ID        string    `json:"id"`
	ClientID  int64     `json:"-"`
	PlanID    string    `json:"plan_id"`
	URL       string    `json:"url"`
	ExpiredAt time.Time `json:"expired_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired сообщает, истекла ли ссылка к моменту now.
func (p *PaymentURL) Expired(now time.Time) bool {
	return !now.Before(p.ExpiredAt)
}

// DummyPaymentURL входные данные для создания ссылки.
type DummyPaymentURL struct {
	PlanID     string `json:"plan_id" validate:"required,uuid"`
	URL        string `json:"url" validate:"required,url"`
	TTLSeconds int    `json:"ttl_seconds" validate:"required,gt=0,lte=86400"`
}
