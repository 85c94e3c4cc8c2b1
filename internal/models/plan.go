package models

import (
	"fmt"
	"strings"
	"time"
)

// PlanPeriod единица периода оплаты.
type PlanPeriod int

const (
	PeriodDay   PlanPeriod = 1
	PeriodWeek  PlanPeriod = 2
	PeriodMonth PlanPeriod = 3
	PeriodYear  PlanPeriod = 4
)

func (p PlanPeriod) String() string {
	switch p {
	case PeriodDay:
		return "DAY"
	case PeriodWeek:
		return "WEEK"
	case PeriodMonth:
		return "MONTH"
	case PeriodYear:
		return "YEAR"
	default:
		return "UNKNOWN"
	}
}

// Valid проверяет, что период из допустимого набора.
func (p PlanPeriod) Valid() bool {
	return p >= PeriodDay && p <= PeriodYear
}

// Plan тарифный план клиента.
type Plan struct {
	ID          string     `json:"id"`
	ClientID    int64      `json:"-"`
	Name        string     `json:"name"`
	Code        *string    `json:"code,omitempty"`
	Description *string    `json:"description,omitempty"`
	Period      PlanPeriod `json:"period"`
	Term        int        `json:"term"`
	Price       string     `json:"price"` // numeric(40,2) как строка
	IsRecurring bool       `json:"is_recurring"`
	IsEnabled   bool       `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
}

// BillingDescription человекочитаемая частота списаний.
func (p *Plan) BillingDescription() string {
	period := strings.ToLower(p.Period.String())
	if p.Term <= 1 {
		return fmt.Sprintf("Billed every %s", period)
	}
	return fmt.Sprintf("Billed once every %d %ss", p.Term, period)
}

// PlanFilter параметры выборки планов.
type PlanFilter struct {
	IDs         []string
	IsRecurring *bool
}
