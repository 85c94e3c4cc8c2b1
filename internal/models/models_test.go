package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlan_BillingDescription(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
		want string
	}{
		{name: "один месяц", plan: Plan{Period: PeriodMonth, Term: 1}, want: "Billed every month"},
		{name: "два года", plan: Plan{Period: PeriodYear, Term: 2}, want: "Billed once every 2 years"},
		{name: "нулевой term", plan: Plan{Period: PeriodWeek, Term: 0}, want: "Billed every week"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.plan.BillingDescription())
		})
	}
}

func TestPlanPeriod(t *testing.T) {
	assert.True(t, PeriodDay.Valid())
	assert.True(t, PeriodYear.Valid())
	assert.False(t, PlanPeriod(0).Valid())
	assert.False(t, PlanPeriod(5).Valid())
	assert.Equal(t, "UNKNOWN", PlanPeriod(9).String())
}

func TestTaskStatus_Done(t *testing.T) {
	assert.True(t, TaskSuccess.Done())
	assert.True(t, TaskFailure.Done())
	assert.False(t, TaskPending.Done())
	assert.False(t, TaskRetry.Done())
	assert.False(t, TaskStarted.Done())
}

func TestPaymentURL_Expired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p := PaymentURL{ExpiredAt: now}
	assert.True(t, p.Expired(now))
	assert.True(t, p.Expired(now.Add(time.Second)))
	assert.False(t, p.Expired(now.Add(-time.Second)))
}

func TestUser_CanUseAdmin(t *testing.T) {
	var nilUser *User
	assert.False(t, nilUser.CanUseAdmin())
	assert.False(t, (&User{IsActive: false, IsSuperuser: true}).CanUseAdmin())
	assert.True(t, (&User{IsActive: true, IsStaff: true}).CanUseAdmin())
	assert.False(t, (&User{IsActive: true}).CanUseAdmin())
}
