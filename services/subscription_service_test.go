package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmBoxAPI/internal/apperrors"
	"farmBoxAPI/internal/types/subscription"
	"farmBoxAPI/utils"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := utils.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestSkipLeadTimeBoundary(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		skipDate string
		want     bool
	}{
		{
			name:     "30 hours ahead is too late",
			now:      time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC),
			skipDate: "2025-07-03",
			want:     false,
		},
		{
			name:     "50 hours ahead is fine",
			now:      time.Date(2025, 7, 1, 22, 0, 0, 0, time.UTC),
			skipDate: "2025-07-04",
			want:     true,
		},
		{
			name:     "exactly 48 hours is fine",
			now:      time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
			skipDate: "2025-07-04",
			want:     true,
		},
		{
			name:     "one second under 48 hours is too late",
			now:      time.Date(2025, 7, 2, 0, 0, 1, 0, time.UTC),
			skipDate: "2025-07-04",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, skipLeadTimeOK(mustDate(t, tt.skipDate), tt.now))
		})
	}
}

func TestSkipRejectsDatesInsideCutoff(t *testing.T) {
	// The cutoff check runs before any database access, so the rejection
	// path is exercisable without a pool.
	svc := NewSubscriptionService(nil, nil)
	svc.SetClock(func() time.Time {
		return time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)
	})

	_, err := svc.Skip(context.Background(), "customer_x", uuid.New(), &subscription.SkipRequest{
		Date: "2025-07-03", // 30 hours out
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func TestResolvePauseWindow(t *testing.T) {
	now := time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		req      subscription.PauseRequest
		wantDays int
		wantErr  bool
	}{
		{
			name:     "two weeks by duration",
			req:      subscription.PauseRequest{DurationWeeks: intPtr(2)},
			wantDays: 14,
		},
		{
			name:     "four weeks hits the 28 day cap exactly",
			req:      subscription.PauseRequest{DurationWeeks: intPtr(4)},
			wantDays: 28,
		},
		{
			name:    "five weeks exceeds the cap",
			req:     subscription.PauseRequest{DurationWeeks: intPtr(5)},
			wantErr: true,
		},
		{
			name:    "zero weeks",
			req:     subscription.PauseRequest{DurationWeeks: intPtr(0)},
			wantErr: true,
		},
		{
			name:     "explicit window of exactly 28 days",
			req:      subscription.PauseRequest{StartDate: strPtr("2025-07-01"), EndDate: strPtr("2025-07-29")},
			wantDays: 28,
		},
		{
			name:    "explicit window of 29 days",
			req:     subscription.PauseRequest{StartDate: strPtr("2025-07-01"), EndDate: strPtr("2025-07-30")},
			wantErr: true,
		},
		{
			name:    "window shorter than a day",
			req:     subscription.PauseRequest{StartDate: strPtr("2025-07-01"), EndDate: strPtr("2025-07-01")},
			wantErr: true,
		},
		{
			name:    "end date without start date",
			req:     subscription.PauseRequest{EndDate: strPtr("2025-07-15")},
			wantErr: true,
		},
		{
			name:    "no window at all",
			req:     subscription.PauseRequest{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := resolvePauseWindow(&tt.req, now)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, int(end.Sub(start).Hours()/24))
		})
	}
}
