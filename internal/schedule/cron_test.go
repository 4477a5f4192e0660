package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestValidateCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "every minute", expr: "* * * * *", wantErr: false},
		{name: "daily at nine", expr: "0 9 * * *", wantErr: false},
		{name: "weekdays", expr: "30 8 * * 1-5", wantErr: false},
		{name: "step values", expr: "*/15 * * * *", wantErr: false},
		{name: "too few fields", expr: "* * *", wantErr: true},
		{name: "six fields", expr: "* * * * * *", wantErr: true},
		{name: "garbage", expr: "not a cron", wantErr: true},
		{name: "empty", expr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCron) {
				t.Errorf("error should wrap ErrInvalidCron, got %v", err)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	after := time.Date(2026, 3, 10, 8, 15, 0, 0, time.UTC)

	next, err := NextRun("0 9 * * *", after)
	if err != nil {
		t.Fatalf("NextRun() error = %v", err)
	}
	want := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", next, want)
	}

	if _, err := NextRun("bad", after); err == nil {
		t.Error("NextRun() with invalid expression should error")
	}
}
