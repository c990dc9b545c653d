package model

import (
	"testing"
	"time"
)

func TestWallClockUTC(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-06-30T21:30:00-05:00", time.Date(2024, 6, 30, 21, 30, 0, 0, time.UTC)},
		{"2024-07-01T08:15:00+09:00", time.Date(2024, 7, 1, 8, 15, 0, 0, time.UTC)},
		{"2024-06-15T00:00:00Z", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			in, err := ParseDateOrTimestamp(tt.in)
			if err != nil {
				t.Fatalf("ParseDateOrTimestamp: %v", err)
			}
			got := WallClockUTC(in)
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("WallClockUTC(%s) = %v, want %v", tt.in, got, tt.want)
			}
			if !DayOf(got).Equal(DayOf(in)) {
				t.Errorf("day changed: %v -> %v", DayOf(in), DayOf(got))
			}
		})
	}
}
