package model

import (
	"testing"
	"time"
)

func TestParseObsDt(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{
			name: "Timestamped",
			in:   "2025-06-01 08:15",
			want: time.Date(2025, 6, 1, 8, 15, 0, 0, time.UTC),
		},
		{
			name: "DateOnly",
			in:   "2025-06-01",
			want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "SurroundingWhitespace",
			in:   "  2025-06-01 08:15 ",
			want: time.Date(2025, 6, 1, 8, 15, 0, 0, time.UTC),
		},
		{
			name:    "Empty",
			in:      "",
			wantErr: true,
		},
		{
			name:    "Garbage",
			in:      "June 1st",
			wantErr: true,
		},
		{
			name:    "SecondsNotPartOfTheFormat",
			in:      "2025-06-01 08:15:30",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObsDt(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseObsDt(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseObsDt(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
