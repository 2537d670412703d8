package command

import (
	"testing"

	"github.com/alphaq-labs/helixr/internal/domain"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   domain.Command
		wantOK bool
	}{
		{
			name:   "verb then word number",
			text:   "please activate valve three",
			want:   domain.Command{Device: 3, Action: domain.ActionOpen, Value: domain.ValveOpenDegrees},
			wantOK: true,
		},
		{
			name:   "shut down with digit",
			text:   "shut down valve 5 now",
			want:   domain.Command{Device: 5, Action: domain.ActionClose, Value: domain.ValveClosedDegrees},
			wantOK: true,
		},
		{
			name:   "number then verb",
			text:   "valve two, please activate",
			want:   domain.Command{Device: 2, Action: domain.ActionOpen, Value: domain.ValveOpenDegrees},
			wantOK: true,
		},
		{
			name:   "number then close verb",
			text:   "could you make sure valve 4 is deactivated",
			want:   domain.Command{Device: 4, Action: domain.ActionClose, Value: domain.ValveClosedDegrees},
			wantOK: true,
		},
		{
			name:   "case insensitive",
			text:   "OPEN VALVE 1",
			want:   domain.Command{Device: 1, Action: domain.ActionOpen, Value: domain.ValveOpenDegrees},
			wantOK: true,
		},
		{
			name:   "plain chat",
			text:   "how are you",
			wantOK: false,
		},
		{
			name:   "device out of range",
			text:   "open valve 6",
			wantOK: false,
		},
		{
			name:   "word number out of range",
			text:   "open valve nine",
			wantOK: false,
		},
		{
			name:   "valve without verb",
			text:   "what is the state of valve 2",
			wantOK: false,
		},
		{
			name:   "empty",
			text:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("Detect(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Detect(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectFirstMatchWins(t *testing.T) {
	// Ambiguous multi-command text honors only the first match.
	got, ok := Detect("open valve 1 and then close valve 2")
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Device != 1 || got.Action != domain.ActionOpen {
		t.Errorf("got %+v, want open valve 1", got)
	}
}
