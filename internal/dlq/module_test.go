package dlq

import "testing"

func TestExceedsThreshold(t *testing.T) {
	tests := []struct {
		count, threshold int64
		want             bool
	}{
		{0, 100, false},
		{99, 100, false},
		{100, 100, true},
		{5000, 0, false},
	}
	for _, tt := range tests {
		if got := exceedsThreshold(tt.count, tt.threshold); got != tt.want {
			t.Errorf("exceedsThreshold(%d, %d) = %v, want %v", tt.count, tt.threshold, got, tt.want)
		}
	}
}

func TestModule_StopIsIdempotent(t *testing.T) {
	m := New(nil, nil, "MOVEO_EVENTS", "MOVEO_DLQ", nil, Config{}, nil, nil)
	m.Stop()
	m.Stop()
}
