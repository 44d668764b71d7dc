package wallet

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransactionOutcome(t *testing.T) {
	down := errors.New("server selection timeout")
	tests := []struct {
		name    string
		applied interface{}
		err     error
		want    bool
		wantErr error
	}{
		{"applied", true, nil, true, nil},
		{"key seen before insert", false, nil, false, nil},
		{"lost insert race", nil, errAlreadyRecorded, false, nil},
		{"wrapped race", nil, fmt.Errorf("commit: %w", errAlreadyRecorded), false, nil},
		{"store failure", nil, down, false, down},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transactionOutcome(tt.applied, tt.err)
			if got != tt.want || !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("got (%v, %v), want (%v, %v)", got, err, tt.want, tt.wantErr)
			}
		})
	}
}
