package domain

import (
	"encoding/json"
	"testing"
)

func TestFlexID_Unmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want FlexID
	}{
		{`7`, "7"},
		{`"hub-ops"`, "hub-ops"},
		{`" 20 "`, "20"},
		{`null`, ""},
	}

	for _, tt := range tests {
		var got FlexID
		if err := json.Unmarshal([]byte(tt.raw), &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	var bad FlexID
	if err := json.Unmarshal([]byte(`{"id":1}`), &bad); err == nil {
		t.Error("expected error for object identifier")
	}
}
