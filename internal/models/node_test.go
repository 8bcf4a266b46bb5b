package models

import (
	"errors"
	"testing"

	"github.com/ternarybob/ferrum/internal/ferrors"
)

func TestNewNodeDefaults(t *testing.T) {
	node := NewNode("compute-01", "ipmi")

	if node.ID == "" {
		t.Error("expected a generated ID")
	}
	if node.ProvisionState != ProvisionAvailable {
		t.Errorf("expected available, got %s", node.ProvisionState)
	}
	if node.PowerState != PowerUnknown {
		t.Errorf("expected unknown power state, got %q", node.PowerState)
	}
	if node.DriverInfo == nil || node.InstanceInfo == nil {
		t.Error("expected initialized info maps")
	}
	if node.IsReserved() {
		t.Error("new node must not be reserved")
	}
}

func TestProvisionTransitions(t *testing.T) {
	tests := []struct {
		from    ProvisionState
		to      ProvisionState
		allowed bool
	}{
		{ProvisionAvailable, ProvisionDeploying, true},
		{ProvisionAvailable, ProvisionActive, false},
		{ProvisionAvailable, ProvisionDeleting, false},
		{ProvisionDeploying, ProvisionDeployWait, true},
		{ProvisionDeploying, ProvisionActive, true},
		{ProvisionDeploying, ProvisionDeployFailed, true},
		{ProvisionDeployWait, ProvisionDeploying, true},
		{ProvisionDeployWait, ProvisionActive, true},
		{ProvisionDeployFailed, ProvisionDeploying, true},
		{ProvisionDeployFailed, ProvisionDeleting, true},
		{ProvisionActive, ProvisionDeleting, true},
		{ProvisionActive, ProvisionDeploying, false},
		{ProvisionDeleting, ProvisionAvailable, true},
		{ProvisionDeleting, ProvisionActive, false},
		{ProvisionError, ProvisionDeleting, true},
		{ProvisionError, ProvisionAvailable, false},
	}

	for _, tt := range tests {
		node := NewNode("compute-01", "ipmi")
		node.ProvisionState = tt.from

		err := node.CheckProvisionTransition(tt.to)
		if tt.allowed && err != nil {
			t.Errorf("%s -> %s should be allowed: %v", tt.from, tt.to, err)
		}
		if !tt.allowed {
			if !errors.Is(err, ferrors.ErrInvalidState) {
				t.Errorf("%s -> %s should be rejected with ErrInvalidState, got %v", tt.from, tt.to, err)
			}
		}
	}
}

func TestAdvanceProvisionState(t *testing.T) {
	node := NewNode("compute-01", "ipmi")

	if err := node.AdvanceProvisionState(ProvisionDeploying); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node.ProvisionState != ProvisionDeploying {
		t.Errorf("expected deploying, got %s", node.ProvisionState)
	}

	if err := node.AdvanceProvisionState(ProvisionAvailable); err == nil {
		t.Error("expected rejection of deploying -> available")
	}
	if node.ProvisionState != ProvisionDeploying {
		t.Errorf("state must not change on rejected transition, got %s", node.ProvisionState)
	}
}

func TestDriverInfoString(t *testing.T) {
	node := NewNode("compute-01", "ipmi")
	node.DriverInfo = map[string]interface{}{
		"ipmi_address": "10.0.0.5",
		"ipmi_port":    6230,
	}

	if got := node.DriverInfoString("ipmi_address"); got != "10.0.0.5" {
		t.Errorf("expected 10.0.0.5, got %q", got)
	}
	// Non-string values and missing keys both read as empty.
	if got := node.DriverInfoString("ipmi_port"); got != "" {
		t.Errorf("expected empty for non-string value, got %q", got)
	}
	if got := node.DriverInfoString("absent"); got != "" {
		t.Errorf("expected empty for missing key, got %q", got)
	}

	node.DriverInfo = nil
	if got := node.DriverInfoString("ipmi_address"); got != "" {
		t.Errorf("expected empty for nil map, got %q", got)
	}
}

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "AA:BB:CC:DD:EE:FF", want: "aa:bb:cc:dd:ee:ff"},
		{in: "aa-bb-cc-dd-ee-ff", want: "aa:bb:cc:dd:ee:ff"},
		{in: " aa:bb:cc:dd:ee:ff \n", want: "aa:bb:cc:dd:ee:ff"},
		{in: "aa:bb:cc:dd:ee", wantErr: true},
		{in: "aa:bb:cc:dd:ee:ff:00", wantErr: true},
		{in: "not-a-mac", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeMAC(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ferrors.ErrInvalidParameter) {
				t.Errorf("NormalizeMAC(%q): expected ErrInvalidParameter, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeMAC(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
