package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/ferrors"
)

var macPattern = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)

// Port is a NIC on a node, identified by MAC address. PXE configs are
// linked per MAC so the node can netboot from any of its ports.
type Port struct {
	ID         string    `json:"id" badgerhold:"key"`
	NodeID     string    `json:"node_id"`
	Address    string    `json:"address"` // MAC, normalized lower-case colon form
	PXEEnabled bool      `json:"pxe_enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewPort creates a port for a node. The address is stored as given
// and normalized on save.
func NewPort(nodeID, address string) *Port {
	return &Port{
		ID:         common.NewPortID(),
		NodeID:     nodeID,
		Address:    address,
		PXEEnabled: true,
		CreatedAt:  time.Now(),
	}
}

// NormalizeMAC lower-cases a MAC address and accepts dash separators.
// Returns an error for anything that is not a 48-bit MAC.
func NormalizeMAC(mac string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(mac))
	m = strings.ReplaceAll(m, "-", ":")
	if !macPattern.MatchString(m) {
		return "", ferrors.InvalidParameterValue("invalid MAC address %q", mac)
	}
	return m, nil
}
