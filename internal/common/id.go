package common

import (
	"github.com/google/uuid"
)

// NewNodeID generates a unique node identifier
func NewNodeID() string {
	return uuid.New().String()
}

// NewPortID generates a unique port ID with the "port_" prefix
func NewPortID() string {
	return "port_" + uuid.New().String()
}

// NewAllocationID generates a unique allocation ID with the "alloc_" prefix
func NewAllocationID() string {
	return "alloc_" + uuid.New().String()
}
