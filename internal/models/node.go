// -----------------------------------------------------------------------
// Node - Bare metal node inventory record and state machine
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/ferrors"
)

// PowerState is the last known chassis power state of a node
type PowerState string

const (
	PowerOn        PowerState = "power on"
	PowerOff       PowerState = "power off"
	PowerRebooting PowerState = "rebooting"
	PowerError     PowerState = "error"
	PowerUnknown   PowerState = ""
)

// ProvisionState tracks where a node is in its deployment lifecycle
type ProvisionState string

const (
	ProvisionAvailable    ProvisionState = "available"
	ProvisionDeploying    ProvisionState = "deploying"
	ProvisionDeployWait   ProvisionState = "deploy wait"
	ProvisionDeployFailed ProvisionState = "deploy failed"
	ProvisionActive       ProvisionState = "active"
	ProvisionDeleting     ProvisionState = "deleting"
	ProvisionError        ProvisionState = "error"
)

// provisionTransitions lists the legal provision state changes.
// Anything not listed is rejected.
var provisionTransitions = map[ProvisionState][]ProvisionState{
	ProvisionAvailable:    {ProvisionDeploying},
	ProvisionDeploying:    {ProvisionDeployWait, ProvisionActive, ProvisionDeployFailed, ProvisionError},
	ProvisionDeployWait:   {ProvisionDeploying, ProvisionActive, ProvisionDeployFailed, ProvisionError},
	ProvisionDeployFailed: {ProvisionDeploying, ProvisionDeleting},
	ProvisionActive:       {ProvisionDeleting, ProvisionError},
	ProvisionDeleting:     {ProvisionAvailable, ProvisionError},
	ProvisionError:        {ProvisionDeleting},
}

// Properties describes the hardware a node offers to the allocator
type Properties struct {
	CPUs     int    `json:"cpus"`
	CPUArch  string `json:"cpu_arch,omitempty"`
	MemoryMB int    `json:"memory_mb"`
	LocalGB  int    `json:"local_gb"`
}

// Node represents a physical machine managed by the conductor.
//
// DriverInfo carries the BMC access parameters (ipmi_address,
// ipmi_username, ...), InstanceInfo carries what to put on the machine
// (image_source, root_gb, ...). Both are opaque maps validated by the
// driver that consumes them.
type Node struct {
	ID   string `json:"id" badgerhold:"key"`
	Name string `json:"name"`

	Driver       string                 `json:"driver"`
	DriverInfo   map[string]interface{} `json:"driver_info"`
	InstanceInfo map[string]interface{} `json:"instance_info"`
	Properties   Properties             `json:"properties"`

	PowerState       PowerState     `json:"power_state"`
	TargetPowerState PowerState     `json:"target_power_state,omitempty"`
	ProvisionState   ProvisionState `json:"provision_state"`

	Maintenance bool   `json:"maintenance"`
	LastError   string `json:"last_error,omitempty"`

	// Reservation holds the conductor host that owns an exclusive task
	// on this node. Empty when unreserved.
	Reservation string `json:"reservation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNode creates a node with a fresh ID in the available state
func NewNode(name, driver string) *Node {
	now := time.Now()
	return &Node{
		ID:             common.NewNodeID(),
		Name:           name,
		Driver:         driver,
		DriverInfo:     map[string]interface{}{},
		InstanceInfo:   map[string]interface{}{},
		ProvisionState: ProvisionAvailable,
		PowerState:     PowerUnknown,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CheckProvisionTransition validates a requested provision state change.
func (n *Node) CheckProvisionTransition(target ProvisionState) error {
	for _, allowed := range provisionTransitions[n.ProvisionState] {
		if allowed == target {
			return nil
		}
	}
	return ferrors.InvalidStateTransition(string(n.ProvisionState), string(target))
}

// AdvanceProvisionState applies a transition after validating it
func (n *Node) AdvanceProvisionState(target ProvisionState) error {
	if err := n.CheckProvisionTransition(target); err != nil {
		return err
	}
	n.ProvisionState = target
	n.UpdatedAt = time.Now()
	return nil
}

// IsReserved returns true when a conductor task holds this node
func (n *Node) IsReserved() bool {
	return n.Reservation != ""
}

// DriverInfoString returns a string value from DriverInfo, or "" when
// absent or not a string.
func (n *Node) DriverInfoString(key string) string {
	if n.DriverInfo == nil {
		return ""
	}
	if v, ok := n.DriverInfo[key].(string); ok {
		return v
	}
	return ""
}

// InstanceInfoValue returns a raw value from InstanceInfo
func (n *Node) InstanceInfoValue(key string) (interface{}, bool) {
	if n.InstanceInfo == nil {
		return nil, false
	}
	v, ok := n.InstanceInfo[key]
	return v, ok
}
