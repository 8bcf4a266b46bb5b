package ferrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification with errors.Is.
var (
	ErrInvalidParameter = errors.New("invalid parameter value")
	ErrNotFound         = errors.New("not found")
	ErrNodeLocked       = errors.New("node locked")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrConflict         = errors.New("conflict")
)

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a uniqueness or reservation conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrNodeLocked)
}

// IsInvalidParameter reports whether err stems from bad request input.
func IsInvalidParameter(err error) bool {
	return errors.Is(err, ErrInvalidParameter) || errors.Is(err, ErrInvalidState)
}

// InvalidParameterValue reports a missing or malformed driver/instance parameter.
func InvalidParameterValue(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// NodeNotFound reports a lookup miss for a node ID.
func NodeNotFound(nodeID string) error {
	return fmt.Errorf("node %s: %w", nodeID, ErrNotFound)
}

// PortNotFound reports a lookup miss for a port ID or MAC.
func PortNotFound(id string) error {
	return fmt.Errorf("port %s: %w", id, ErrNotFound)
}

// AllocationNotFound reports a lookup miss for an allocation ID.
func AllocationNotFound(id string) error {
	return fmt.Errorf("allocation %s: %w", id, ErrNotFound)
}

// TaskNotFound reports a lookup miss for a conductor task ID.
func TaskNotFound(id string) error {
	return fmt.Errorf("task %s: %w", id, ErrNotFound)
}

// MACAlreadyExists reports a port address collision.
func MACAlreadyExists(mac, nodeID string) error {
	return fmt.Errorf("%w: MAC %s already registered on node %s", ErrConflict, mac, nodeID)
}

// NoFreeNode reports that no available node matches a requested flavor.
func NoFreeNode(flavor string) error {
	return fmt.Errorf("%w: no free node matching flavor %s", ErrNotFound, flavor)
}

// NodeLocked reports that a node is reserved by another task.
func NodeLocked(nodeID, holder string) error {
	return fmt.Errorf("%w: node %s is reserved by %s", ErrNodeLocked, nodeID, holder)
}

// IPMIFailure wraps an error from an ipmitool invocation.
type IPMIFailure struct {
	Cmd string
	Err error
}

func (e *IPMIFailure) Error() string {
	return fmt.Sprintf("IPMI call failed: %s", e.Cmd)
}

func (e *IPMIFailure) Unwrap() error { return e.Err }

// NewIPMIFailure creates an IPMIFailure for the given ipmitool command.
func NewIPMIFailure(cmd string, err error) error {
	return &IPMIFailure{Cmd: cmd, Err: err}
}

// PowerStateFailure reports that a node did not reach the requested power state.
type PowerStateFailure struct {
	Target string
}

func (e *PowerStateFailure) Error() string {
	return fmt.Sprintf("failed to set node power state to %s", e.Target)
}

// InstanceDeployFailure reports a failure while writing an image to a node.
type InstanceDeployFailure struct {
	Reason string
	Err    error
}

func (e *InstanceDeployFailure) Error() string {
	return fmt.Sprintf("instance deploy failure: %s", e.Reason)
}

func (e *InstanceDeployFailure) Unwrap() error { return e.Err }

// DeployFailure creates an InstanceDeployFailure with a formatted reason.
func DeployFailure(err error, format string, args ...interface{}) error {
	return &InstanceDeployFailure{Reason: fmt.Sprintf(format, args...), Err: err}
}

// InvalidStateTransition reports a provision request the state machine rejects.
func InvalidStateTransition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
}
