package interfaces

import (
	"context"

	"github.com/ternarybob/ferrum/internal/models"
)

// BootDevice is a one-time or persistent boot device selection
type BootDevice string

const (
	BootDevicePXE   BootDevice = "pxe"
	BootDeviceDisk  BootDevice = "disk"
	BootDeviceSafe  BootDevice = "safe"
	BootDeviceCDROM BootDevice = "cdrom"
	BootDeviceBIOS  BootDevice = "bios"
)

// PowerDriver manages node power through the management controller
type PowerDriver interface {
	// ValidateDriverInfo checks that the node carries enough driver_info
	// to manage power.
	ValidateDriverInfo(node *models.Node) error

	// GetPowerState queries the current chassis power state.
	GetPowerState(ctx context.Context, node *models.Node) (models.PowerState, error)

	// SetPowerState drives the chassis to the target state, polling until
	// it is reached or the retry timeout expires.
	SetPowerState(ctx context.Context, node *models.Node, target models.PowerState) error

	// Reboot power cycles the chassis, hard off then on.
	Reboot(ctx context.Context, node *models.Node) error
}

// ManagementDriver manages boot device selection
type ManagementDriver interface {
	// SetBootDevice selects the device the node boots from next.
	SetBootDevice(ctx context.Context, node *models.Node, device BootDevice, persistent bool) error
}

// ConsoleDriver manages serial-over-LAN consoles
type ConsoleDriver interface {
	StartConsole(ctx context.Context, node *models.Node) error
	StopConsole(ctx context.Context, node *models.Node) error
}

// DeployDriver writes instance images to node disks
type DeployDriver interface {
	// ValidateDeployInfo checks driver_info and instance_info carry
	// everything a deployment needs.
	ValidateDeployInfo(node *models.Node) error

	// Deploy writes the instance image to the node's disk over the
	// ramdisk-exported iSCSI target and returns the root partition UUID
	// (empty for whole-disk images).
	Deploy(ctx context.Context, node *models.Node, address, iqn string) (string, error)
}
