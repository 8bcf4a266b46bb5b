package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/execcmd"
	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/tftp"
)

// pause before notifying, the ramdisk needs a moment to open its
// listener once the iSCSI session is torn down.
const notifySettleDelay = 3 * time.Second

// Request carries one deployment's target and image parameters
type Request struct {
	NodeID        string
	Address       string
	IQN           string
	LUN           int
	ImagePath     string
	PXEConfigPath string
	Info          *Info
}

// Deployer writes instance images to node disks over iSCSI
type Deployer struct {
	iscsi  *ISCSIClient
	disk   *DiskUtil
	exec   execcmd.Executor
	logger arbor.ILogger

	iscsiPort  int
	notifyPort int
}

// NewDeployer creates a Deployer from configuration
func NewDeployer(executor execcmd.Executor, config *common.Config) *Deployer {
	return &Deployer{
		iscsi:      NewISCSIClient(executor, config.Deploy.CommandAttempts, config.Deploy.LoginSettleDelay),
		disk:       NewDiskUtil(executor),
		exec:       executor,
		logger:     common.GetLogger(),
		iscsiPort:  config.Deploy.ISCSIPort,
		notifyPort: config.Deploy.NotifyPort,
	}
}

// Deploy writes the image described by req to the node's disk and
// returns the root partition UUID, empty for whole disk images.
func (d *Deployer) Deploy(ctx context.Context, req *Request) (string, error) {
	if req.Info.WholeDiskImage {
		return "", d.withSession(ctx, req, func(dev string) error {
			return d.writeToDisk(ctx, dev, req.ImagePath)
		})
	}

	var rootUUID string
	err := d.withSession(ctx, req, func(dev string) error {
		uuid, err := d.workOnDisk(ctx, dev, req)
		if err != nil {
			return err
		}
		rootUUID = uuid
		return tftp.SwitchConfig(req.PXEConfigPath, rootUUID)
	})
	if err != nil {
		return "", err
	}
	return rootUUID, nil
}

// withSession runs fn against the logged-in target device. Logout and
// record deletion always happen, then the ramdisk is notified that it
// may reboot.
func (d *Deployer) withSession(ctx context.Context, req *Request, fn func(dev string) error) error {
	if err := d.iscsi.Discover(ctx, req.Address, d.iscsiPort); err != nil {
		return ferrors.DeployFailure(err, "iSCSI discovery on %s failed", req.Address)
	}
	if err := d.iscsi.Login(ctx, req.Address, d.iscsiPort, req.IQN); err != nil {
		return ferrors.DeployFailure(err, "iSCSI login to %s failed", req.IQN)
	}

	dev := DevicePath(req.Address, d.iscsiPort, req.IQN, req.LUN)
	workErr := fn(dev)
	if workErr != nil {
		d.logger.Error().
			Str("node_id", req.NodeID).
			Str("address", req.Address).
			Err(workErr).
			Msg("Deploy to node failed")
	}

	if err := d.iscsi.Logout(ctx, req.Address, d.iscsiPort, req.IQN); err != nil && workErr == nil {
		workErr = ferrors.DeployFailure(err, "iSCSI logout from %s failed", req.IQN)
	}
	if err := d.iscsi.DeleteRecord(ctx, req.Address, d.iscsiPort, req.IQN); err != nil && workErr == nil {
		workErr = ferrors.DeployFailure(err, "iSCSI record delete for %s failed", req.IQN)
	}
	if workErr != nil {
		return workErr
	}

	// Give the ramdisk time to open its listener after handing off.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(notifySettleDelay):
	}
	if err := NotifyDone(req.Address, d.notifyPort); err != nil {
		return ferrors.DeployFailure(err, "reboot notification to %s failed", req.Address)
	}

	d.logger.Info().
		Str("node_id", req.NodeID).
		Str("address", req.Address).
		Msg("Deploy completed")
	return nil
}

// workOnDisk partitions the device and copies the image into the root
// partition. The root partition grows to fit the image when needed.
func (d *Deployer) workOnDisk(ctx context.Context, dev string, req *Request) (string, error) {
	info := req.Info

	if !d.disk.IsBlockDevice(dev) {
		return "", &ferrors.InstanceDeployFailure{
			Reason: fmt.Sprintf("parent device %s not found", dev),
		}
	}

	imageMB, err := GetImageMB(req.ImagePath)
	if err != nil {
		return "", err
	}
	rootMB := info.RootMB
	if imageMB > rootMB {
		rootMB = imageMB
	}

	// Preserving the ephemeral partition means the existing table must
	// stay untouched, so the layout is computed without committing.
	commit := !info.PreserveEphemeral
	if commit {
		if err := d.disk.DestroyDiskMetadata(ctx, dev); err != nil {
			return "", err
		}
	}
	parts, err := MakePartitions(ctx, d.exec, dev, rootMB, info.SwapMB, info.EphemeralMB, commit)
	if err != nil {
		return "", err
	}

	if !d.disk.IsBlockDevice(parts.Root) {
		return "", &ferrors.InstanceDeployFailure{
			Reason: fmt.Sprintf("root device %s not found", parts.Root),
		}
	}
	if parts.Swap != "" && !d.disk.IsBlockDevice(parts.Swap) {
		return "", &ferrors.InstanceDeployFailure{
			Reason: fmt.Sprintf("swap device %s not found", parts.Swap),
		}
	}
	if parts.Ephemeral != "" && !d.disk.IsBlockDevice(parts.Ephemeral) {
		return "", &ferrors.InstanceDeployFailure{
			Reason: fmt.Sprintf("ephemeral device %s not found", parts.Ephemeral),
		}
	}

	if err := d.disk.WriteImage(ctx, req.ImagePath, parts.Root); err != nil {
		return "", err
	}
	if parts.Swap != "" {
		if err := d.disk.MakeSwap(ctx, parts.Swap); err != nil {
			return "", err
		}
	}
	if parts.Ephemeral != "" && !info.PreserveEphemeral {
		if err := d.disk.MakeFS(ctx, info.EphemeralFormat, parts.Ephemeral, "ephemeral0"); err != nil {
			return "", err
		}
	}

	return d.disk.BlockUUID(ctx, parts.Root)
}

// writeToDisk dds a whole disk image straight onto the device
func (d *Deployer) writeToDisk(ctx context.Context, dev, imagePath string) error {
	if !d.disk.IsBlockDevice(dev) {
		return &ferrors.InstanceDeployFailure{
			Reason: fmt.Sprintf("parent device %s not found", dev),
		}
	}
	if err := d.disk.DestroyDiskMetadata(ctx, dev); err != nil {
		return err
	}
	return d.disk.WriteImage(ctx, imagePath, dev)
}
