package deploy

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/ternarybob/ferrum/internal/execcmd"
	"github.com/ternarybob/ferrum/internal/ferrors"
)

// metadataSectors is how many 512 byte sectors get zeroed at each end
// of the disk to clear MBR, GPT, LVM and RAID signatures.
const metadataSectors = 36

// DiskUtil shells out to the standard block device utilities
type DiskUtil struct {
	exec execcmd.Executor
}

// NewDiskUtil creates a DiskUtil
func NewDiskUtil(executor execcmd.Executor) *DiskUtil {
	return &DiskUtil{exec: executor}
}

// IsBlockDevice reports whether path exists and is a block device
func (d *DiskUtil) IsBlockDevice(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeDevice != 0 && fi.Mode()&os.ModeCharDevice == 0
}

// GetImageMB returns the size of an image file in mebibytes, rounded up
func GetImageMB(imagePath string) (int, error) {
	fi, err := os.Stat(imagePath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat image %s: %w", imagePath, err)
	}
	const mb = 1024 * 1024
	return int((fi.Size() + mb - 1) / mb), nil
}

// BlockSizeSectors returns the device size in 512 byte sectors
func (d *DiskUtil) BlockSizeSectors(ctx context.Context, dev string) (int64, error) {
	out, _, err := d.exec.Run(ctx, "blockdev", "--getsz", dev)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected blockdev output %q: %w", out, err)
	}
	return size, nil
}

// DestroyDiskMetadata makes the disk appear blank without zeroing the
// whole drive by wiping the first and last sectors.
func (d *DiskUtil) DestroyDiskMetadata(ctx context.Context, dev string) error {
	_, _, err := d.exec.Run(ctx, "dd",
		"if=/dev/zero",
		"of="+dev,
		"bs=512",
		fmt.Sprintf("count=%d", metadataSectors))
	if err != nil {
		return fmt.Errorf("failed to erase beginning of disk %s: %w", dev, err)
	}

	sectors, err := d.BlockSizeSectors(ctx, dev)
	if err != nil {
		return fmt.Errorf("failed to get block count for %s: %w", dev, err)
	}

	_, _, err = d.exec.Run(ctx, "dd",
		"if=/dev/zero",
		"of="+dev,
		"bs=512",
		fmt.Sprintf("count=%d", metadataSectors),
		fmt.Sprintf("seek=%d", sectors-metadataSectors))
	if err != nil {
		return fmt.Errorf("failed to erase end of disk %s: %w", dev, err)
	}
	return nil
}

// WriteImage copies an image onto a block device with dd
func (d *DiskUtil) WriteImage(ctx context.Context, imagePath, dev string) error {
	_, _, err := d.exec.Run(ctx, "dd",
		"if="+imagePath,
		"of="+dev,
		"bs=1M",
		"oflag=direct")
	if err != nil {
		return fmt.Errorf("failed to write image to %s: %w", dev, err)
	}
	return nil
}

// MakeSwap formats a device as swap
func (d *DiskUtil) MakeSwap(ctx context.Context, dev string) error {
	_, _, err := d.exec.Run(ctx, "mkswap", "-L", "swap1", dev)
	return err
}

// MakeFS formats a device with the given filesystem
func (d *DiskUtil) MakeFS(ctx context.Context, fsType, dev, label string) error {
	_, _, err := d.exec.Run(ctx, "mkfs", "-t", fsType, "-L", label, dev)
	return err
}

// BlockUUID returns the filesystem UUID of a block device
func (d *DiskUtil) BlockUUID(ctx context.Context, dev string) (string, error) {
	out, _, err := d.exec.Run(ctx, "blkid", "-s", "UUID", "-o", "value", dev)
	if err != nil {
		return "", err
	}
	uuid := strings.TrimSpace(out)
	if uuid == "" {
		return "", &ferrors.InstanceDeployFailure{
			Reason: fmt.Sprintf("failed to detect root device UUID on %s", dev),
		}
	}
	return uuid, nil
}

// NotifyDone tells the ramdisk on the node that the disk is written and
// it may reboot. The ramdisk listens on a plain TCP port for the word.
func NotifyDone(address string, port int) error {
	conn, err := net.Dial("tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to notify %s:%d: %w", address, port, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("done")); err != nil {
		return fmt.Errorf("failed to notify %s:%d: %w", address, port, err)
	}
	return nil
}
