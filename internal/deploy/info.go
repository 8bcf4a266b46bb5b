package deploy

import (
	"fmt"
	"strconv"

	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/models"
)

const defaultEphemeralFormat = "ext4"

// Info carries everything one image deployment needs, parsed out of a
// node's driver_info and instance_info.
type Info struct {
	ImageSource       string
	DeployKernel      string
	DeployRamdisk     string
	RootMB            int
	SwapMB            int
	EphemeralMB       int
	EphemeralFormat   string
	PreserveEphemeral bool

	// WholeDiskImage selects raw disk writing over partitioning.
	WholeDiskImage bool
}

// ParseNodeInfo validates and extracts deployment parameters.
// driver_info must name the deploy kernel and ramdisk, instance_info
// must carry the image source and an integer root size in GiB.
func ParseNodeInfo(node *models.Node) (*Info, error) {
	info := &Info{
		DeployKernel:  node.DriverInfoString("pxe_deploy_kernel"),
		DeployRamdisk: node.DriverInfoString("pxe_deploy_ramdisk"),
	}

	var missing []string
	if info.DeployKernel == "" {
		missing = append(missing, "pxe_deploy_kernel")
	}
	if info.DeployRamdisk == "" {
		missing = append(missing, "pxe_deploy_ramdisk")
	}
	if len(missing) > 0 {
		return nil, ferrors.InvalidParameterValue(
			"missing driver_info fields: %v", missing)
	}

	source, ok := node.InstanceInfoValue("image_source")
	if !ok {
		return nil, ferrors.InvalidParameterValue(
			"image_source is required in instance_info")
	}
	info.ImageSource = fmt.Sprintf("%v", source)

	rootGB, err := instanceInfoInt(node, "root_gb", -1)
	if err != nil {
		return nil, err
	}
	if rootGB < 0 {
		return nil, ferrors.InvalidParameterValue(
			"root_gb is required in instance_info")
	}
	info.RootMB = rootGB * 1024

	if info.SwapMB, err = instanceInfoInt(node, "swap_mb", 0); err != nil {
		return nil, err
	}
	ephemeralGB, err := instanceInfoInt(node, "ephemeral_gb", 0)
	if err != nil {
		return nil, err
	}
	info.EphemeralMB = ephemeralGB * 1024

	info.EphemeralFormat = defaultEphemeralFormat
	if v, ok := node.InstanceInfoValue("ephemeral_format"); ok {
		info.EphemeralFormat = fmt.Sprintf("%v", v)
	}
	if v, ok := node.InstanceInfoValue("preserve_ephemeral"); ok {
		info.PreserveEphemeral = parseBool(v)
	}
	if v, ok := node.InstanceInfoValue("whole_disk_image"); ok {
		info.WholeDiskImage = parseBool(v)
	}

	return info, nil
}

// instanceInfoInt reads an integer instance_info value. JSON decoding
// may deliver it as a float or a string.
func instanceInfoInt(node *models.Node, key string, def int) (int, error) {
	v, ok := node.InstanceInfoValue(key)
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, ferrors.InvalidParameterValue("%s must be an integer, got %v", key, v)
		}
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, ferrors.InvalidParameterValue("%s must be an integer, got %q", key, n)
		}
		return parsed, nil
	default:
		return 0, ferrors.InvalidParameterValue("%s must be an integer, got %T", key, v)
	}
}

func parseBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}
