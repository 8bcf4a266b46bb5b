// Package ipmi drives baseboard management controllers through the
// ipmitool utility over the lanplus interface.
package ipmi

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/execcmd"
	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
)

const defaultPrivLevel = "ADMINISTRATOR"

var validPrivLevels = map[string]bool{
	"ADMINISTRATOR": true,
	"CALLBACK":      true,
	"OPERATOR":      true,
	"USER":          true,
}

var validBootDevices = map[interfaces.BootDevice]bool{
	interfaces.BootDevicePXE:   true,
	interfaces.BootDeviceDisk:  true,
	interfaces.BootDeviceSafe:  true,
	interfaces.BootDeviceCDROM: true,
	interfaces.BootDeviceBIOS:  true,
}

// driverInfo holds the parsed BMC connection parameters from a node's
// driver_info.
type driverInfo struct {
	uuid     string
	address  string
	username string
	password string
	port     string
	priv     string

	// single and dual bridging
	localAddress   string
	transitChannel string
	transitAddress string
	targetChannel  string
	targetAddress  string
}

// Driver manages node power, boot devices and SOL consoles via ipmitool
type Driver struct {
	exec   execcmd.Executor
	config *common.Config
	logger arbor.ILogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	timingOnce      sync.Once
	timingSupported bool
}

// NewDriver creates an IPMI driver
func NewDriver(executor execcmd.Executor, config *common.Config) *Driver {
	return &Driver{
		exec:     executor,
		config:   config,
		logger:   common.GetLogger(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// parseDriverInfo validates and extracts the BMC parameters
func parseDriverInfo(node *models.Node) (*driverInfo, error) {
	address := node.DriverInfoString("ipmi_address")
	if address == "" {
		return nil, ferrors.InvalidParameterValue("ipmi_address is required in driver_info")
	}

	info := &driverInfo{
		uuid:     node.ID,
		address:  address,
		username: node.DriverInfoString("ipmi_username"),
		password: node.DriverInfoString("ipmi_password"),
		priv:     node.DriverInfoString("ipmi_priv_level"),

		localAddress:   node.DriverInfoString("ipmi_local_address"),
		transitChannel: node.DriverInfoString("ipmi_transit_channel"),
		transitAddress: node.DriverInfoString("ipmi_transit_address"),
		targetChannel:  node.DriverInfoString("ipmi_target_channel"),
		targetAddress:  node.DriverInfoString("ipmi_target_address"),
	}

	if info.priv == "" {
		info.priv = defaultPrivLevel
	}
	if !validPrivLevels[info.priv] {
		return nil, ferrors.InvalidParameterValue("invalid privilege level value: %s", info.priv)
	}

	if port := node.DriverInfoString("ipmi_port"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return nil, ferrors.InvalidParameterValue("invalid ipmi_port value: %s", port)
		}
		info.port = port
	}

	// Transit addressing only makes sense when a target is bridged.
	if (info.transitChannel != "" || info.transitAddress != "") &&
		(info.targetChannel == "" || info.targetAddress == "") {
		return nil, ferrors.InvalidParameterValue(
			"transit channel/address require a target channel and address")
	}
	if (info.targetChannel == "") != (info.targetAddress == "") {
		return nil, ferrors.InvalidParameterValue(
			"target channel and target address must be set together")
	}

	return info, nil
}

// baseArgs builds the ipmitool argument list up to the password file
func baseArgs(info *driverInfo) []string {
	args := []string{
		"-I", "lanplus",
		"-H", info.address,
		"-L", info.priv,
	}
	if info.port != "" {
		args = append(args, "-p", info.port)
	}
	if info.targetChannel != "" {
		if info.localAddress != "" {
			args = append(args, "-m", info.localAddress)
		}
		if info.transitChannel != "" {
			args = append(args, "-B", info.transitChannel, "-T", info.transitAddress)
		}
		args = append(args, "-b", info.targetChannel, "-t", info.targetAddress)
	}
	if info.username != "" {
		args = append(args, "-U", info.username)
	}
	return args
}

// writePasswordFile writes the BMC password to a private temp file.
// ipmitool refuses an empty file, a NUL byte stands in for no password.
func writePasswordFile(password string) (string, error) {
	f, err := os.CreateTemp("", "ferrum-ipmi-")
	if err != nil {
		return "", fmt.Errorf("failed to create password file: %w", err)
	}
	defer f.Close()

	if err := f.Chmod(0o600); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to chmod password file: %w", err)
	}

	if password == "" {
		password = "\x00"
	}
	if _, err := f.WriteString(password); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write password file: %w", err)
	}
	return f.Name(), nil
}

// checkTimingSupport probes once whether the installed ipmitool accepts
// the -N/-R retry options.
func (d *Driver) checkTimingSupport(ctx context.Context) bool {
	d.timingOnce.Do(func() {
		_, _, err := d.exec.Run(ctx, "ipmitool", "-N", "0", "-R", "0", "-h")
		d.timingSupported = err == nil
		d.logger.Debug().
			Bool("supported", d.timingSupported).
			Msg("Probed ipmitool timing option support")
	})
	return d.timingSupported
}

// limiter returns the per-BMC rate limiter enforcing the minimum
// interval between commands to the same address.
func (d *Driver) limiter(address string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[address]
	if !ok {
		interval := d.config.IPMI.MinCommandInterval
		if interval <= 0 {
			interval = time.Second
		}
		l = rate.NewLimiter(rate.Every(interval), 1)
		d.limiters[address] = l
	}
	return l
}

// execute runs an ipmitool command against the node's BMC
func (d *Driver) execute(ctx context.Context, info *driverInfo, command ...string) (string, error) {
	if err := d.limiter(info.address).Wait(ctx); err != nil {
		return "", err
	}

	pwFile, err := writePasswordFile(info.password)
	if err != nil {
		return "", err
	}
	defer os.Remove(pwFile)

	args := baseArgs(info)
	if d.checkTimingSupport(ctx) {
		interval := int(d.config.IPMI.MinCommandInterval / time.Second)
		if interval < 1 {
			interval = 1
		}
		tries := int(d.config.IPMI.RetryTimeout/time.Second) / interval
		if tries < 1 {
			tries = 1
		}
		args = append(args, "-R", strconv.Itoa(tries), "-N", strconv.Itoa(interval))
	}
	args = append(args, "-f", pwFile)
	args = append(args, command...)

	stdout, _, err := d.exec.Run(ctx, "ipmitool", args...)
	if err != nil {
		d.logger.Warn().
			Str("node_id", info.uuid).
			Str("address", info.address).
			Str("command", strings.Join(command, " ")).
			Err(err).
			Msg("IPMI command failed")
		return stdout, &ferrors.IPMIFailure{Cmd: strings.Join(command, " "), Err: err}
	}
	return stdout, nil
}

// ValidateDriverInfo checks the node carries usable BMC credentials
func (d *Driver) ValidateDriverInfo(node *models.Node) error {
	_, err := parseDriverInfo(node)
	return err
}

// GetPowerState queries the chassis power state
func (d *Driver) GetPowerState(ctx context.Context, node *models.Node) (models.PowerState, error) {
	info, err := parseDriverInfo(node)
	if err != nil {
		return models.PowerUnknown, err
	}
	return d.powerStatus(ctx, info)
}

func (d *Driver) powerStatus(ctx context.Context, info *driverInfo) (models.PowerState, error) {
	out, err := d.execute(ctx, info, "power", "status")
	if err != nil {
		return models.PowerUnknown, err
	}
	return parsePowerStatus(out), nil
}

// parsePowerStatus maps ipmitool chassis output to a power state
func parsePowerStatus(output string) models.PowerState {
	switch {
	case strings.HasPrefix(output, "Chassis Power is on"):
		return models.PowerOn
	case strings.HasPrefix(output, "Chassis Power is off"):
		return models.PowerOff
	default:
		return models.PowerError
	}
}

// SetPowerState drives the chassis to the target state and polls until
// the BMC reports it, backing off between polls.
func (d *Driver) SetPowerState(ctx context.Context, node *models.Node, target models.PowerState) error {
	info, err := parseDriverInfo(node)
	if err != nil {
		return err
	}

	switch target {
	case models.PowerOn:
		return d.setAndWait(ctx, info, "on", models.PowerOn)
	case models.PowerOff:
		return d.setAndWait(ctx, info, "off", models.PowerOff)
	case models.PowerRebooting:
		return d.reboot(ctx, info)
	default:
		return ferrors.InvalidParameterValue("unsupported target power state: %s", target)
	}
}

// Reboot power cycles the chassis, hard off then on
func (d *Driver) Reboot(ctx context.Context, node *models.Node) error {
	info, err := parseDriverInfo(node)
	if err != nil {
		return err
	}
	return d.reboot(ctx, info)
}

func (d *Driver) reboot(ctx context.Context, info *driverInfo) error {
	if err := d.setAndWait(ctx, info, "off", models.PowerOff); err != nil {
		return err
	}
	return d.setAndWait(ctx, info, "on", models.PowerOn)
}

func (d *Driver) setAndWait(ctx context.Context, info *driverInfo, command string, target models.PowerState) error {
	if _, err := d.execute(ctx, info, "power", command); err != nil {
		return err
	}

	// Poll with a widening interval, 1s for the first two checks then
	// the square of the iteration count, bounded by the retry timeout.
	var elapsed time.Duration
	for iteration := 0; ; iteration++ {
		state, err := d.powerStatus(ctx, info)
		if err == nil && state == target {
			d.logger.Debug().
				Str("node_id", info.uuid).
				Str("state", string(target)).
				Msg("Power state reached")
			return nil
		}

		sleep := time.Second
		if iteration > 1 {
			sleep = time.Duration(iteration*iteration) * time.Second
		}
		elapsed += sleep
		if elapsed > d.config.IPMI.RetryTimeout {
			return &ferrors.PowerStateFailure{Target: string(target)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// SetBootDevice selects the device the node boots from next
func (d *Driver) SetBootDevice(ctx context.Context, node *models.Node, device interfaces.BootDevice, persistent bool) error {
	if !validBootDevices[device] {
		return ferrors.InvalidParameterValue("invalid boot device: %s", device)
	}

	info, err := parseDriverInfo(node)
	if err != nil {
		return err
	}

	args := []string{"chassis", "bootdev", string(device)}
	if persistent {
		args = append(args, "options=persistent")
	}
	_, err = d.execute(ctx, info, args...)
	return err
}
