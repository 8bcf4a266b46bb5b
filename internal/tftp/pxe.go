// Package tftp renders and maintains PXE boot configuration under the
// TFTP root that netboot nodes read on startup.
package tftp

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/models"
)

// RootPlaceholder is left in rendered deploy configs and replaced with
// the real root partition UUID once the image is on disk.
const RootPlaceholder = "{{ ROOT }}"

var (
	rootRe    = regexp.MustCompile(`\{\{ ROOT \}\}`)
	defaultRe = regexp.MustCompile(`(?m)^default .*$`)
)

// configTemplate boots the deploy ramdisk first. After deployment the
// default label is flipped to boot so the node starts the instance.
var configTemplate = template.Must(template.New("pxe").Parse(
	`default deploy

label deploy
kernel {{.DeployKernel}}
append initrd={{.DeployRamdisk}} selinux=0 disk=cciss/c0d0,sda,hda,vda iscsi_target_iqn={{.ISCSITargetIQN}} deployment_id={{.DeploymentID}} deployment_key={{.DeploymentKey}} ferrum_api_url={{.APIURL}} troubleshoot=0 text

label boot
kernel {{.Kernel}}
append initrd={{.Ramdisk}} root={{.Root}} ro text
`))

// ConfigOptions parameterize one node's PXE config
type ConfigOptions struct {
	DeployKernel   string
	DeployRamdisk  string
	Kernel         string
	Ramdisk        string
	ISCSITargetIQN string
	DeploymentID   string
	DeploymentKey  string
	APIURL         string

	// Root is filled with RootPlaceholder at render time.
	Root string
}

// Manager owns the layout under the TFTP root
type Manager struct {
	root   string
	logger arbor.ILogger
}

// NewManager creates a Manager for the configured TFTP root
func NewManager(root string) *Manager {
	return &Manager{
		root:   root,
		logger: common.GetLogger(),
	}
}

// NodeConfigPath returns the canonical config path for a node
func (m *Manager) NodeConfigPath(nodeID string) string {
	return filepath.Join(m.root, nodeID, "config")
}

// MACConfigPath returns the pxelinux lookup path for a MAC address,
// the hardware-type prefix 01 followed by the dash separated MAC.
func (m *Manager) MACConfigPath(mac string) string {
	return filepath.Join(m.root, "pxelinux.cfg",
		"01-"+strings.ReplaceAll(strings.ToLower(mac), ":", "-"))
}

// WriteConfig renders the node's PXE config and links every port's MAC
// path to it so pxelinux finds it whichever NIC boots first.
func (m *Manager) WriteConfig(node *models.Node, ports []*models.Port, opts ConfigOptions) error {
	opts.Root = RootPlaceholder

	var sb strings.Builder
	if err := configTemplate.Execute(&sb, opts); err != nil {
		return fmt.Errorf("failed to render PXE config: %w", err)
	}

	configPath := m.NodeConfigPath(node.ID)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create PXE config dir: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write PXE config: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(m.root, "pxelinux.cfg"), 0o755); err != nil {
		return fmt.Errorf("failed to create pxelinux.cfg dir: %w", err)
	}
	for _, port := range ports {
		macPath := m.MACConfigPath(port.Address)
		os.Remove(macPath)
		if err := os.Symlink(configPath, macPath); err != nil {
			return fmt.Errorf("failed to link %s: %w", macPath, err)
		}
	}

	m.logger.Info().
		Str("node_id", node.ID).
		Str("path", configPath).
		Int("ports", len(ports)).
		Msg("Wrote PXE config")
	return nil
}

// SwitchConfig rewrites a deploy config into service mode, pointing
// root= at the real partition UUID and making boot the default label.
func SwitchConfig(path, rootUUID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read PXE config %s: %w", path, err)
	}

	out := rootRe.ReplaceAllString(string(data), "UUID="+rootUUID)
	out = defaultRe.ReplaceAllString(out, "default boot")

	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write PXE config %s: %w", path, err)
	}
	return nil
}

// CleanUp removes a node's config and its MAC links
func (m *Manager) CleanUp(node *models.Node, ports []*models.Port) error {
	for _, port := range ports {
		if err := os.Remove(m.MACConfigPath(port.Address)); err != nil && !os.IsNotExist(err) {
			m.logger.Warn().
				Str("node_id", node.ID).
				Str("mac", port.Address).
				Err(err).
				Msg("Failed to remove PXE MAC link")
		}
	}
	if err := os.RemoveAll(filepath.Join(m.root, node.ID)); err != nil {
		return fmt.Errorf("failed to remove PXE config dir: %w", err)
	}
	return nil
}
