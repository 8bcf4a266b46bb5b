package ipmi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/models"
)

// consolePasswordFile returns the path of the persistent password file
// used for a node's SOL session. Unlike command password files this one
// outlives a single invocation so the session can reconnect.
func (d *Driver) consolePasswordFile(nodeID string) string {
	return filepath.Join(os.TempDir(), nodeID+".pw")
}

// StartConsole activates serial-over-LAN for the node
func (d *Driver) StartConsole(ctx context.Context, node *models.Node) error {
	info, err := parseDriverInfo(node)
	if err != nil {
		return err
	}

	path := d.consolePasswordFile(node.ID)
	password := info.password
	if password == "" {
		password = "\x00"
	}
	if err := os.WriteFile(path, []byte(password), 0o600); err != nil {
		return fmt.Errorf("failed to write console password file: %w", err)
	}

	if _, err := d.execute(ctx, info, "sol", "activate"); err != nil {
		os.Remove(path)
		return &ferrors.IPMIFailure{Cmd: "sol activate", Err: err}
	}

	d.logger.Info().
		Str("node_id", node.ID).
		Str("address", info.address).
		Msg("SOL console started")
	return nil
}

// StopConsole deactivates serial-over-LAN and removes the session
// password file. An already inactive session is not an error.
func (d *Driver) StopConsole(ctx context.Context, node *models.Node) error {
	info, err := parseDriverInfo(node)
	if err != nil {
		return err
	}

	_, execErr := d.execute(ctx, info, "sol", "deactivate")
	if execErr != nil && !strings.Contains(execErr.Error(), "SOL payload already de-activated") {
		return execErr
	}

	if err := os.Remove(d.consolePasswordFile(node.ID)); err != nil && !os.IsNotExist(err) {
		d.logger.Warn().
			Str("node_id", node.ID).
			Err(err).
			Msg("Failed to remove console password file")
	}

	d.logger.Info().
		Str("node_id", node.ID).
		Msg("SOL console stopped")
	return nil
}
