package conductor

import (
	"context"
	"time"

	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
)

// handlePower drives a node to the requested power state
func (c *Conductor) handlePower(ctx context.Context, task *models.ConductorTask) error {
	node, err := c.storage.NodeStorage().GetNode(ctx, task.NodeID)
	if err != nil {
		return err
	}

	target := models.PowerState(task.ConfigString("target"))
	old := node.PowerState

	if err := c.driver.SetPowerState(ctx, node, target); err != nil {
		node.PowerState = models.PowerError
		node.TargetPowerState = ""
		node.LastError = err.Error()
		if saveErr := c.storage.NodeStorage().SaveNode(ctx, node); saveErr != nil {
			c.logger.Warn().Err(saveErr).Str("node_id", node.ID).Msg("Failed to record power failure")
		}
		return err
	}

	// A reboot ends in the on state.
	final := target
	if target == models.PowerRebooting {
		final = models.PowerOn
	}

	node.PowerState = final
	node.TargetPowerState = ""
	node.LastError = ""
	if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
		return err
	}

	c.events.Publish(interfaces.Event{
		Type:      interfaces.EventPowerChanged,
		NodeID:    node.ID,
		TaskID:    task.ID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"old_state": string(old),
			"new_state": string(final),
		},
	})
	c.logger.Info().
		Str("node_id", node.ID).
		Str("power_state", string(final)).
		Msg("Power state changed")
	return nil
}
