package conductor

import (
	"context"
	"time"

	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
)

// handleTeardown powers a node down, removes its boot configuration
// and returns it to the available pool.
func (c *Conductor) handleTeardown(ctx context.Context, task *models.ConductorTask) error {
	node, err := c.storage.NodeStorage().GetNode(ctx, task.NodeID)
	if err != nil {
		return err
	}

	if err := c.driver.SetPowerState(ctx, node, models.PowerOff); err != nil {
		// A node with a dead BMC should still be cleanable.
		c.logger.Warn().
			Str("node_id", node.ID).
			Err(err).
			Msg("Power off during teardown failed")
	}

	ports, err := c.storage.PortStorage().ListPortsByNode(ctx, node.ID)
	if err != nil {
		return err
	}
	if err := c.tftp.CleanUp(node, ports); err != nil {
		c.logger.Warn().
			Str("node_id", node.ID).
			Err(err).
			Msg("PXE cleanup failed during teardown")
	}

	if alloc, err := c.storage.AllocationStorage().GetAllocationByNode(ctx, node.ID); err == nil {
		if err := c.storage.AllocationStorage().DeleteAllocation(ctx, alloc.ID); err != nil {
			return err
		}
	} else if !ferrors.IsNotFound(err) {
		return err
	}

	node, err = c.storage.NodeStorage().GetNode(ctx, node.ID)
	if err != nil {
		return err
	}
	node.InstanceInfo = map[string]interface{}{}
	node.PowerState = models.PowerOff
	node.TargetPowerState = ""
	node.LastError = ""
	if err := node.AdvanceProvisionState(models.ProvisionAvailable); err != nil {
		return err
	}
	if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
		return err
	}

	c.publishProvisionChange(node, string(models.ProvisionDeleting), string(models.ProvisionAvailable))
	c.events.Publish(interfaces.Event{
		Type:      interfaces.EventNodeUpdated,
		NodeID:    node.ID,
		TaskID:    task.ID,
		Timestamp: time.Now(),
	})
	c.logger.Info().
		Str("node_id", node.ID).
		Msg("Instance torn down, node available")
	return nil
}
