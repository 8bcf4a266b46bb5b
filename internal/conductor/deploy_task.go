package conductor

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/ferrum/internal/deploy"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
	"github.com/ternarybob/ferrum/internal/tftp"
)

// Deployments run in two phases. The start phase netboots the node
// into the deploy ramdisk; the continue phase runs when the ramdisk
// calls back with its iSCSI coordinates and writes the image.
const (
	phaseStart    = "start"
	phaseContinue = "continue"
)

func instanceInfoString(node *models.Node, key string) string {
	if v, ok := node.InstanceInfoValue(key); ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// handleDeploy dispatches a deploy task by phase
func (c *Conductor) handleDeploy(ctx context.Context, task *models.ConductorTask) error {
	switch task.ConfigString("phase") {
	case phaseStart:
		return c.deployStart(ctx, task)
	case phaseContinue:
		return c.deployContinue(ctx, task)
	default:
		return fmt.Errorf("unknown deploy phase %q", task.ConfigString("phase"))
	}
}

// deployStart writes the node's PXE config and reboots it into the
// deploy ramdisk, leaving the node waiting for the ramdisk callback.
func (c *Conductor) deployStart(ctx context.Context, task *models.ConductorTask) error {
	node, err := c.storage.NodeStorage().GetNode(ctx, task.NodeID)
	if err != nil {
		return err
	}

	info, err := deploy.ParseNodeInfo(node)
	if err != nil {
		return c.failDeploy(ctx, node, err)
	}

	ports, err := c.storage.PortStorage().ListPortsByNode(ctx, node.ID)
	if err != nil {
		return c.failDeploy(ctx, node, err)
	}
	if len(ports) == 0 {
		return c.failDeploy(ctx, node, fmt.Errorf("node has no ports to netboot from"))
	}

	opts := tftp.ConfigOptions{
		DeployKernel:   info.DeployKernel,
		DeployRamdisk:  info.DeployRamdisk,
		Kernel:         instanceInfoString(node, "kernel"),
		Ramdisk:        instanceInfoString(node, "ramdisk"),
		ISCSITargetIQN: "iqn.2008-10.org.ferrum:" + node.ID,
		DeploymentID:   node.ID,
		DeploymentKey:  instanceInfoString(node, "deploy_key"),
		APIURL:         fmt.Sprintf("http://%s:%d", c.config.Server.Host, c.config.Server.Port),
	}
	if err := c.tftp.WriteConfig(node, ports, opts); err != nil {
		return c.failDeploy(ctx, node, err)
	}

	if err := c.driver.SetBootDevice(ctx, node, interfaces.BootDevicePXE, true); err != nil {
		return c.failDeploy(ctx, node, err)
	}
	if err := c.driver.Reboot(ctx, node); err != nil {
		return c.failDeploy(ctx, node, err)
	}

	node, err = c.storage.NodeStorage().GetNode(ctx, node.ID)
	if err != nil {
		return err
	}
	node.PowerState = models.PowerOn
	if err := node.AdvanceProvisionState(models.ProvisionDeployWait); err != nil {
		return err
	}
	if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
		return err
	}

	c.publishProvisionChange(node, string(models.ProvisionDeploying), string(models.ProvisionDeployWait))
	c.logger.Info().
		Str("node_id", node.ID).
		Msg("Node rebooted into deploy ramdisk, waiting for callback")
	return nil
}

// deployContinue writes the image over the ramdisk's iSCSI export and
// brings the node up on its own disk.
func (c *Conductor) deployContinue(ctx context.Context, task *models.ConductorTask) error {
	node, err := c.storage.NodeStorage().GetNode(ctx, task.NodeID)
	if err != nil {
		return err
	}

	if err := node.AdvanceProvisionState(models.ProvisionDeploying); err != nil {
		return err
	}
	if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
		return err
	}
	c.publishProvisionChange(node, string(models.ProvisionDeployWait), string(models.ProvisionDeploying))

	info, err := deploy.ParseNodeInfo(node)
	if err != nil {
		return c.failDeploy(ctx, node, err)
	}

	req := &deploy.Request{
		NodeID:        node.ID,
		Address:       task.ConfigString("address"),
		IQN:           task.ConfigString("iqn"),
		LUN:           1,
		ImagePath:     info.ImageSource,
		PXEConfigPath: c.tftp.NodeConfigPath(node.ID),
		Info:          info,
	}

	rootUUID, err := c.deployer.Deploy(ctx, req)
	if err != nil {
		return c.failDeploy(ctx, node, err)
	}

	node, err = c.storage.NodeStorage().GetNode(ctx, node.ID)
	if err != nil {
		return err
	}
	if rootUUID != "" {
		node.InstanceInfo["root_uuid"] = rootUUID
	}
	delete(node.InstanceInfo, "deploy_key")
	node.PowerState = models.PowerOn
	node.LastError = ""
	if err := node.AdvanceProvisionState(models.ProvisionActive); err != nil {
		return err
	}
	if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
		return err
	}

	c.publishProvisionChange(node, string(models.ProvisionDeploying), string(models.ProvisionActive))
	c.events.Publish(interfaces.Event{
		Type:      interfaces.EventDeployDone,
		NodeID:    node.ID,
		TaskID:    task.ID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"root_uuid": rootUUID},
	})
	c.logger.Info().
		Str("node_id", node.ID).
		Str("root_uuid", rootUUID).
		Msg("Instance deployed")
	return nil
}

// failDeploy records a deployment failure on the node and returns the
// original error.
func (c *Conductor) failDeploy(ctx context.Context, node *models.Node, cause error) error {
	from := node.ProvisionState
	node.LastError = cause.Error()
	if err := node.AdvanceProvisionState(models.ProvisionDeployFailed); err != nil {
		// The state machine may not allow deploy failed from here,
		// record the error anyway.
		c.logger.Warn().
			Str("node_id", node.ID).
			Str("state", string(node.ProvisionState)).
			Err(err).
			Msg("Could not move node to deploy failed")
	}
	if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
		c.logger.Warn().Err(err).Str("node_id", node.ID).Msg("Failed to record deploy failure")
	}
	c.publishProvisionChange(node, string(from), string(node.ProvisionState))
	return cause
}

func (c *Conductor) publishProvisionChange(node *models.Node, from, to string) {
	c.events.Publish(interfaces.Event{
		Type:      interfaces.EventProvisionChanged,
		NodeID:    node.ID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"old_state": from,
			"new_state": to,
		},
	})
}
