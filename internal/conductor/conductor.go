// Package conductor owns node lifecycle work. API handlers enqueue
// tasks here; a worker pool drains the queue and drives the power and
// deploy machinery, holding an exclusive per-node reservation while it
// works.
package conductor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/deploy"
	"github.com/ternarybob/ferrum/internal/drivers/ipmi"
	"github.com/ternarybob/ferrum/internal/execcmd"
	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
	"github.com/ternarybob/ferrum/internal/tftp"
)

// Conductor coordinates all node lifecycle operations
type Conductor struct {
	config   *common.Config
	storage  interfaces.StorageManager
	queue    interfaces.QueueManager
	events   interfaces.EventService
	driver   *ipmi.Driver
	deployer *deploy.Deployer
	tftp     *tftp.Manager
	logger   arbor.ILogger

	// host identifies this conductor in node reservations
	host string

	processor *Processor
}

// New creates a conductor and its worker pool
func New(config *common.Config, storage interfaces.StorageManager,
	queueMgr interfaces.QueueManager, events interfaces.EventService,
	executor execcmd.Executor) *Conductor {

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	c := &Conductor{
		config:   config,
		storage:  storage,
		queue:    queueMgr,
		events:   events,
		driver:   ipmi.NewDriver(executor, config),
		deployer: deploy.NewDeployer(executor, config),
		tftp:     tftp.NewManager(config.Deploy.TFTPRoot),
		logger:   common.GetLogger(),
		host:     "ferrum." + hostname,
	}
	c.processor = NewProcessor(c)
	return c
}

// Host returns the reservation holder name of this conductor
func (c *Conductor) Host() string {
	return c.host
}

// Start releases reservations left over from an unclean shutdown and
// starts the worker pool.
func (c *Conductor) Start(ctx context.Context) error {
	if _, err := c.storage.NodeStorage().ReleaseAll(ctx, c.host); err != nil {
		return fmt.Errorf("failed to release stale reservations: %w", err)
	}
	return c.processor.Start()
}

// Stop drains the worker pool
func (c *Conductor) Stop() error {
	return c.processor.Stop()
}

// enqueue persists the task record and sends the task to the queue
func (c *Conductor) enqueue(ctx context.Context, task *models.ConductorTask) error {
	record := models.NewTaskRecord(task)
	if err := c.storage.TaskStorage().SaveTask(ctx, record); err != nil {
		return err
	}

	body, err := task.ToJSON()
	if err != nil {
		return err
	}
	if _, err := c.queue.Send(ctx, c.config.Queue.QueueName, string(body)); err != nil {
		return err
	}

	c.events.Publish(interfaces.Event{
		Type:      interfaces.EventTaskQueued,
		NodeID:    task.NodeID,
		TaskID:    task.ID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"type": string(task.Type)},
	})
	return nil
}

// ChangePowerState queues a power task for a node
func (c *Conductor) ChangePowerState(ctx context.Context, nodeID string, target models.PowerState) (*models.ConductorTask, error) {
	node, err := c.storage.NodeStorage().GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if err := c.driver.ValidateDriverInfo(node); err != nil {
		return nil, err
	}

	node.TargetPowerState = target
	if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
		return nil, err
	}

	task := models.NewConductorTask(nodeID, models.TaskTypePower, map[string]interface{}{
		"target": string(target),
	})
	if err := c.enqueue(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Provision moves a node toward a requested provision target. "active"
// starts a deployment, "deleted" tears the instance down.
func (c *Conductor) Provision(ctx context.Context, nodeID, target string) (*models.ConductorTask, error) {
	node, err := c.storage.NodeStorage().GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	switch target {
	case "active":
		if err := c.driver.ValidateDriverInfo(node); err != nil {
			return nil, err
		}
		if _, err := deploy.ParseNodeInfo(node); err != nil {
			return nil, err
		}
		if err := node.AdvanceProvisionState(models.ProvisionDeploying); err != nil {
			return nil, err
		}

		// The ramdisk authenticates its callback with this key.
		node.InstanceInfo["deploy_key"] = uuid.New().String()
		if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
			return nil, err
		}

		task := models.NewConductorTask(nodeID, models.TaskTypeDeploy, map[string]interface{}{
			"phase": phaseStart,
		})
		if err := c.enqueue(ctx, task); err != nil {
			return nil, err
		}
		return task, nil

	case "deleted":
		if err := node.AdvanceProvisionState(models.ProvisionDeleting); err != nil {
			return nil, err
		}
		if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
			return nil, err
		}

		task := models.NewConductorTask(nodeID, models.TaskTypeTeardown, nil)
		if err := c.enqueue(ctx, task); err != nil {
			return nil, err
		}
		return task, nil

	default:
		return nil, ferrors.InvalidParameterValue("unsupported provision target: %s", target)
	}
}

// ContinueDeploy resumes a deployment when the ramdisk calls back with
// its iSCSI coordinates. The deploy key must match the one handed out
// when the deployment started.
func (c *Conductor) ContinueDeploy(ctx context.Context, nodeID, key, address, iqn string) (*models.ConductorTask, error) {
	node, err := c.storage.NodeStorage().GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	if node.ProvisionState != models.ProvisionDeployWait {
		return nil, ferrors.InvalidStateTransition(string(node.ProvisionState), string(models.ProvisionDeploying))
	}
	expected, _ := node.InstanceInfoValue("deploy_key")
	if key == "" || expected != key {
		return nil, ferrors.InvalidParameterValue("deploy key mismatch for node %s", nodeID)
	}
	if address == "" || iqn == "" {
		return nil, ferrors.InvalidParameterValue("callback requires address and iqn")
	}

	task := models.NewConductorTask(nodeID, models.TaskTypeDeploy, map[string]interface{}{
		"phase":   phaseContinue,
		"address": address,
		"iqn":     iqn,
	})
	if err := c.enqueue(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// SetBootDevice selects the next boot device synchronously
func (c *Conductor) SetBootDevice(ctx context.Context, nodeID string, device interfaces.BootDevice, persistent bool) error {
	node, err := c.storage.NodeStorage().GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	return c.driver.SetBootDevice(ctx, node, device, persistent)
}

// StartConsole activates the node's SOL console
func (c *Conductor) StartConsole(ctx context.Context, nodeID string) error {
	node, err := c.storage.NodeStorage().GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	return c.driver.StartConsole(ctx, node)
}

// StopConsole deactivates the node's SOL console
func (c *Conductor) StopConsole(ctx context.Context, nodeID string) error {
	node, err := c.storage.NodeStorage().GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	return c.driver.StopConsole(ctx, node)
}

// SyncPowerStates polls every managed node's BMC and records power
// state changes observed out of band.
func (c *Conductor) SyncPowerStates(ctx context.Context) {
	nodes, err := c.storage.NodeStorage().ListNodes(ctx, nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Power sync could not list nodes")
		return
	}

	for _, node := range nodes {
		if node.Maintenance || node.IsReserved() {
			continue
		}
		if c.driver.ValidateDriverInfo(node) != nil {
			continue
		}

		state, err := c.driver.GetPowerState(ctx, node)
		if err != nil {
			c.logger.Debug().
				Str("node_id", node.ID).
				Err(err).
				Msg("Power sync query failed")
			continue
		}
		if state == node.PowerState {
			continue
		}

		old := node.PowerState
		node.PowerState = state
		if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
			c.logger.Warn().Err(err).Str("node_id", node.ID).Msg("Failed to record power state")
			continue
		}

		c.logger.Info().
			Str("node_id", node.ID).
			Str("old_state", string(old)).
			Str("new_state", string(state)).
			Msg("Power state changed out of band")
		c.events.Publish(interfaces.Event{
			Type:      interfaces.EventPowerChanged,
			NodeID:    node.ID,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"old_state": string(old),
				"new_state": string(state),
			},
		})
	}
}

// SweepStaleDeploys fails deployments whose worker stopped sending
// heartbeats, releasing the node so it can be retried.
func (c *Conductor) SweepStaleDeploys(ctx context.Context) {
	maxAge := int(c.config.Deploy.StaleTimeout.Minutes())
	if maxAge < 1 {
		maxAge = 1
	}

	stale, err := c.storage.TaskStorage().GetStaleTasks(ctx, maxAge)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Stale deploy sweep failed")
		return
	}

	for _, record := range stale {
		c.logger.Warn().
			Str("task_id", record.ID).
			Str("node_id", record.NodeID).
			Str("heartbeat", record.Heartbeat.String()).
			Msg("Failing stale task")

		if err := c.storage.TaskStorage().UpdateTaskStatus(ctx, record.ID,
			models.TaskStatusFailed, "task heartbeat expired"); err != nil {
			c.logger.Warn().Err(err).Str("task_id", record.ID).Msg("Failed to mark task stale")
			continue
		}

		node, err := c.storage.NodeStorage().GetNode(ctx, record.NodeID)
		if err != nil {
			continue
		}
		if record.Type == models.TaskTypeDeploy &&
			(node.ProvisionState == models.ProvisionDeploying || node.ProvisionState == models.ProvisionDeployWait) {
			node.ProvisionState = models.ProvisionDeployFailed
			node.LastError = "deployment timed out"
			if err := c.storage.NodeStorage().SaveNode(ctx, node); err != nil {
				c.logger.Warn().Err(err).Str("node_id", node.ID).Msg("Failed to fail stale deploy")
			}
		}
		if err := c.storage.NodeStorage().Release(ctx, record.NodeID, c.host); err != nil &&
			!ferrors.IsNotFound(err) {
			c.logger.Debug().Err(err).Str("node_id", record.NodeID).Msg("Stale reservation release failed")
		}

		c.events.Publish(interfaces.Event{
			Type:      interfaces.EventTaskFailed,
			NodeID:    record.NodeID,
			TaskID:    record.ID,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"reason": "heartbeat expired"},
		})
	}
}
