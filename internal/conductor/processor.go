package conductor

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/ferrors"
	"github.com/ternarybob/ferrum/internal/interfaces"
	"github.com/ternarybob/ferrum/internal/models"
)

// taskHandler executes one conductor task while the node reservation
// is held.
type taskHandler func(ctx context.Context, task *models.ConductorTask) error

// Processor drains the conductor queue with a pool of workers
type Processor struct {
	conductor *Conductor
	handlers  map[models.TaskType]taskHandler
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewProcessor creates the worker pool with the lifecycle handlers
// registered.
func NewProcessor(c *Conductor) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		conductor: c,
		handlers:  make(map[models.TaskType]taskHandler),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	p.handlers[models.TaskTypeDeploy] = c.handleDeploy
	p.handlers[models.TaskTypeTeardown] = c.handleTeardown
	p.handlers[models.TaskTypePower] = c.handlePower
	return p
}

// Start launches the worker goroutines
func (p *Processor) Start() error {
	concurrency := p.conductor.config.Queue.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	p.conductor.logger.Info().
		Int("concurrency", concurrency).
		Str("queue", p.conductor.config.Queue.QueueName).
		Msg("Starting conductor workers")

	for i := 0; i < concurrency; i++ {
		go p.worker(i)
	}
	return nil
}

// Stop signals the workers to exit
func (p *Processor) Stop() error {
	p.conductor.logger.Info().Msg("Stopping conductor workers")
	p.cancel()
	return nil
}

// worker polls the queue, backing off while it is idle
func (p *Processor) worker(workerID int) {
	logger := p.conductor.logger
	pollInterval, _ := time.ParseDuration(p.conductor.config.Queue.PollInterval)
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	const maxIdleWait = 5 * time.Second

	// Stagger worker starts to spread queue contention
	stagger := pollInterval / time.Duration(p.conductor.config.Queue.Concurrency+1) * time.Duration(workerID)
	select {
	case <-p.ctx.Done():
		return
	case <-time.After(stagger):
	}

	logger.Debug().Int("worker_id", workerID).Msg("Conductor worker started")

	idleWait := pollInterval
	for {
		select {
		case <-p.ctx.Done():
			logger.Debug().Int("worker_id", workerID).Msg("Conductor worker stopped")
			return
		case <-time.After(idleWait):
		}

		processed, err := p.processOne(workerID)
		switch {
		case err != nil:
			logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Msg("Error processing task")
			idleWait = pollInterval
		case processed:
			idleWait = pollInterval
		default:
			// Queue was empty, back off up to the cap
			idleWait *= 2
			if idleWait > maxIdleWait {
				idleWait = maxIdleWait
			}
		}
	}
}

// processOne receives and runs a single task. Returns false when the
// queue is empty.
func (p *Processor) processOne(workerID int) (bool, error) {
	c := p.conductor
	queueName := c.config.Queue.QueueName

	msg, err := c.queue.Receive(p.ctx, queueName)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	task, err := models.TaskFromJSON([]byte(msg.Body))
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Msg("Failed to decode task, dropping message")
		if delErr := c.queue.Delete(p.ctx, queueName, msg.ID); delErr != nil {
			c.logger.Warn().Err(delErr).Msg("Failed to delete invalid message")
		}
		return true, nil
	}

	c.logger.Info().
		Str("task_id", task.ID).
		Str("node_id", task.NodeID).
		Str("type", string(task.Type)).
		Int("worker_id", workerID).
		Msg("Processing task")

	requeue, runErr := p.runTask(task, msg.ID)
	if requeue {
		// Leave the message in the queue, it reappears when its
		// visibility lapses.
		return true, nil
	}

	// A failed lifecycle operation is still acknowledged: retrying it
	// is an operator decision, not a queue replay.
	if err := c.queue.Delete(p.ctx, queueName, msg.ID); err != nil {
		c.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to acknowledge message")
	}
	return true, runErr
}

// runTask reserves the node, dispatches to the handler and records the
// outcome. Panics in handlers are contained so one bad task cannot
// take the worker down.
func (p *Processor) runTask(task *models.ConductorTask, messageID string) (requeue bool, err error) {
	c := p.conductor
	ctx := p.ctx

	handler, ok := p.handlers[task.Type]
	if !ok {
		_ = c.storage.TaskStorage().UpdateTaskStatus(ctx, task.ID, models.TaskStatusFailed,
			fmt.Sprintf("no handler for task type %s", task.Type))
		return false, fmt.Errorf("no handler for task type %s", task.Type)
	}

	if _, err := c.storage.NodeStorage().Reserve(ctx, task.NodeID, c.host); err != nil {
		if ferrors.IsConflict(err) {
			// Another task holds the node. Shorten visibility so the
			// message comes back soon and try again.
			if extendErr := c.queue.Extend(ctx, c.config.Queue.QueueName, messageID, 10*time.Second); extendErr != nil {
				c.logger.Debug().Err(extendErr).Msg("Failed to shorten visibility for locked node")
			}
			return true, nil
		}
		_ = c.storage.TaskStorage().UpdateTaskStatus(ctx, task.ID, models.TaskStatusFailed, err.Error())
		return false, err
	}
	defer func() {
		if releaseErr := c.storage.NodeStorage().Release(ctx, task.NodeID, c.host); releaseErr != nil {
			c.logger.Warn().
				Err(releaseErr).
				Str("node_id", task.NodeID).
				Msg("Failed to release node reservation")
		}
	}()

	if err := c.storage.TaskStorage().UpdateTaskStatus(ctx, task.ID, models.TaskStatusRunning, ""); err != nil {
		return false, err
	}
	c.events.Publish(interfaces.Event{
		Type:      interfaces.EventTaskStarted,
		NodeID:    task.NodeID,
		TaskID:    task.ID,
		Timestamp: time.Now(),
	})

	heartbeatStop := p.startHeartbeat(task.ID, messageID)
	defer heartbeatStop()

	defer func() {
		if r := recover(); r != nil {
			stack := common.GetStackTrace()
			c.logger.Error().
				Str("task_id", task.ID).
				Str("stack", stack).
				Msgf("Task handler panicked: %v", r)
			err = fmt.Errorf("task panicked: %v", r)
			p.finishTask(task, err)
		}
	}()

	err = handler(ctx, task)
	p.finishTask(task, err)
	return false, err
}

// startHeartbeat keeps the task record fresh and the queue message
// claimed while a long handler runs.
func (p *Processor) startHeartbeat(taskID, messageID string) func() {
	c := p.conductor
	stop := make(chan struct{})
	visibilityTimeout, _ := time.ParseDuration(c.config.Queue.VisibilityTimeout)
	interval := visibilityTimeout / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				if err := c.storage.TaskStorage().TouchHeartbeat(p.ctx, taskID); err != nil {
					c.logger.Debug().Err(err).Str("task_id", taskID).Msg("Heartbeat update failed")
				}
				if err := c.queue.Extend(p.ctx, c.config.Queue.QueueName, messageID,
					visibilityTimeout); err != nil {
					c.logger.Debug().Err(err).Str("task_id", taskID).Msg("Visibility extension failed")
				}
			}
		}
	}()
	return func() { close(stop) }
}

// finishTask records the task outcome and publishes the matching event
func (p *Processor) finishTask(task *models.ConductorTask, err error) {
	c := p.conductor

	if err != nil {
		if updateErr := c.storage.TaskStorage().UpdateTaskStatus(p.ctx, task.ID,
			models.TaskStatusFailed, err.Error()); updateErr != nil {
			c.logger.Warn().Err(updateErr).Str("task_id", task.ID).Msg("Failed to record task failure")
		}
		c.events.Publish(interfaces.Event{
			Type:      interfaces.EventTaskFailed,
			NodeID:    task.NodeID,
			TaskID:    task.ID,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"error": err.Error()},
		})
		return
	}

	if updateErr := c.storage.TaskStorage().UpdateTaskStatus(p.ctx, task.ID,
		models.TaskStatusCompleted, ""); updateErr != nil {
		c.logger.Warn().Err(updateErr).Str("task_id", task.ID).Msg("Failed to record task completion")
	}
	c.events.Publish(interfaces.Event{
		Type:      interfaces.EventTaskCompleted,
		NodeID:    task.NodeID,
		TaskID:    task.ID,
		Timestamp: time.Now(),
	})
}
