// Package deploy writes instance images onto node disks exported by
// the deploy ramdisk over iSCSI.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ferrum/internal/common"
	"github.com/ternarybob/ferrum/internal/execcmd"
)

// iscsiadm exit code for "no records found", returned when deleting a
// target record that is already gone.
const exitNoRecords = 21

// ISCSIClient manages sessions against the ramdisk's iSCSI target
type ISCSIClient struct {
	exec        execcmd.Executor
	logger      arbor.ILogger
	attempts    int
	retryDelay  time.Duration
	settleDelay time.Duration
}

// NewISCSIClient creates a client. attempts bounds how often each
// iscsiadm invocation is retried before giving up.
func NewISCSIClient(executor execcmd.Executor, attempts int, settleDelay time.Duration) *ISCSIClient {
	if attempts < 1 {
		attempts = 1
	}
	return &ISCSIClient{
		exec:        executor,
		logger:      common.GetLogger(),
		attempts:    attempts,
		retryDelay:  time.Second,
		settleDelay: settleDelay,
	}
}

func portal(address string, port int) string {
	return fmt.Sprintf("%s:%d", address, port)
}

// DevicePath returns the by-path device node for a logged-in target
func DevicePath(address string, port int, iqn string, lun int) string {
	return fmt.Sprintf("/dev/disk/by-path/ip-%s:%d-iscsi-%s-lun-%d",
		address, port, iqn, lun)
}

// retry runs iscsiadm with the given args, retrying transient failures.
// Exit codes listed in okCodes are treated as success.
func (c *ISCSIClient) retry(ctx context.Context, okCodes []int, args ...string) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		_, _, err := c.exec.Run(ctx, "iscsiadm", args...)
		if err == nil {
			return nil
		}
		code := execcmd.ExitCode(err)
		for _, ok := range okCodes {
			if code == ok {
				return nil
			}
		}
		lastErr = err
		if attempt < c.attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return lastErr
}

// Discover performs sendtargets discovery against the portal
func (c *ISCSIClient) Discover(ctx context.Context, address string, port int) error {
	return c.retry(ctx, nil,
		"-m", "discovery",
		"-t", "st",
		"-p", portal(address, port))
}

// Login attaches the target, then waits for the session to settle so
// the kernel has created the block device.
func (c *ISCSIClient) Login(ctx context.Context, address string, port int, iqn string) error {
	err := c.retry(ctx, nil,
		"-m", "node",
		"-p", portal(address, port),
		"-T", iqn,
		"--login")
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.settleDelay):
	}
	return nil
}

// Logout detaches the target
func (c *ISCSIClient) Logout(ctx context.Context, address string, port int, iqn string) error {
	return c.retry(ctx, nil,
		"-m", "node",
		"-p", portal(address, port),
		"-T", iqn,
		"--logout")
}

// DeleteRecord removes the node record. A missing record is success.
func (c *ISCSIClient) DeleteRecord(ctx context.Context, address string, port int, iqn string) error {
	return c.retry(ctx, []int{exitNoRecords},
		"-m", "node",
		"-p", portal(address, port),
		"-T", iqn,
		"-o", "delete")
}
