package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalFuse/internal/di"
	"SignalFuse/internal/domain/models"
	internalrepo "SignalFuse/internal/repository"
	"SignalFuse/pkg/config"
	"SignalFuse/pkg/queue"

	"github.com/spf13/cobra"
)

var (
	drainMax  int
	drainWait time.Duration
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Drain execution decisions from the Redis outbox and print them as JSON lines",
	RunE:  runDecisions,
}

func init() {
	decisionsCmd.Flags().IntVar(&drainMax, "max", 100, "stop after this many decisions (0 = until empty)")
	decisionsCmd.Flags().DurationVar(&drainWait, "wait", time.Second, "how long to block for the next decision")
}

func runDecisions(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOffline(configPath)
	if err != nil {
		return err
	}
	q, err := di.InitializeDecisionQueue(cfg)
	if err != nil {
		return err
	}
	if q == nil {
		return errors.New("decision outbox disabled: set redis.enabled and redis.outbox.enabled")
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for n := 0; drainMax == 0 || n < drainMax; n++ {
		msg, err := q.Dequeue(cmd.Context(), drainWait)
		if errors.Is(err, queue.ErrEmpty) {
			return nil
		}
		if err != nil {
			return err
		}
		if msg.Type != internalrepo.DecisionMessageType {
			_ = q.DeadLetter(cmd.Context(), msg, fmt.Errorf("unexpected type %q", msg.Type))
			continue
		}
		d, err := queue.Decode[models.ExecutionDecision](msg)
		if err != nil {
			_ = q.DeadLetter(cmd.Context(), msg, err)
			continue
		}
		if err := enc.Encode(d); err != nil {
			return err
		}
	}
	return nil
}
