// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command bftnode drives a local multi-node consensus network to
// completion and prints the resulting candidate chain. It exists to
// exercise Node/Gossiper/Registry/Inspector end to end, not as an
// interactive shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/luxfi/bftcore/config"
	"github.com/luxfi/bftcore/consensus"
	"github.com/luxfi/bftcore/event"
	"github.com/luxfi/bftcore/message/testfactory"
	"github.com/luxfi/bftcore/round"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bftnode",
		Short: "Run a local leader-based BFT consensus network",
		Long: `bftnode assembles an in-process network of consensus Nodes connected by
Gossipers through a shared Registry, drives them through a fixed number of
rounds, and reports each node's final candidate chain.`,
	}
	cmd.AddCommand(runCmd(), replayCmd())
	return cmd
}

func runCmd() *cobra.Command {
	var (
		numNodes int
		rounds   int
		recordTo string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a network live, optionally recording it to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetwork(cmd.Context(), numNodes, rounds, recordTo)
		},
	}
	cmd.Flags().IntVar(&numNodes, "nodes", 4, "number of voters")
	cmd.Flags().IntVar(&rounds, "rounds", 5, "number of rounds to observe before reporting")
	cmd.Flags().StringVar(&recordTo, "record", "", "path to record the leader's event log to")
	return cmd
}

func replayCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a previously recorded leader log to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayLog(from)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "path to a log produced by 'run --record'")
	cmd.MarkFlagRequired("from")
	return cmd
}

func runNetwork(ctx context.Context, numNodes, rounds int, recordTo string) error {
	if numNodes < 4 {
		return fmt.Errorf("need at least 4 voters for a useful quorum, got %d", numNodes)
	}

	logger := log.NewNoOpLogger()
	params := config.Mainnet()
	voters := make([]ids.NodeID, numNodes)
	for i := range voters {
		voters[i][0] = byte(i + 1)
	}
	quorumNum := params.MinQuorumFor(numNodes)

	registry := consensus.NewRegistry()
	nodes := make(map[ids.NodeID]*consensus.Node, numNodes)
	ended := make(map[ids.NodeID]chan *round.EndPayload, numNodes)

	var recordFile *os.File
	if recordTo != "" {
		f, err := os.Create(recordTo)
		if err != nil {
			return fmt.Errorf("create record file: %w", err)
		}
		recordFile = f
		defer f.Close()
	}

	for _, id := range voters {
		n, err := consensus.New(consensus.Config{
			Log:            logger,
			NodeID:         id,
			DataFactory:    testfactory.New(id),
			VoteFactory:    testfactory.New(id),
			Registerer:     prometheus.NewRegistry(),
			TimeoutPropose: params.TimeoutPropose,
			TimeoutVote:    params.TimeoutVote,
		})
		if err != nil {
			return fmt.Errorf("construct node %s: %w", id, err)
		}
		registry.Register(n)
		nodes[id] = n

		ch := make(chan *round.EndPayload, rounds+1)
		n.EventSystem().RegisterHandler(event.TypeRoundEnd, func(ev event.Event) error {
			ch <- ev.Payload.(*round.EndPayload)
			return nil
		})
		ended[id] = ch
	}

	if recordFile != nil {
		leader := voters[0]
		nodes[leader].EventSystem().StartRecord(recordFile, nil)
	}

	for _, id := range voters {
		var peers []ids.NodeID
		for _, peer := range voters {
			if peer != id {
				peers = append(peers, peer)
			}
		}
		consensus.NewGossiper(logger, nodes[id], registry, peers)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	for _, n := range nodes {
		n := n
		go n.Run(runCtx)
		defer n.Close()
	}

	for _, n := range nodes {
		n.Initialize(0, 0, voters, quorumNum, nil)
	}

	leader := voters[0]
	for r := 0; r < rounds; r++ {
		select {
		case p := <-ended[leader]:
			fmt.Printf("round %d: success=%v candidate=%s\n", p.RoundNum, p.Success, p.CandidateID)
		case <-runCtx.Done():
			return runCtx.Err()
		case <-time.After(30 * time.Second):
			return fmt.Errorf("timed out waiting for round %d to end", r)
		}
	}

	for _, id := range voters {
		snap := consensus.NewInspector(nodes[id]).Snapshot()
		fmt.Printf("node %s: round=%d candidate_num=%d candidate=%s state=%s\n",
			snap.NodeID, snap.RoundNum, snap.CandidateNum, snap.CandidateID, snap.RoundState)
	}

	return nil
}

func replayLog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	logger := log.NewNoOpLogger()
	params := config.Mainnet()
	self := ids.NodeID{1}
	n, err := consensus.New(consensus.Config{
		Log:            logger,
		NodeID:         self,
		DataFactory:    testfactory.New(self),
		VoteFactory:    testfactory.New(self),
		Registerer:     prometheus.NewRegistry(),
		TimeoutPropose: params.TimeoutPropose,
		TimeoutVote:    params.TimeoutVote,
	})
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	n.EventSystem().RegisterHandler(event.TypeRoundEnd, func(ev event.Event) error {
		p := ev.Payload.(*round.EndPayload)
		fmt.Printf("round %d: success=%v candidate=%s\n", p.RoundNum, p.Success, p.CandidateID)
		return nil
	})

	n.EventSystem().StartReplay(f, nil)
	return n.EventSystem().Run()
}
