// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	logcli add "hello world"           --server http://localhost:8000
//	logcli add "hello" -w 2            --server http://localhost:8000
//	logcli list                        --server http://localhost:8001
//	logcli delay 10                    --server http://localhost:8001
//	logcli status                      --server http://localhost:8000
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"replicated-log/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "logcli",
		Short: "CLI client for the replicated log",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8000", "Node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(addCmd(), listCmd(), delayCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── add ──────────────────────────────────────────────────────────────────────

func addCmd() *cobra.Command {
	var writeConcern int

	cmd := &cobra.Command{
		Use:   "add <value>",
		Short: "Append a value to the log (master only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)

			var w *int
			if writeConcern > 0 {
				w = &writeConcern
			}
			if err := c.Add(context.Background(), args[0], w); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}

	cmd.Flags().IntVarP(&writeConcern, "write-concern", "w", 0,
		"Total acks required before success, master included (0 = all replicas)")
	return cmd
}

// ─── list ─────────────────────────────────────────────────────────────────────

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Read the node's visible values",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			values, err := c.List(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(values)
			return nil
		},
	}
}

// ─── delay ────────────────────────────────────────────────────────────────────

func delayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delay <seconds>",
		Short: "Arm a one-shot delay on the node's next replicated write",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid seconds %q: %w", args[0], err)
			}

			c := client.New(serverAddr, timeout)
			if err := c.SetDelay(context.Background(), seconds); err != nil {
				return err
			}
			fmt.Printf("delay set to %ds\n", seconds)
			return nil
		},
	}
}

// ─── status ───────────────────────────────────────────────────────────────────

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the node's health and follower statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			health, err := c.Health(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(health)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
