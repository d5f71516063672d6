package main

import (
	"context"
	"fmt"
)

// reconcile runs a single sweep over sessions whose scheduled end has passed.
func (cli *commandLine) reconcile() error {
	count, err := cli.sessSvc.ReconcileExpired(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%d session(s) reconciled\n", count)
	return nil
}
