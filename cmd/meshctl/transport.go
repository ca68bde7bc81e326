package main

import (
	"fmt"
	"io"
)

// dryRunTransport prints every write instead of sending it.
type dryRunTransport struct {
	w      io.Writer
	mtu    int
	writes int
}

func (t *dryRunTransport) Write(b []byte, withResponse bool) error {
	t.writes++
	fmt.Fprintf(t.w, "write %d (%d bytes, response %v): %x\n", t.writes, len(b), withResponse, b)
	return nil
}

func (t *dryRunTransport) MaximumWriteLength(bool) int {
	return t.mtu
}

func (t *dryRunTransport) Disconnect() error {
	fmt.Fprintln(t.w, "disconnect")
	return nil
}
