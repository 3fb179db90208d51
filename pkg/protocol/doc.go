// ABOUTME: Executor message protocol package
// ABOUTME: Defines message envelopes and the transports that carry them
// Package protocol implements the message protocol spoken between a netclock
// client and an isolated tick executor.
//
// Commands (init, start, stop, sync) flow from client to executor; events
// (tick, synced, error) flow back. Messages travel over a Transport, either an
// in-process Pipe or a WebSocket connection.
//
// Example:
//
//	clientSide, executorSide := protocol.Pipe()
//	go executor.New(executorSide, executor.Options{}).Run(ctx)
//	err := clientSide.Send(protocol.NewMessage(protocol.TypeStart, nil))
package protocol
