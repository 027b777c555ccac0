// Package client implements the mpa client attach engine (spec §4.4): the
// rendezvous handshake, per-mode background reader, automatic reconnect,
// and typed record dispatch for one attached data FIFO.
//
// Slots are addressed by a small integer channel id the same way
// server.Channel is, the same fixed-slot-arena convention (see
// server/doc.go).
package client
