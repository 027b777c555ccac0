// Package server implements the mpa server connection engine (spec §4.3)
// and control channel (spec §4.5): publishing an endpoint, accepting
// client rendezvous, allocating per-client data FIFOs, and fanning out
// records with per-client non-blocking back-pressure.
//
// Channels are addressed by a small integer id in [0, MaxChannels), the
// same fixed-slot-arena convention as a fixed-size device table: Create
// claims channel id's slot, Close releases it.
package server
