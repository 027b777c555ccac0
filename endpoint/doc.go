// Package endpoint implements the path and metadata utilities of the mpa
// fabric (spec §4.1): expanding a short channel name to a full endpoint
// directory, reading and writing the JSON descriptor, recursively creating
// and removing the directory tree, existence/type checks, and the
// liveness-stop sequence used to tear down a crashed server's endpoint.
package endpoint
