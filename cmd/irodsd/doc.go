// Command irodsd supervises the iRODS server worker processes: it creates the
// mailbox, spawns the request factory, job runner and control plane workers,
// and shuts them down in order when the control plane receives "shutdown".
package main
