// Package blobstore provides the key to bytes artifact store contract and a
// local-filesystem implementation used by the daemon.
package blobstore
