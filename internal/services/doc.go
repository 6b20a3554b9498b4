// Package services defines the error taxonomy shared by pipeline steps and
// the context annotations used to thread job identity through them.
package services
