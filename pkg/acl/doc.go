// Package acl restricts what client associations may do on a logical
// device.
//
// Each Entry grants a privilege to a set of clients, identified by their
// client SAP, on a set of targets, identified by class and logical name.
// An entry may require HLS authentication.
//
// Key concepts:
//   - Privilege: View < Operate < Manage (hierarchy)
//   - View reads attributes, Operate adds method invocation, Manage adds writes
//   - AuthMode: Public (any association) or HLS (authenticated only)
//   - Target: class and/or logical name, nil fields match anything
//
// The check:
//  1. Internal operations (no association in the context) are allowed
//  2. For each entry, the privilege, auth mode, client and target must match
//  3. The first matching entry grants access; no match means denied
//
// Attribute and method access modes of the objects still apply on top of
// the list.
package acl
