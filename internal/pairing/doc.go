// Package pairing stores the single pairing credential used to reach the
// paired host.
//
// A [Store] owns one file (by default pairingFile.plist). Importing a new
// credential is a destructive replace: the source is validated first, then
// the existing file is deleted and the source copied in. There is no
// staging copy, so a crash between the delete and the copy leaves no
// credential, which the connection lifecycle treats as a first run.
//
// [Inspect] decodes the property list (XML or binary) to expose the
// identifiers the heartbeat service checks. The stored blob itself is never
// rewritten.
//
// [Watcher] watches an inbox directory and reports newly dropped pairing
// files so they can be imported without user interaction.
package pairing
