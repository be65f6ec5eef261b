// Package sinks implements the external stores that component outputs are
// written to and read back from.
//
// Two sink kinds exist:
//
//   - TextSink: a per-module namelist override file (user_nl_<module>) in the
//     case directory. Entries are grouped in blocks that start with a
//     "! <tag>" comment line and end at a blank line. Appending a block first
//     removes any block with the same tag, so repeated writes are idempotent.
//   - RegistrySink: the case's XML variable registry, driven through the
//     xmlchange and xmlquery helper scripts. Values can be set and queried but
//     never removed.
//
// Registry calls go through the CommandRunner port. ExecRunner runs the
// scripts as local subprocesses, SSHRunner routes them to a remote host and
// FakeRunner keeps an in-memory registry for tests.
package sinks
