// Package pkg holds the libraries behind the pyshim toolchain manager.
//
// # Overview
//
// pyshim builds CPython releases from source into a per-user home and
// dispatches python, pip and friends to the release a project pins in its
// .python-version file. The packages split along that flow:
//
//  1. [pyversion] parses versions and requirements and picks the best match
//  2. [config] and [settings] find the requirement for a directory
//  3. [toolchain] records what is installed and maps command names to binaries
//  4. [fetch] and [httputil] discover and download release archives
//  5. [install] extracts, builds and finalizes a release
//  6. [shim] resolves an invoked command name and launches the real binary
//
// Supporting packages: [paths] lays out the home directory, [cache] keeps the
// release index between runs, [progress] draws the build status line,
// [observability] exposes hooks for logging, and [errors] carries the
// stable error codes every failure maps to.
//
// # Resolution
//
//	cwd ──► .python-version (walking up) ──► global default
//	                  │
//	                  ▼
//	          requirement ──► registry ──► best installed version
//	                                              │
//	                                              ▼
//	                                  <install>/bin/<binary>
package pkg
