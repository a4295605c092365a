// Package fetcher downloads browser snapshots and installs them locally.
//
// Builds are installed as <folder>/<platform>-<revision>/<archive>/...; for
// example revision 1132420 on Linux lands in
// .local-browser/linux-1132420/chrome-linux/chrome. Downloads go through a
// resty client with retries and a circuit breaker. Archives are identified by
// content and extracted with path traversal checks.
package fetcher
