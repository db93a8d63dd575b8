// Package clientcmd implements the CLI verbs that talk to a running
// deque server over its HTTP API.
package clientcmd
