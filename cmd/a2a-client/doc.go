// Package main is the a2a-client command. It discovers an Agent Host from
// --host or A2A_AGENT_HOST, then sends one query (send) or the four sample
// queries (demo) and prints the replies. Unreachable hosts get troubleshooting
// steps instead of a bare error.
package main
