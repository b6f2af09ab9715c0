// Package network abstracts the host boundary the extender drives: netlink
// link and address operations, sysctl access, external commands and
// pidfile-managed daemons (hostapd, dnsmasq, wpa_supplicant).
//
// Every collaborator takes these interfaces at construction so unit tests can
// substitute MockNetlinker, MockSystemController and MockCommandExecutor.
//
// # Dependencies
//
// Uses github.com/vishvananda/netlink for all netlink operations.
package network
