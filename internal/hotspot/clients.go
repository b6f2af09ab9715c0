package hotspot

import (
	"bufio"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client is a station associated with or leased by the hotspot. Fields a
// source did not provide are left empty or nil.
type Client struct {
	MAC          string     `json:"mac"`
	IP           string     `json:"ip,omitempty"`
	Hostname     string     `json:"hostname,omitempty"`
	SignalDBm    *int       `json:"signal_dbm,omitempty"`
	LeaseExpires *time.Time `json:"lease_expires,omitempty"`
}

type leaseRecord struct {
	MAC      string
	IP       string
	Hostname string
	Expires  time.Time
}

// parseLeases reads dnsmasq lease lines: "<expiry> <mac> <ip> <hostname> <client-id>".
func parseLeases(data string) []leaseRecord {
	var out []leaseRecord
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 4 {
			continue
		}
		rec := leaseRecord{MAC: strings.ToLower(f[1]), IP: f[2]}
		if f[3] != "*" {
			rec.Hostname = f[3]
		}
		if ts, err := strconv.ParseInt(f[0], 10, 64); err == nil && ts > 0 {
			rec.Expires = time.Unix(ts, 0)
		}
		out = append(out, rec)
	}
	return out
}

// parseStationDump maps station MACs to their signal from
// `iw dev <if> station dump`. Stations without a signal line map to nil.
func parseStationDump(out string) map[string]*int {
	stations := make(map[string]*int)
	var cur string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Station "):
			f := strings.Fields(line)
			if len(f) >= 2 {
				cur = strings.ToLower(f[1])
				stations[cur] = nil
			}
		case strings.HasPrefix(line, "signal:") && cur != "":
			f := strings.Fields(strings.TrimPrefix(line, "signal:"))
			if len(f) == 0 {
				continue
			}
			if v, err := strconv.Atoi(f[0]); err == nil {
				stations[cur] = &v
			}
		}
	}
	return stations
}

// mergeClients joins lease and station data by MAC, sorted by MAC.
func mergeClients(leases []leaseRecord, stations map[string]*int) []Client {
	byMAC := make(map[string]*Client)
	for _, l := range leases {
		c := &Client{MAC: l.MAC, IP: l.IP, Hostname: l.Hostname}
		if !l.Expires.IsZero() {
			exp := l.Expires
			c.LeaseExpires = &exp
		}
		byMAC[l.MAC] = c
	}
	for mac, sig := range stations {
		c, ok := byMAC[mac]
		if !ok {
			c = &Client{MAC: mac}
			byMAC[mac] = c
		}
		c.SignalDBm = sig
	}

	out := make([]Client, 0, len(byMAC))
	for _, c := range byMAC {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}
