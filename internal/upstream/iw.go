package upstream

import (
	"bufio"
	"sort"
	"strconv"
	"strings"
)

// Association is the parsed output of `iw dev <if> link`.
type Association struct {
	Associated bool
	BSSID      string
	SSID       string
	FreqMHz    int
	SignalDBm  *int
	TxBitrate  string
}

// ParseLink parses `iw dev <if> link` output.
func ParseLink(out string) Association {
	var a Association
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Not connected"):
			return Association{}
		case strings.HasPrefix(line, "Connected to "):
			a.Associated = true
			if f := strings.Fields(line); len(f) >= 3 {
				a.BSSID = f[2]
			}
		case strings.HasPrefix(line, "SSID:"):
			a.SSID = strings.TrimSpace(strings.TrimPrefix(line, "SSID:"))
		case strings.HasPrefix(line, "freq:"):
			a.FreqMHz = parseFreq(strings.TrimPrefix(line, "freq:"))
		case strings.HasPrefix(line, "signal:"):
			a.SignalDBm = parseSignal(strings.TrimPrefix(line, "signal:"))
		case strings.HasPrefix(line, "tx bitrate:"):
			a.TxBitrate = strings.TrimSpace(strings.TrimPrefix(line, "tx bitrate:"))
		}
	}
	return a
}

// Network is one BSS seen in a scan.
type Network struct {
	SSID         string `json:"ssid"`
	BSSID        string `json:"bssid"`
	SignalDBm    int    `json:"signal_dbm"`
	FrequencyMHz int    `json:"frequency_mhz"`
	Security     string `json:"security"`
	Associated   bool   `json:"associated,omitempty"`
}

// ParseScan parses `iw dev <if> scan` output, strongest first.
// Hidden networks are omitted.
func ParseScan(out string) []Network {
	var (
		nets    []Network
		cur     *Network
		privacy bool
	)
	flush := func() {
		if cur == nil {
			return
		}
		if cur.Security == "" {
			cur.Security = "open"
			if privacy {
				cur.Security = "wep"
			}
		}
		if cur.SSID != "" {
			nets = append(nets, *cur)
		}
		cur = nil
		privacy = false
	}

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(raw, "BSS ") {
			flush()
			cur = &Network{}
			rest := strings.TrimPrefix(raw, "BSS ")
			if i := strings.IndexAny(rest, "( "); i > 0 {
				cur.BSSID = rest[:i]
			} else {
				cur.BSSID = rest
			}
			cur.Associated = strings.Contains(rest, "-- associated")
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "SSID:"):
			cur.SSID = strings.TrimSpace(strings.TrimPrefix(line, "SSID:"))
		case strings.HasPrefix(line, "freq:"):
			cur.FrequencyMHz = parseFreq(strings.TrimPrefix(line, "freq:"))
		case strings.HasPrefix(line, "signal:"):
			if s := parseSignal(strings.TrimPrefix(line, "signal:")); s != nil {
				cur.SignalDBm = *s
			}
		case strings.HasPrefix(line, "RSN:"):
			cur.Security = "wpa2"
		case strings.HasPrefix(line, "WPA:"):
			if cur.Security == "" {
				cur.Security = "wpa"
			}
		case strings.HasPrefix(line, "capability:"):
			privacy = strings.Contains(line, "Privacy")
		}
	}
	flush()

	sort.SliceStable(nets, func(i, j int) bool {
		return nets[i].SignalDBm > nets[j].SignalDBm
	})
	return nets
}

// parseSignal reads "-52 dBm" or "-48.00 dBm".
func parseSignal(s string) *int {
	f := strings.Fields(s)
	if len(f) == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(f[0], 64)
	if err != nil {
		return nil
	}
	dbm := int(v)
	return &dbm
}

func parseFreq(s string) int {
	f := strings.Fields(s)
	if len(f) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(f[0], 64)
	if err != nil {
		return 0
	}
	return int(v)
}
