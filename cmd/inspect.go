package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"grimm.is/repeater/internal/ctlplane"
)

// RunScan lists upstream networks in range of the radio.
func RunScan(asJSON bool) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.Scan()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	if asJSON {
		return printJSON(os.Stdout, reply.Networks)
	}
	renderScan(os.Stdout, reply)
	return nil
}

// RunClients lists hotspot stations, connected and recently departed.
func RunClients(asJSON bool) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.Clients()
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}
	if asJSON {
		return printJSON(os.Stdout, reply)
	}
	renderClients(os.Stdout, reply, time.Now())
	return nil
}

// RunHistory prints the most recent lifecycle transitions.
func RunHistory(limit int, asJSON bool) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.History(limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if asJSON {
		return printJSON(os.Stdout, reply.Transitions)
	}
	renderHistory(os.Stdout, reply)
	return nil
}

func renderScan(out io.Writer, reply *ctlplane.ScanReply) {
	if len(reply.Networks) == 0 {
		Printer.Fprintln(out, "No networks found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w, "\tSSID\tBSSID\tSIGNAL\tFREQ\tSECURITY")
	for _, n := range reply.Networks {
		mark := ""
		if n.Associated {
			mark = "*"
		}
		ssid := n.SSID
		if ssid == "" {
			ssid = "(hidden)"
		}
		security := n.Security
		if security == "" {
			security = "open"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d dBm\t%d MHz\t%s\n", mark, ssid, n.BSSID, n.SignalDBm, n.FrequencyMHz, security)
	}
	w.Flush()
}

func renderClients(out io.Writer, reply *ctlplane.ClientsReply, now time.Time) {
	Printer.Fprintf(out, "%d clients connected\n", len(reply.Connected))
	if reply.Warning != "" {
		fmt.Fprintln(out, styleWarn.Render("warning: "+reply.Warning))
	}
	if len(reply.Connected) == 0 && len(reply.Recent) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w, "MAC\tIP\tHOSTNAME\tSIGNAL\tSEEN")
	for _, c := range reply.Connected {
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.MAC, orDash(c.IP), orDash(c.Hostname), signalText(c.SignalDBm), "now")
	}
	for _, c := range reply.Recent {
		seen := now.Sub(c.LastSeen).Round(time.Minute).String() + " ago"
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.MAC, orDash(c.IP), orDash(c.Hostname), "-", styleMuted.Render(seen))
	}
	w.Flush()
}

func renderHistory(out io.Writer, reply *ctlplane.HistoryReply) {
	if len(reply.Transitions) == 0 {
		Printer.Fprintln(out, "No transitions recorded.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w, "TIME\tFROM\tTO\tREASON")
	for _, t := range reply.Transitions {
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\n", t.At.Local().Format(time.DateTime), t.From, t.To, orDash(t.Reason))
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func signalText(dbm *int) string {
	if dbm == nil {
		return "-"
	}
	return fmt.Sprintf("%d dBm", *dbm)
}
