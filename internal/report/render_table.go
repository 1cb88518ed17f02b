package report

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"text/tabwriter"

	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
)

// Row is one rendered report line: the column values in Columns() order,
// each already formatted as a display string (plain decimal counters, or
// a human-readable byte size when plain is false).
type Row struct {
	Values []string
}

// BuildRows formats recs into display rows under cols, resolving mac/ip
// addresses to their textual form and, for the family column, "ipv4"/"ipv6".
// humanBytes selects human-readable byte/packet counters ("1.2K") over
// plain decimal, mirroring the client's `-n`/plain-numbers flag (spec.md §6).
func BuildRows(recs []recstore.Record, agg *Aggregator, cols []string, humanBytes bool) []Row {
	rows := make([]Row, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		rows = append(rows, Row{Values: formatRow(rec, agg, cols, humanBytes)})
	}
	return rows
}

func formatRow(rec *recstore.Record, agg *Aggregator, cols []string, humanBytes bool) []string {
	vals := make([]string, len(cols))
	for i, col := range cols {
		switch col {
		case "family":
			if rec.Family == recstore.FamilyV6 {
				vals[i] = "ipv6"
			} else {
				vals[i] = "ipv4"
			}
		case "proto":
			vals[i] = fmt.Sprintf("%d", rec.Proto)
		case "port":
			vals[i] = fmt.Sprintf("%d", rec.DstPort)
		case "mac":
			vals[i] = net.HardwareAddr(rec.SrcMAC[:6]).String()
		case "ip":
			vals[i] = formatAddr(rec)
		case "count":
			vals[i] = formatCount(rec.Count, humanBytes)
		case "tx_pkts":
			vals[i] = formatCount(rec.OutPkts, humanBytes)
		case "tx_bytes":
			vals[i] = formatCount(rec.OutBytes, humanBytes)
		case "rx_pkts":
			vals[i] = formatCount(rec.InPkts, humanBytes)
		case "rx_bytes":
			vals[i] = formatCount(rec.InBytes, humanBytes)
		default:
			vals[i] = ""
		}
	}
	return vals
}

func formatAddr(rec *recstore.Record) string {
	if rec.Family == recstore.FamilyV6 {
		var b [16]byte
		copy(b[:], rec.SrcAddr[:])
		return netip.AddrFrom16(b).String()
	}
	var b [4]byte
	copy(b[:], rec.SrcAddr[:4])
	return netip.AddrFrom4(b).String()
}

func formatCount(v uint64, human bool) string {
	if !human {
		return fmt.Sprintf("%d", v)
	}
	return humanSize(v)
}

func humanSize(v uint64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d", v)
	}
	div, exp := uint64(unit), 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := "KMGTPE"
	return fmt.Sprintf("%.1f%c", float64(v)/float64(div), suffixes[exp])
}

// RenderTable writes recs as a fixed-column tabular report to w, using
// text/tabwriter — the corpus-grounded stdlib fallback noted in
// SPEC_FULL.md §4 for the `show` output mode.
func RenderTable(w io.Writer, cols []string, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)

	for _, row := range rows {
		for i, v := range row.Values {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, v)
		}
		fmt.Fprintln(tw)
	}

	return tw.Flush()
}
