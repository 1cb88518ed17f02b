// Command nlbw is the reporting client: it dials the daemon's control
// socket, issues one of dump/list/commit, and for dump responses
// re-aggregates the stream under a group/sort projection before rendering
// it as a table, JSON, or delimited text. Flags follow spec.md §6's client
// CLI surface.
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nlbwmon/nlbwmon-go/internal/catalog"
	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
	"github.com/nlbwmon/nlbwmon-go/internal/report"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		socketPath  string
		groupSpec   []string
		sortSpec    []string
		catalogPath string
		plain       bool
		sep         string
		quote       string
		escape      string
	)

	cmd := &cobra.Command{
		Use:   "nlbw [show|json|csv|list|commit] [timestamp]",
		Short: "query the bandwidth accounting daemon",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := args[0]
			var stamp uint32
			if len(args) == 2 {
				v, err := strconv.ParseUint(args[1], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid timestamp %q: %w", args[1], err)
				}
				stamp = uint32(v)
			}

			conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", socketPath, err)
			}
			defer conn.Close()

			switch mode {
			case "show", "json", "csv":
				return runDump(conn, stamp, mode, groupSpec, sortSpec, catalogPath, plain, sep, quote, escape)
			case "list":
				return runList(conn)
			case "commit":
				return runCommit(conn)
			default:
				return fmt.Errorf("unknown command %q: expected show, json, csv, list, or commit", mode)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&socketPath, "socket", "s", "/var/run/nlbwmon.sock", "control endpoint unix socket path")
	flags.StringSliceVarP(&groupSpec, "group", "g", nil, "group projection field (repeatable); default family,host,layer7")
	flags.StringSliceVarP(&sortSpec, "order", "o", nil, "sort projection field, optionally prefixed \"-\" for descending (repeatable)")
	flags.StringVarP(&catalogPath, "protocols", "p", "/usr/share/nlbwmon/protocols", "protocol catalog file path")
	flags.BoolVarP(&plain, "plain", "n", false, "print raw byte counts instead of human-readable sizes")
	flags.StringVar(&sep, "sep", ",", "csv mode field separator")
	flags.StringVar(&quote, "quote", "\"", "csv mode quote character")
	flags.StringVar(&escape, "escape", "\\", "csv mode escape character")

	return cmd
}

func runDump(conn net.Conn, stamp uint32, mode string, groupSpec, sortSpec []string, catalogPath string, plain bool, sep, quote, escape string) error {
	cmdLine := "dump"
	if stamp != 0 {
		cmdLine = fmt.Sprintf("dump %d", stamp)
	}
	if _, err := conn.Write([]byte(cmdLine + "\n")); err != nil {
		return err
	}

	header, err := readHeader(conn)
	if err != nil {
		return err
	}

	group, err := parseFields(groupSpec, report.DefaultGroupProjection())
	if err != nil {
		return err
	}
	sortKeys, err := parseSortKeys(sortSpec, report.DefaultSortProjection())
	if err != nil {
		return err
	}

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		cat = catalog.Empty()
	}

	agg := report.New(group, sortKeys, cat)
	for i := uint32(0); i < header.Entries; i++ {
		buf := make([]byte, recstore.RecSize)
		if _, err := readFull(conn, buf); err != nil {
			return fmt.Errorf("reading record %d of %d: %w", i+1, header.Entries, err)
		}
		rec := recstore.DecodeRecord(buf)
		if err := agg.Insert(&rec); err != nil {
			return err
		}
	}

	recs := agg.Finalize()
	cols := agg.Columns()
	rows := report.BuildRows(recs, agg, cols, !plain)

	switch mode {
	case "show":
		return report.RenderTable(os.Stdout, cols, rows)
	case "json":
		return report.RenderJSON(os.Stdout, cols, rows)
	case "csv":
		opts := report.DefaultDelimOptions()
		if sep != "" {
			opts.Sep = []rune(sep)[0]
		}
		if quote != "" {
			opts.Quote = []rune(quote)[0]
		}
		if escape != "" {
			opts.Escape = []rune(escape)[0]
		}
		return report.RenderDelim(os.Stdout, cols, rows, opts)
	default:
		return fmt.Errorf("unknown render mode %q", mode)
	}
}

func runList(conn net.Conn) error {
	if _, err := conn.Write([]byte("list\n")); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for {
		n, err := readFull(conn, buf)
		if n == 4 {
			stamp := binary.NativeEndian.Uint32(buf)
			fmt.Println(stamp)
		}
		if err != nil {
			return nil
		}
	}
}

func runCommit(conn net.Conn) error {
	if _, err := conn.Write([]byte("commit\n")); err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return err
	}
	line = strings.TrimSpace(line)

	fields := strings.SplitN(line, " ", 2)
	code, cerr := strconv.Atoi(fields[0])
	if cerr != nil {
		return fmt.Errorf("malformed commit response %q", line)
	}
	if code != 0 {
		msg := line
		if len(fields) == 2 {
			msg = fields[1]
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(-code)
	}
	return nil
}

func parseFields(specs []string, deflt []report.Field) ([]report.Field, error) {
	if len(specs) == 0 {
		return deflt, nil
	}
	out := make([]report.Field, 0, len(specs))
	for _, s := range specs {
		f, err := report.ParseField(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseSortKeys(specs []string, deflt []report.SortKey) ([]report.SortKey, error) {
	if len(specs) == 0 {
		return deflt, nil
	}
	out := make([]report.SortKey, 0, len(specs))
	for _, s := range specs {
		k, err := report.ParseSortKey(s)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func readHeader(conn net.Conn) (recstore.Header, error) {
	buf := make([]byte, recstore.HeaderSize)
	if _, err := readFull(conn, buf); err != nil {
		return recstore.Header{}, fmt.Errorf("reading response header: %w", err)
	}
	if !recstore.MagicValid(buf) {
		return recstore.Header{}, fmt.Errorf("response is not a valid database header")
	}
	return recstore.DecodeHeader(buf), nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
