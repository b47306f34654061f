package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVHeaders returns the CSV column headers for audit records.
var CSVHeaders = []string{
	"id", "timestamp", "event", "ip", "mac", "xid", "hostname", "arch", "uuid",
	"boot_file", "lease_start", "lease_expiry", "server_id", "reason",
}

// WriteCSV writes audit records as CSV to the given writer.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeaders); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.FormatUint(r.ID, 10),
			r.Timestamp,
			r.Event,
			r.IP,
			r.MAC,
			r.XID,
			r.Hostname,
			r.Arch,
			r.UUID,
			r.BootFile,
			formatInt64(r.LeaseStart),
			formatInt64(r.LeaseExpiry),
			r.ServerID,
			r.Reason,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatInt64(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
