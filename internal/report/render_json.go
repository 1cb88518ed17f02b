package report

import (
	"encoding/json"
	"io"
)

// jsonReport is the structured output shape spec.md §4.3 specifies:
// {columns:[…], data:[[…], …]}.
type jsonReport struct {
	Columns []string   `json:"columns"`
	Data    [][]string `json:"data"`
}

// RenderJSON writes the {columns, data} structured form to w.
func RenderJSON(w io.Writer, cols []string, rows []Row) error {
	data := make([][]string, len(rows))
	for i, row := range rows {
		data[i] = row.Values
	}
	enc := json.NewEncoder(w)
	return enc.Encode(jsonReport{Columns: cols, Data: data})
}
