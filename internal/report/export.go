// Package report writes run results to files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"bookload/internal/runner"
	"bookload/internal/stats"
	"bookload/internal/storage"
)

// WriteCSV writes request samples in a JMeter-compatible CSV layout.
// Schema: timeStamp,elapsed,label,responseCode,responseMessage,threadName,dataType,success,failureMessage,bytes,sentBytes,grpThreads,allThreads,URL,Latency,IdleTime,Connect
func WriteCSV(w io.Writer, samples []stats.Sample) error {
	cw := csv.NewWriter(w)

	// Header
	header := []string{
		"timeStamp", "elapsed", "label", "responseCode", "responseMessage",
		"threadName", "dataType", "success", "failureMessage", "bytes",
		"sentBytes", "grpThreads", "allThreads", "URL", "Latency", "IdleTime", "Connect",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, s := range samples {
		if s.Kind != stats.KindRequest {
			continue
		}

		code := strconv.Itoa(s.Status)
		if s.Status == 0 {
			code = s.Outcome.String()
		}

		record := []string{
			strconv.FormatInt(s.Time.UnixMilli(), 10),
			strconv.FormatInt(s.Duration.Milliseconds(), 10),
			s.Journey + " " + s.Step, // label
			code,
			http.StatusText(s.Status),
			s.Journey + "-" + s.Instance, // thread name
			"text",
			strconv.FormatBool(s.Outcome == stats.OK),
			s.Detail,
			"0", "0", // bytes, sentBytes (not tracked)
			"1", "1", // grpThreads, allThreads
			s.Step,
			strconv.FormatInt(s.Duration.Milliseconds(), 10),
			"0", // IdleTime
			"0", // Connect (not separated)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSamplesJSON writes every sample, in recording order.
func WriteSamplesJSON(w io.Writer, samples []stats.Sample) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if samples == nil {
		samples = []stats.Sample{}
	}
	return enc.Encode(samples)
}

// WriteSummaryJSON writes the run summary (the same shape kept in history).
func WriteSummaryJSON(w io.Writer, item storage.HistoryItem) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(item)
}

// Export writes prefix.csv, prefix.json and prefix_summary.json and returns
// the paths written.
func Export(prefix string, rep runner.Report, baseURL string, samples []stats.Sample) ([]string, error) {
	files := []struct {
		path  string
		write func(io.Writer) error
	}{
		{prefix + ".csv", func(w io.Writer) error { return WriteCSV(w, samples) }},
		{prefix + ".json", func(w io.Writer) error { return WriteSamplesJSON(w, samples) }},
		{prefix + "_summary.json", func(w io.Writer) error { return WriteSummaryJSON(w, storage.FromReport(rep, baseURL)) }},
	}

	var written []string
	for _, f := range files {
		if err := writeFile(f.path, f.write); err != nil {
			return written, err
		}
		written = append(written, f.path)
	}
	return written, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
