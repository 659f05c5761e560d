package downloads

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/payback159/contactgate/pkg/logging"
	"github.com/payback159/contactgate/pkg/monitoring"
	"github.com/payback159/contactgate/pkg/security"
	"github.com/xuri/excelize/v2"
)

const (
	csvFilename   = "security_events.csv"
	excelFilename = "security_events.xlsx"
	sheetName     = "Security Events"
)

var eventHeaders = []string{"ID", "Timestamp", "Type", "Severity", "Message", "Metadata"}

// setCellValueSafe safely sets a cell value with error handling
func setCellValueSafe(f *excelize.File, sheet string, col, row int, value interface{}, requestID, ip string) error {
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err == nil {
		err = f.SetCellValue(sheet, axis, value)
	}
	if err != nil {
		logging.LogError("Failed to set cell value", err,
			"sheet", sheet,
			"axis", axis,
			"request_id", requestID,
			"ip", ip)
		return err
	}
	return nil
}

// setCellStyleSafe safely sets a row style with error handling
func setCellStyleSafe(f *excelize.File, sheet string, row, styleID int, requestID, ip string) {
	hCell, _ := excelize.CoordinatesToCellName(1, row)
	vCell, _ := excelize.CoordinatesToCellName(len(eventHeaders), row)
	if err := f.SetCellStyle(sheet, hCell, vCell, styleID); err != nil {
		logging.LogError("Failed to set cell style", err,
			"sheet", sheet,
			"range", fmt.Sprintf("%s:%s", hCell, vCell),
			"request_id", requestID,
			"ip", ip)
		// Non-critical error for styles, continue execution
	}
}

// createSheetSafe safely creates a new sheet with error handling
func createSheetSafe(f *excelize.File, name, requestID, ip string) error {
	if _, err := f.NewSheet(name); err != nil {
		logging.LogError("Failed to create sheet", err,
			"sheet_name", name,
			"request_id", requestID,
			"ip", ip)
		return err
	}
	return nil
}

// deleteSheetSafe safely deletes a sheet with error handling
func deleteSheetSafe(f *excelize.File, name, requestID, ip string) {
	if err := f.DeleteSheet(name); err != nil {
		logging.LogError("Failed to delete sheet", err,
			"sheet_name", name,
			"request_id", requestID,
			"ip", ip)
		// Non-critical error, continue
	}
}

// writeResponseSafe safely writes response with error handling
func writeResponseSafe(w http.ResponseWriter, buffer *bytes.Buffer, requestID, ip string) {
	if _, err := w.Write(buffer.Bytes()); err != nil {
		logging.LogError("Failed to write response", err,
			"request_id", requestID,
			"ip", ip)
		// Response already started, can't send error status
	}
}

// sanitizeCSVField prevents CSV injection and properly escapes fields
func sanitizeCSVField(field string) string {
	// Prevent formula injection: prefix dangerous first characters
	if len(field) > 0 {
		first := field[0]
		if first == '=' || first == '+' || first == '-' || first == '@' || first == '\t' || first == '\r' {
			field = "'" + field
		}
	}
	// Properly quote fields containing commas, quotes, or newlines
	if strings.ContainsAny(field, ",\"\n") {
		field = "\"" + strings.ReplaceAll(field, "\"", "\"\"") + "\""
	}
	return field
}

// formatMetadata renders metadata as "key=value" pairs in key order
func formatMetadata(metadata map[string]any) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, metadata[k]))
	}
	return strings.Join(parts, "; ")
}

// eventRow returns the exported columns of an event
func eventRow(e monitoring.Event) []string {
	return []string{
		e.ID,
		e.Timestamp.Format(time.RFC3339),
		string(e.Type),
		string(e.Severity),
		e.Message,
		formatMetadata(e.Metadata),
	}
}

// createSeverityStyles creates colored Excel styles for each severity
func createSeverityStyles(f *excelize.File) map[monitoring.Severity]int {
	styles := make(map[monitoring.Severity]int)
	colors := map[monitoring.Severity]string{
		monitoring.SeverityError: "#f8d7da",
		monitoring.SeverityWarn:  "#fff3cd",
		monitoring.SeverityInfo:  "#d4edda",
		monitoring.SeverityDebug: "#e2e3e5",
	}
	for sev, color := range colors {
		style, _ := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Border: []excelize.Border{
				{Type: "left", Color: "#000000", Style: 1},
				{Type: "top", Color: "#000000", Style: 1},
				{Type: "right", Color: "#000000", Style: 1},
				{Type: "bottom", Color: "#000000", Style: 1},
			},
		})
		styles[sev] = style
	}
	return styles
}

// setDownloadHeaders sets common security and caching headers for downloads
func setDownloadHeaders(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// HandleEventsCSV handles CSV download of the security event journal
func HandleEventsCSV(w http.ResponseWriter, r *http.Request, monitor *monitoring.Monitor) {
	start := time.Now()
	requestID := middleware.GetReqID(r.Context())
	ip := security.GetClientIP(r)

	events := monitor.Recent()

	logging.LogInfo("Security event CSV download requested",
		"request_id", requestID,
		"ip", ip,
		"event_count", len(events))

	// Generate CSV content
	var buffer bytes.Buffer
	buffer.WriteString(strings.Join(eventHeaders, ",") + "\n")

	for _, e := range events {
		cols := eventRow(e)
		for i, c := range cols {
			cols[i] = sanitizeCSVField(c)
		}
		buffer.WriteString(strings.Join(cols, ",") + "\n")
	}

	// Set headers for file download
	setDownloadHeaders(w, "text/csv", csvFilename)

	// Write content to response
	writeResponseSafe(w, &buffer, requestID, ip)

	duration := time.Since(start)
	logging.LogFileOperation("csv_download", csvFilename, int64(buffer.Len()), duration, true,
		"request_id", requestID,
		"ip", ip,
		"event_count", len(events))
}

// HandleEventsExcel handles Excel download of the security event journal
func HandleEventsExcel(w http.ResponseWriter, r *http.Request, monitor *monitoring.Monitor) {
	start := time.Now()
	requestID := middleware.GetReqID(r.Context())
	ip := security.GetClientIP(r)

	events := monitor.Recent()

	logging.LogInfo("Security event Excel download requested",
		"request_id", requestID,
		"ip", ip,
		"event_count", len(events))

	// Create Excel file
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logging.LogError("Failed to close Excel file", err, "request_id", requestID, "ip", ip)
		}
	}()

	if err := createSheetSafe(f, sheetName, requestID, ip); err != nil {
		http.Error(w, "Failed to generate Excel file", http.StatusInternalServerError)
		return
	}
	deleteSheetSafe(f, "Sheet1", requestID, ip)

	// Header style
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#f2f2f2"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "#000000", Style: 1},
			{Type: "top", Color: "#000000", Style: 1},
			{Type: "right", Color: "#000000", Style: 1},
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})

	// Add headers
	for i, h := range eventHeaders {
		if err := setCellValueSafe(f, sheetName, i+1, 1, h, requestID, ip); err != nil {
			http.Error(w, "Failed to generate Excel file", http.StatusInternalServerError)
			return
		}
	}
	setCellStyleSafe(f, sheetName, 1, headerStyle, requestID, ip)

	severityStyles := createSeverityStyles(f)

	// Add data with styling
	for i, e := range events {
		row := i + 2
		for col, v := range eventRow(e) {
			if err := setCellValueSafe(f, sheetName, col+1, row, v, requestID, ip); err != nil {
				http.Error(w, "Failed to generate Excel file", http.StatusInternalServerError)
				return
			}
		}
		if style, exists := severityStyles[e.Severity]; exists {
			setCellStyleSafe(f, sheetName, row, style, requestID, ip)
		}
	}

	// Set headers for file download
	setDownloadHeaders(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", excelFilename)

	// Write the file to response
	if err := f.Write(w); err != nil {
		logging.LogError("Failed to write Excel file", err, "request_id", requestID, "ip", ip)
		http.Error(w, "Failed to generate Excel file", http.StatusInternalServerError)
		return
	}

	duration := time.Since(start)
	logging.LogFileOperation("excel_download", excelFilename, 0, duration, true,
		"request_id", requestID,
		"ip", ip,
		"event_count", len(events))
}
