// internal/service/report_service.go
package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"quickcheck-service/internal/config"
	"quickcheck-service/internal/model"
	"quickcheck-service/internal/repository"
	"quickcheck-service/internal/utils"
)

// reportRenames maps stored field names to the column headers reporting
// consumers expect.
var reportRenames = map[string]string{
	"TASK_TUnit":  "Treatment Unit",
	"TASK_En":     "Energy",
	"MD_DateTime": "Date",
	"TASK_Fs":     "Field Size",
	"TASK_SSD":    "SSD",
	"MV_CAX":      "CAX",
	"MV_Temp":     "Temperature",
	"MV_Press":    "Pressure",
}

// dailyColumns is the reduced column set of the daily constancy view.
var dailyColumns = []string{
	"AV_CAX_Value", "AV_FLAT_Value", "AV_SYMLR_Value", "AV_SYMGT_Value",
	"TASK_We", "MD_Time",
}

// ReportService produces per-unit CSV exports and daily constancy views
// from stored measurements
type ReportService struct {
	measRepo repository.MeasurementRepository
	config   *config.Config
	logger   *utils.ServiceLogger
}

// NewReportService creates a new report service instance
func NewReportService(
	measRepo repository.MeasurementRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		measRepo: measRepo,
		config:   cfg,
		logger:   utils.NewServiceLogger(logger, "report-service"),
	}
}

// UnitReportRequest selects which treatment units to export and where.
type UnitReportRequest struct {
	Units     []string   `json:"units"`
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
	OutputDir string     `json:"output_dir"`
}

// ReportFile describes one generated CSV export.
type ReportFile struct {
	Unit string `json:"unit"`
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

// GenerateUnitReports writes one CSV per treatment unit of interest,
// rows ordered by energy then measurement time.
func (rs *ReportService) GenerateUnitReports(ctx context.Context, req *UnitReportRequest) ([]ReportFile, error) {
	units := req.Units
	if len(units) == 0 {
		units = rs.config.Report.UnitsOfInterest
	}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = rs.config.Report.OutputDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	files := make([]ReportFile, 0, len(units))
	for _, unit := range units {
		rows, err := rs.measRepo.List(ctx, repository.MeasurementFilter{
			TreatmentUnit: unit,
			From:          req.From,
			To:            req.To,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load measurements for %s: %w", unit, err)
		}

		path := filepath.Join(outputDir, unit+"_sorted_output.csv")
		if err := rs.writeUnitCSV(path, rows); err != nil {
			return nil, err
		}

		rs.logger.Info("Unit report written",
			zap.String("unit", unit),
			zap.String("path", path),
			zap.Int("rows", len(rows)),
		)
		files = append(files, ReportFile{Unit: unit, Path: path, Rows: len(rows)})
	}
	return files, nil
}

func (rs *ReportService) writeUnitCSV(path string, rows []*model.StoredMeasurement) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := make([]string, 0, len(model.FieldNames)+1)
	for _, name := range model.FieldNames {
		header = append(header, renameColumn(name))
	}
	header = append(header, "Time")
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, row := range rows {
		record := make([]string, 0, len(header))
		for _, name := range model.FieldNames {
			if name == "MD_DateTime" {
				record = append(record, row.MeasuredAt.Format(rs.config.Report.DateFormat))
				continue
			}
			record = append(record, formatField(row.Fields[name]))
		}
		record = append(record, row.MeasuredAt.Format(model.TimeLayout))
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// DailyReportRequest selects the day and units of the daily view.
type DailyReportRequest struct {
	Date  time.Time `json:"date"`
	Units []string  `json:"units"`
}

// DailyUnitReport is the reduced daily constancy view for one unit.
type DailyUnitReport struct {
	Unit    string              `json:"unit"`
	Date    string              `json:"date"`
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// DailyReport returns the reduced constancy columns for each unit of
// interest, restricted to measurements taken on the given day.
func (rs *ReportService) DailyReport(ctx context.Context, req *DailyReportRequest) ([]DailyUnitReport, error) {
	units := req.Units
	if len(units) == 0 {
		units = rs.config.Report.UnitsOfInterest
	}
	day := req.Date
	if day.IsZero() {
		day = time.Now()
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.Add(24 * time.Hour)

	reports := make([]DailyUnitReport, 0, len(units))
	for _, unit := range units {
		rows, err := rs.measRepo.List(ctx, repository.MeasurementFilter{
			TreatmentUnit: unit,
			From:          &from,
			To:            &to,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load measurements for %s: %w", unit, err)
		}

		report := DailyUnitReport{
			Unit:    unit,
			Date:    from.Format(rs.config.Report.DateFormat),
			Columns: dailyColumns,
			Rows:    make([]map[string]string, 0, len(rows)),
		}
		for _, row := range rows {
			out := make(map[string]string, len(dailyColumns))
			for _, col := range dailyColumns {
				if col == "MD_Time" {
					out[col] = row.MeasuredAt.Format(model.TimeLayout)
					continue
				}
				out[col] = formatField(row.Fields[col])
			}
			report.Rows = append(report.Rows, out)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func renameColumn(name string) string {
	if renamed, ok := reportRenames[name]; ok {
		return renamed
	}
	return name
}

// formatField renders a flattened field value for CSV. Values read back
// from JSONB arrive as float64 or string regardless of the original Go
// type.
func formatField(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprint(val)
	}
}
