// internal/service/report_service_test.go
package service

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"quickcheck-service/internal/model"
)

func newReportServiceForTest(t *testing.T, measRepo *fakeMeasurementRepo) *ReportService {
	t.Helper()
	return NewReportService(measRepo, testConfig(), zaptest.NewLogger(t))
}

// storedRow builds a stored measurement with just enough flattened fields
// for the report assertions.
func storedRow(unit string, energy int, measuredAt time.Time, cax float64) *model.StoredMeasurement {
	return &model.StoredMeasurement{
		ID:            uuid.New(),
		DeviceID:      uuid.New(),
		RecordID:      int(measuredAt.Unix() % 10000),
		MeasuredAt:    measuredAt,
		TreatmentUnit: unit,
		Energy:        energy,
		Fields: model.JSONObject{
			"MD_ID":          12,
			"TASK_TUnit":     unit,
			"TASK_En":        energy,
			"TASK_Fs":        "20x20",
			"TASK_SSD":       100,
			"TASK_We":        0.0,
			"MV_CAX":         cax,
			"MV_Temp":        21.4,
			"MV_Press":       1013.2,
			"AV_CAX_Value":   cax,
			"AV_FLAT_Value":  1.001,
			"AV_SYMLR_Value": 1.003,
			"AV_SYMGT_Value": 0.999,
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

func TestGenerateUnitReportsWritesPerUnitCSV(t *testing.T) {
	measRepo := &fakeMeasurementRepo{}
	morning := time.Date(2025, 1, 8, 8, 15, 30, 0, time.UTC)
	// Inserted out of order; the export sorts by energy then time.
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("iX", 15, morning.Add(time.Minute), 1.004)))
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("iX", 6, morning, 1.002)))
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("Halcyon", 6, morning.Add(2*time.Minute), 0.998)))
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("TrueBeam", 6, morning, 1.000)))

	rs := newReportServiceForTest(t, measRepo)
	outputDir := t.TempDir()

	files, err := rs.GenerateUnitReports(context.Background(), &UnitReportRequest{OutputDir: outputDir})
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "iX", files[0].Unit)
	assert.Equal(t, filepath.Join(outputDir, "iX_sorted_output.csv"), files[0].Path)
	assert.Equal(t, 2, files[0].Rows)
	assert.Equal(t, "Halcyon", files[1].Unit)
	assert.Equal(t, filepath.Join(outputDir, "Halcyon_sorted_output.csv"), files[1].Path)
	assert.Equal(t, 1, files[1].Rows)

	records := readCSV(t, files[0].Path)
	require.Len(t, records, 3)

	header := records[0]
	require.Len(t, header, len(model.FieldNames)+1)
	idx := headerIndex(header)
	assert.Contains(t, idx, "Treatment Unit")
	assert.Contains(t, idx, "Energy")
	assert.Contains(t, idx, "Date")
	assert.Contains(t, idx, "Field Size")
	assert.Contains(t, idx, "SSD")
	assert.Contains(t, idx, "CAX")
	assert.Contains(t, idx, "Temperature")
	assert.Contains(t, idx, "Pressure")
	assert.NotContains(t, idx, "TASK_TUnit")
	assert.NotContains(t, idx, "MD_DateTime")
	assert.Equal(t, "Time", header[len(header)-1])

	first, second := records[1], records[2]
	assert.Equal(t, "6", first[idx["Energy"]])
	assert.Equal(t, "15", second[idx["Energy"]])
	assert.Equal(t, "iX", first[idx["Treatment Unit"]])
	assert.Equal(t, "08/01/2025", first[idx["Date"]])
	assert.Equal(t, "08:15:30", first[idx["Time"]])
	assert.Equal(t, "08:16:30", second[idx["Time"]])
	assert.Equal(t, "1.002", first[idx["CAX"]])
	assert.Equal(t, "1.004", second[idx["CAX"]])
	// Fields never harvested stay empty instead of failing the export.
	assert.Equal(t, "", first[idx["WORK_Name"]])
}

func TestGenerateUnitReportsExplicitUnits(t *testing.T) {
	measRepo := &fakeMeasurementRepo{}
	at := time.Date(2025, 3, 2, 7, 0, 0, 0, time.UTC)
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("iX", 6, at, 1.002)))
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("Halcyon", 6, at, 0.998)))

	rs := newReportServiceForTest(t, measRepo)

	files, err := rs.GenerateUnitReports(context.Background(), &UnitReportRequest{
		Units:     []string{"Halcyon"},
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Halcyon", files[0].Unit)
	assert.Equal(t, 1, files[0].Rows)
}

func TestGenerateUnitReportsTimeWindow(t *testing.T) {
	measRepo := &fakeMeasurementRepo{}
	at := time.Date(2025, 3, 2, 7, 0, 0, 0, time.UTC)
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("iX", 6, at.AddDate(0, 0, -30), 1.001)))
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("iX", 6, at, 1.002)))

	rs := newReportServiceForTest(t, measRepo)
	from := at.AddDate(0, 0, -7)

	files, err := rs.GenerateUnitReports(context.Background(), &UnitReportRequest{
		Units:     []string{"iX"},
		From:      &from,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 1, files[0].Rows)
}

func TestGenerateUnitReportsEmptyUnitStillWritesHeader(t *testing.T) {
	rs := newReportServiceForTest(t, &fakeMeasurementRepo{})

	files, err := rs.GenerateUnitReports(context.Background(), &UnitReportRequest{
		Units:     []string{"iX"},
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 0, files[0].Rows)

	records := readCSV(t, files[0].Path)
	require.Len(t, records, 1)
	assert.Len(t, records[0], len(model.FieldNames)+1)
}

func TestDailyReportRestrictsToDay(t *testing.T) {
	measRepo := &fakeMeasurementRepo{}
	day := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("iX", 6, day.Add(8*time.Hour), 1.002)))
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("iX", 15, day.Add(9*time.Hour), 1.004)))
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("iX", 6, day.AddDate(0, 0, -1), 0.990)))
	require.NoError(t, measRepo.Upsert(context.Background(), storedRow("Halcyon", 6, day.Add(10*time.Hour), 0.998)))

	rs := newReportServiceForTest(t, measRepo)

	reports, err := rs.DailyReport(context.Background(), &DailyReportRequest{Date: day.Add(13 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, reports, 2)

	ix := reports[0]
	assert.Equal(t, "iX", ix.Unit)
	assert.Equal(t, "08/01/2025", ix.Date)
	assert.Equal(t, dailyColumns, ix.Columns)
	require.Len(t, ix.Rows, 2)

	row := ix.Rows[0]
	require.Len(t, row, len(dailyColumns))
	assert.Equal(t, "1.002", row["AV_CAX_Value"])
	assert.Equal(t, "1.001", row["AV_FLAT_Value"])
	assert.Equal(t, "08:00:00", row["MD_Time"])
	assert.Equal(t, "09:00:00", ix.Rows[1]["MD_Time"])

	halcyon := reports[1]
	assert.Equal(t, "Halcyon", halcyon.Unit)
	require.Len(t, halcyon.Rows, 1)
	assert.Equal(t, "0.998", halcyon.Rows[0]["AV_CAX_Value"])
}
