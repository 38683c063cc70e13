// internal/model/measurement.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Layouts used by the QuickCheck wire grammar and the flattened field view.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02T15:04:05"
)

// AssessedBlockNames lists the AV sub-blocks in wire order.
var AssessedBlockNames = []string{"CAX", "FLAT", "SYMGT", "SYMLR", "BQF", "We"}

// MetaData is the MD section of a MEASGET reply: record identity and
// the measurement timestamp (wire date and time combined).
type MetaData struct {
	ID       int       `json:"id"`
	DateTime time.Time `json:"date_time"`
}

// MeasuredValues is the MV section: raw detector readings.
type MeasuredValues struct {
	CAX     float64 `json:"cax"`
	G10     float64 `json:"g10"`
	L10     float64 `json:"l10"`
	T10     float64 `json:"t10"`
	R10     float64 `json:"r10"`
	G20     float64 `json:"g20"`
	L20     float64 `json:"l20"`
	T20     float64 `json:"t20"`
	R20     float64 `json:"r20"`
	E1      float64 `json:"e1"`
	E2      float64 `json:"e2"`
	E3      float64 `json:"e3"`
	E4      float64 `json:"e4"`
	Temp    float64 `json:"temp"`
	Press   float64 `json:"press"`
	CAXRate float64 `json:"cax_rate"`
	ExpTime float64 `json:"exp_time"`
}

// AssessedValue is one AV sub-block: the tolerance window, normalization
// and validated value, plus the device's pass/fail flag.
type AssessedValue struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Target float64 `json:"target"`
	Norm   float64 `json:"norm"`
	Value  float64 `json:"value"`
	Valid  int     `json:"valid"`
}

// AssessedValues is the AV section: six named sub-blocks.
type AssessedValues struct {
	CAX   AssessedValue `json:"cax"`
	FLAT  AssessedValue `json:"flat"`
	SYMGT AssessedValue `json:"symgt"`
	SYMLR AssessedValue `json:"symlr"`
	BQF   AssessedValue `json:"bqf"`
	We    AssessedValue `json:"we"`
}

// Block returns the sub-block for a wire name, nil if unknown.
func (av *AssessedValues) Block(name string) *AssessedValue {
	switch name {
	case "CAX":
		return &av.CAX
	case "FLAT":
		return &av.FLAT
	case "SYMGT":
		return &av.SYMGT
	case "SYMLR":
		return &av.SYMLR
	case "BQF":
		return &av.BQF
	case "We":
		return &av.We
	}
	return nil
}

// WorkItem is the WORK section: the worklist entry the measurement belongs to.
type WorkItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProtocolTolerances is the Prot block nested inside TASK.
type ProtocolTolerances struct {
	Name string `json:"name"`
	Flat int    `json:"flat"`
	Sym  int    `json:"sym"`
}

// TaskParameters is the TASK section: beam delivery setup for the task.
// SSD is carried on the wire under the key SDD.
type TaskParameters struct {
	ID            int                `json:"id"`
	TreatmentUnit string             `json:"treatment_unit"`
	Energy        int                `json:"energy"`
	Modality      string             `json:"modality"`
	FieldSize     string             `json:"field_size"`
	SSD           int                `json:"ssd"`
	GantryAngle   int                `json:"gantry_angle"`
	Wedge         int                `json:"wedge"`
	MU            int                `json:"mu"`
	My            float64            `json:"my"`
	Info          string             `json:"info"`
	Prot          ProtocolTolerances `json:"prot"`
}

// Measurement is one decoded MEASGET reply.
type Measurement struct {
	MD   MetaData       `json:"md"`
	MV   MeasuredValues `json:"mv"`
	AV   AssessedValues `json:"av"`
	Work WorkItem       `json:"work"`
	Task TaskParameters `json:"task"`
}

// StoredMeasurement is a Measurement row as persisted: the flattened field
// map plus the indexed key columns used for querying.
type StoredMeasurement struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	DeviceID      uuid.UUID  `json:"device_id" db:"device_id"`
	RecordID      int        `json:"record_id" db:"record_id"`
	MeasuredAt    time.Time  `json:"measured_at" db:"measured_at"`
	TreatmentUnit string     `json:"treatment_unit" db:"treatment_unit"`
	Energy        int        `json:"energy" db:"energy"`
	Fields        JSONObject `json:"fields" db:"fields"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// FieldNames is the flattened column order, matching the order sections and
// keys appear in the grammar. Reporting consumers rely on these exact names.
var FieldNames = buildFieldNames()

func buildFieldNames() []string {
	names := []string{"MD_ID", "MD_Date", "MD_Time", "MD_DateTime"}
	for _, k := range []string{
		"CAX", "G10", "L10", "T10", "R10", "G20", "L20", "T20", "R20",
		"E1", "E2", "E3", "E4", "Temp", "Press", "CAXRate", "ExpTime",
	} {
		names = append(names, "MV_"+k)
	}
	for _, block := range AssessedBlockNames {
		for _, k := range []string{"Min", "Max", "Target", "Norm", "Value", "Valid"} {
			names = append(names, "AV_"+block+"_"+k)
		}
	}
	names = append(names, "WORK_ID", "WORK_Name")
	names = append(names,
		"TASK_ID", "TASK_TUnit", "TASK_En", "TASK_Mod", "TASK_Fs", "TASK_SSD",
		"TASK_Ga", "TASK_We", "TASK_MU", "TASK_My", "TASK_Info",
		"TASK_Prot_Name", "TASK_Prot_Flat", "TASK_Prot_Sym",
	)
	return names
}

// Fields returns the flattened column view of the measurement. Section
// identity survives only as the name prefix; the MD timestamp is exposed
// both split (MD_Date, MD_Time) and combined (MD_DateTime).
func (m *Measurement) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"MD_ID":       m.MD.ID,
		"MD_Date":     m.MD.DateTime.Format(DateLayout),
		"MD_Time":     m.MD.DateTime.Format(TimeLayout),
		"MD_DateTime": m.MD.DateTime.Format(DateTimeLayout),

		"MV_CAX":     m.MV.CAX,
		"MV_G10":     m.MV.G10,
		"MV_L10":     m.MV.L10,
		"MV_T10":     m.MV.T10,
		"MV_R10":     m.MV.R10,
		"MV_G20":     m.MV.G20,
		"MV_L20":     m.MV.L20,
		"MV_T20":     m.MV.T20,
		"MV_R20":     m.MV.R20,
		"MV_E1":      m.MV.E1,
		"MV_E2":      m.MV.E2,
		"MV_E3":      m.MV.E3,
		"MV_E4":      m.MV.E4,
		"MV_Temp":    m.MV.Temp,
		"MV_Press":   m.MV.Press,
		"MV_CAXRate": m.MV.CAXRate,
		"MV_ExpTime": m.MV.ExpTime,

		"WORK_ID":   m.Work.ID,
		"WORK_Name": m.Work.Name,

		"TASK_ID":        m.Task.ID,
		"TASK_TUnit":     m.Task.TreatmentUnit,
		"TASK_En":        m.Task.Energy,
		"TASK_Mod":       m.Task.Modality,
		"TASK_Fs":        m.Task.FieldSize,
		"TASK_SSD":       m.Task.SSD,
		"TASK_Ga":        m.Task.GantryAngle,
		"TASK_We":        m.Task.Wedge,
		"TASK_MU":        m.Task.MU,
		"TASK_My":        m.Task.My,
		"TASK_Info":      m.Task.Info,
		"TASK_Prot_Name": m.Task.Prot.Name,
		"TASK_Prot_Flat": m.Task.Prot.Flat,
		"TASK_Prot_Sym":  m.Task.Prot.Sym,
	}

	for _, block := range AssessedBlockNames {
		av := m.AV.Block(block)
		f["AV_"+block+"_Min"] = av.Min
		f["AV_"+block+"_Max"] = av.Max
		f["AV_"+block+"_Target"] = av.Target
		f["AV_"+block+"_Norm"] = av.Norm
		f["AV_"+block+"_Value"] = av.Value
		f["AV_"+block+"_Valid"] = av.Valid
	}

	return f
}
