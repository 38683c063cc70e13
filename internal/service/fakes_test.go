// internal/service/fakes_test.go
package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quickcheck-service/internal/model"
	"quickcheck-service/internal/protocol"
	"quickcheck-service/internal/repository"
)

// fakeDeviceRepo is an in-memory DeviceRepository.
type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices map[uuid.UUID]*model.Device
}

func newFakeDeviceRepo(devices ...*model.Device) *fakeDeviceRepo {
	repo := &fakeDeviceRepo{devices: make(map[uuid.UUID]*model.Device)}
	for _, d := range devices {
		repo.devices[d.ID] = d
	}
	return repo
}

func (f *fakeDeviceRepo) Create(ctx context.Context, device *model.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[device.ID] = device
	return nil
}

func (f *fakeDeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.devices[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDeviceRepo) GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.DeviceID == deviceID {
			return d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDeviceRepo) List(ctx context.Context) ([]*model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (f *fakeDeviceRepo) Update(ctx context.Context, device *model.Device) error {
	return f.Create(ctx, device)
}

func (f *fakeDeviceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.DeviceStatus, errorInfo *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.Status = status
	d.ErrorInfo = errorInfo
	return nil
}

func (f *fakeDeviceRepo) UpdateIdentity(ctx context.Context, id uuid.UUID, serialNumber string, capabilities model.StringArray) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.SerialNumber = serialNumber
	d.Capabilities = capabilities
	return nil
}

func (f *fakeDeviceRepo) UpdateLastSeen(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.LastSeen = &seenAt
	return nil
}

func (f *fakeDeviceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.devices, id)
	return nil
}

// fakeMeasurementRepo is an in-memory MeasurementRepository keyed the way
// the real table is, by device and record ID.
type fakeMeasurementRepo struct {
	mu   sync.Mutex
	rows []*model.StoredMeasurement
}

func (f *fakeMeasurementRepo) Upsert(ctx context.Context, m *model.StoredMeasurement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.rows {
		if row.DeviceID == m.DeviceID && row.RecordID == m.RecordID {
			f.rows[i] = m
			return nil
		}
	}
	f.rows = append(f.rows, m)
	return nil
}

func (f *fakeMeasurementRepo) List(ctx context.Context, filter repository.MeasurementFilter) ([]*model.StoredMeasurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.StoredMeasurement
	for _, row := range f.rows {
		if filter.DeviceID != nil && row.DeviceID != *filter.DeviceID {
			continue
		}
		if filter.TreatmentUnit != "" && row.TreatmentUnit != filter.TreatmentUnit {
			continue
		}
		if filter.From != nil && row.MeasuredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !row.MeasuredAt.Before(*filter.To) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TreatmentUnit != out[j].TreatmentUnit {
			return out[i].TreatmentUnit < out[j].TreatmentUnit
		}
		if out[i].Energy != out[j].Energy {
			return out[i].Energy < out[j].Energy
		}
		return out[i].MeasuredAt.Before(out[j].MeasuredAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeMeasurementRepo) CountByDevice(ctx context.Context, deviceID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, row := range f.rows {
		if row.DeviceID == deviceID {
			count++
		}
	}
	return count, nil
}

// fakeHarvestRepo is an in-memory HarvestRepository.
type fakeHarvestRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*model.HarvestRun
}

func newFakeHarvestRepo() *fakeHarvestRepo {
	return &fakeHarvestRepo{runs: make(map[uuid.UUID]*model.HarvestRun)}
}

func (f *fakeHarvestRepo) Create(ctx context.Context, run *model.HarvestRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *run
	f.runs[run.ID] = &copied
	return nil
}

func (f *fakeHarvestRepo) Finish(ctx context.Context, run *model.HarvestRun) error {
	return f.Create(ctx, run)
}

func (f *fakeHarvestRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.HarvestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[id]; ok {
		return run, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeHarvestRepo) ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]*model.HarvestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.HarvestRun
	for _, run := range f.runs {
		if run.DeviceID == deviceID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (f *fakeHarvestRepo) ListRecent(ctx context.Context, limit int) ([]*model.HarvestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.HarvestRun
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

// fakeSession answers each command with a scripted reply, or times out
// when the command is not scripted.
type fakeSession struct {
	mu      sync.Mutex
	replies map[string]string
	sent    []string
	closed  bool
}

func newFakeSession(replies map[string]string) *fakeSession {
	return &fakeSession{replies: replies}
}

func (s *fakeSession) Open(ctx context.Context) error { return nil }
func (s *fakeSession) IsOpen() bool                   { return !s.closed }
func (s *fakeSession) Stats() protocol.SessionStats   { return protocol.SessionStats{} }

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	command := strings.Trim(string(request), "\r\n")
	s.sent = append(s.sent, command)
	reply, ok := s.replies[command]
	if !ok {
		return nil, protocol.ErrTimeout
	}
	return []byte(reply + "\r\n"), nil
}

// recordingBus captures published events.
type recordingBus struct {
	mu     sync.Mutex
	events []model.DeviceEvent
}

func (b *recordingBus) Publish(event model.DeviceEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) byType(t model.EventType) []model.DeviceEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.DeviceEvent
	for _, e := range b.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// measurementReply builds a full MEASGET reply for one index.
func measurementReply(index, recordID int, unit string, energy int, date, clock string) string {
	return fmt.Sprintf("MEASGET;INDEX-MEAS=%d;", index) +
		fmt.Sprintf("MD=[ID=%d;Date=%s;Time=%s];", recordID, date, clock) +
		"WORK=[ID=1;Name=Morning checks];" +
		fmt.Sprintf("TASK=[ID=7;TUnit=%s;En=%d;Mod=X;Fs=20x20;SDD=100;Ga=0;We=0;MU=100;My=1.0;", unit, energy) +
		"Prot=[Name=QuickCheck;Flat=1;Sym=1];Info=daily];" +
		"MV=[CAX=1.002;G10=0.998;L10=1.000;T10=0.999;R10=1.001;" +
		"G20=0.997;L20=1.002;T20=0.998;R20=1.000;" +
		"E1=0.512;E2=0.498;E3=0.505;E4=0.501;" +
		"Temp=21.4;Press=1013.2;CAXRate=2.05;ExpTime=60.0];" +
		"AV=[[CAX=[Min=0.95;Max=1.05;Target=1.0;Norm=101.3;Value=1.002;Valid=1];" +
		"FLAT=[Min=0.97;Max=1.03;Target=1.0;Norm=100.0;Value=1.001;Valid=1];" +
		"SYMGT=[Min=0.98;Max=1.02;Target=1.0;Norm=100.0;Value=0.999;Valid=1];" +
		"SYMLR=[Min=0.98;Max=1.02;Target=1.0;Norm=100.0;Value=1.003;Valid=1];" +
		"BQF=[Min=0.95;Max=1.05;Target=1.0;Norm=100.0;Value=1.000;Valid=1];" +
		"We=[Min=0.0;Max=0.0;Target=0.0;Norm=0.0;Value=0.0;Valid=1]]]"
}
