// internal/quickcheck/parser.go
//
// Decoder for the QuickCheck reply grammar. Replies are semicolon-delimited
// key=value text; values may be bracket-delimited sections holding further
// key=value pairs, so a MEASGET reply is a small tree:
//
//	MEASGET;INDEX-MEAS=7;MD=[...];WORK=[...];TASK=[...;Prot=[...];...];MV=[...];AV=[[CAX=[...];...]]
//
// The decoder splits each level into its top-level pairs (bracket-depth
// aware, validating balance) and descends into named sections. A field whose
// key or value is not where the grammar says fails with a ParseError naming
// the section and field.
package quickcheck

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"quickcheck-service/internal/model"
)

// Reply is one decoded device reply. Exactly one of the payload fields is
// populated, according to Kind; an unrecognized leading token yields a Reply
// with only Kind set and is not a parse failure.
type Reply struct {
	Kind        string
	Count       int
	Info        []string
	Measurement *model.Measurement
}

// ParseReply decodes a CRLF-stripped reply, dispatching on its leading
// token. The decoder is pure: the same input always yields the same result.
func ParseReply(data string) (*Reply, error) {
	token, body, _ := strings.Cut(data, ";")
	reply := &Reply{Kind: token}

	switch token {
	case CmdGet:
		m, err := parseMeasurement(body)
		if err != nil {
			return nil, err
		}
		reply.Measurement = m
	case CmdCount:
		value := body
		if i := strings.IndexByte(body, ';'); i >= 0 {
			value = body[:i]
		}
		if value == "" {
			return nil, &ParseError{Section: CmdCount, Reason: "missing count value"}
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, &ParseError{Section: CmdCount, Reason: fmt.Sprintf("count is not an integer: %q", value)}
		}
		reply.Count = n
	case CmdSerial, CmdKey, TokenDeviceInfo:
		if body != "" {
			reply.Info = strings.Split(body, ";")
		}
	}

	return reply, nil
}

// parseMeasurement decodes the body of a MEASGET reply into a typed record.
func parseMeasurement(body string) (*model.Measurement, error) {
	top, err := parseSection(CmdGet, body)
	if err != nil {
		return nil, err
	}

	var r fieldReader
	m := &model.Measurement{}

	md := r.block(top, "MD")
	m.MD.ID = r.integer(md, "ID")
	dateStr := r.str(md, "Date")
	timeStr := r.str(md, "Time")

	work := r.block(top, "WORK")
	m.Work.ID = r.integer(work, "ID")
	m.Work.Name = r.str(work, "Name")

	task := r.block(top, "TASK")
	m.Task.ID = r.integer(task, "ID")
	m.Task.TreatmentUnit = r.str(task, "TUnit")
	m.Task.Energy = r.integer(task, "En")
	m.Task.Modality = r.str(task, "Mod")
	m.Task.FieldSize = r.str(task, "Fs")
	m.Task.SSD = r.integer(task, "SDD") // wire key differs from the field name
	m.Task.GantryAngle = r.integer(task, "Ga")
	m.Task.Wedge = r.integer(task, "We")
	m.Task.MU = r.integer(task, "MU")
	m.Task.My = r.float(task, "My")
	m.Task.Info = r.str(task, "Info")

	prot := r.block(task, "Prot")
	m.Task.Prot.Name = r.str(prot, "Name")
	m.Task.Prot.Flat = r.integer(prot, "Flat")
	m.Task.Prot.Sym = r.integer(prot, "Sym")

	mv := r.block(top, "MV")
	m.MV.CAX = r.float(mv, "CAX")
	m.MV.G10 = r.float(mv, "G10")
	m.MV.L10 = r.float(mv, "L10")
	m.MV.T10 = r.float(mv, "T10")
	m.MV.R10 = r.float(mv, "R10")
	m.MV.G20 = r.float(mv, "G20")
	m.MV.L20 = r.float(mv, "L20")
	m.MV.T20 = r.float(mv, "T20")
	m.MV.R20 = r.float(mv, "R20")
	m.MV.E1 = r.float(mv, "E1")
	m.MV.E2 = r.float(mv, "E2")
	m.MV.E3 = r.float(mv, "E3")
	m.MV.E4 = r.float(mv, "E4")
	m.MV.Temp = r.float(mv, "Temp")
	m.MV.Press = r.float(mv, "Press")
	m.MV.CAXRate = r.float(mv, "CAXRate")
	m.MV.ExpTime = r.float(mv, "ExpTime")

	av := r.doubleBlock(top, "AV")
	for _, name := range model.AssessedBlockNames {
		sub := r.block(av, name)
		target := m.AV.Block(name)
		target.Min = r.float(sub, "Min")
		target.Max = r.float(sub, "Max")
		target.Target = r.float(sub, "Target")
		target.Norm = r.float(sub, "Norm")
		target.Value = r.float(sub, "Value")
		target.Valid = r.integer(sub, "Valid")
	}

	if r.err != nil {
		return nil, r.err
	}

	day, err := time.Parse(model.DateLayout, dateStr)
	if err != nil {
		return nil, &ParseError{Section: "MD", Field: "Date", Reason: fmt.Sprintf("not a date: %q", dateStr)}
	}
	clock, err := time.Parse(model.TimeLayout, timeStr)
	if err != nil {
		return nil, &ParseError{Section: "MD", Field: "Time", Reason: fmt.Sprintf("not a time: %q", timeStr)}
	}
	m.MD.DateTime = time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)

	return m, nil
}

// section is one bracketed level of the grammar, split into its top-level
// key=value pairs.
type section struct {
	name  string
	pairs map[string]string
}

func parseSection(name, body string) (*section, error) {
	pairs, err := splitPairs(name, body)
	if err != nil {
		return nil, err
	}
	return &section{name: name, pairs: pairs}, nil
}

// splitPairs splits a section body into its top-level key=value pairs.
// Bracketed values stay whole, so nested sections survive as single values.
func splitPairs(name, body string) (map[string]string, error) {
	pairs := make(map[string]string)
	depth := 0
	start := 0
	for i := 0; i <= len(body); i++ {
		if i == len(body) || (body[i] == ';' && depth == 0) {
			part := body[start:i]
			if eq := strings.IndexByte(part, '='); eq > 0 && part[0] != '[' {
				pairs[part[:eq]] = part[eq+1:]
			}
			start = i + 1
			continue
		}
		switch body[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, &ParseError{Section: name, Reason: "unbalanced brackets"}
			}
		}
	}
	if depth != 0 {
		return nil, &ParseError{Section: name, Reason: "unbalanced brackets"}
	}
	return pairs, nil
}

func (s *section) lookup(field string) (string, error) {
	v, ok := s.pairs[field]
	if !ok {
		return "", &ParseError{Section: s.name, Field: field, Reason: "field not found"}
	}
	return v, nil
}

// unwrap strips one bracket layer from a section value.
func unwrap(v string) (string, bool) {
	if len(v) < 2 || v[0] != '[' || v[len(v)-1] != ']' {
		return "", false
	}
	return v[1 : len(v)-1], true
}

// fieldReader reads typed fields out of sections, keeping the first error
// it hits. After a failure every further read is a no-op, so callers check
// err once at the end.
type fieldReader struct {
	err error
}

func (r *fieldReader) str(s *section, field string) string {
	if r.err != nil {
		return ""
	}
	v, err := s.lookup(field)
	if err != nil {
		r.err = err
		return ""
	}
	return v
}

func (r *fieldReader) integer(s *section, field string) int {
	v := r.str(s, field)
	if r.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = &ParseError{Section: s.name, Field: field, Reason: fmt.Sprintf("not an integer: %q", v)}
		return 0
	}
	return n
}

func (r *fieldReader) float(s *section, field string) float64 {
	v := r.str(s, field)
	if r.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.err = &ParseError{Section: s.name, Field: field, Reason: fmt.Sprintf("not a number: %q", v)}
		return 0
	}
	return f
}

func (r *fieldReader) block(s *section, field string) *section {
	v := r.str(s, field)
	if r.err != nil {
		return nil
	}
	body, ok := unwrap(v)
	if !ok {
		r.err = &ParseError{Section: s.name, Field: field, Reason: "not a bracketed section"}
		return nil
	}
	sub, err := parseSection(s.name+"."+field, body)
	if err != nil {
		r.err = err
		return nil
	}
	return sub
}

// doubleBlock reads a doubly-bracketed section (the AV list wraps its
// sub-blocks in a second bracket pair).
func (r *fieldReader) doubleBlock(s *section, field string) *section {
	v := r.str(s, field)
	if r.err != nil {
		return nil
	}
	outer, ok := unwrap(v)
	if !ok {
		r.err = &ParseError{Section: s.name, Field: field, Reason: "not a bracketed section"}
		return nil
	}
	inner, ok := unwrap(outer)
	if !ok {
		r.err = &ParseError{Section: s.name, Field: field, Reason: "not a doubly-bracketed section"}
		return nil
	}
	sub, err := parseSection(s.name+"."+field, inner)
	if err != nil {
		r.err = err
		return nil
	}
	return sub
}
