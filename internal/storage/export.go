package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/rigidsim/internal/sim"
)

var stateHeader = []string{"step", "time", "body", "type", "x", "y", "z", "angle", "vx", "vy", "vz", "omega", "sleeping"}

var frameHeader = []string{"step", "time", "contacts", "sleeping", "kinetic", "potential", "max_penetration", "normal_impulse"}

type ExportData struct {
	RunMetadata
	Frames []sim.Frame `json:"frames"`
}

func ExportJSON(w io.Writer, meta RunMetadata, frames []sim.Frame) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{RunMetadata: meta, Frames: frames})
}

// ExportCSV writes one row per body per frame.
func ExportCSV(w io.Writer, frames []sim.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(stateHeader); err != nil {
		return err
	}

	for _, f := range frames {
		for _, b := range f.Bodies {
			row := []string{
				strconv.Itoa(f.Step),
				ff(f.Time),
				b.Name,
				b.Type,
				ff(b.X), ff(b.Y), ff(b.Z),
				ff(b.Angle),
				ff(b.VX), ff(b.VY), ff(b.VZ),
				ff(b.Omega),
				strconv.FormatBool(b.Sleeping),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func ExportFramesCSV(w io.Writer, frames []sim.Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(frameHeader); err != nil {
		return err
	}

	for _, f := range frames {
		row := []string{
			strconv.Itoa(f.Step),
			ff(f.Time),
			strconv.Itoa(f.Contacts),
			strconv.Itoa(f.Sleeping),
			ff(f.Kinetic),
			ff(f.Potential),
			ff(f.MaxPenetration),
			ff(f.NormalImpulse),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV groups the rows written by ExportCSV back into frames, in step
// order of first appearance.
func ReadCSV(r io.Reader) ([]sim.Frame, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("storage: empty states file")
	}
	if len(rows[0]) != len(stateHeader) {
		return nil, fmt.Errorf("storage: states header has %d columns, want %d", len(rows[0]), len(stateHeader))
	}

	frames := make([]sim.Frame, 0)
	index := make(map[int]int)
	for line, row := range rows[1:] {
		p := parser{row: row}
		step := p.int(0)
		t := p.float(1)
		b := sim.BodyState{
			Name:     row[2],
			Type:     row[3],
			X:        p.float(4),
			Y:        p.float(5),
			Z:        p.float(6),
			Angle:    p.float(7),
			VX:       p.float(8),
			VY:       p.float(9),
			VZ:       p.float(10),
			Omega:    p.float(11),
			Sleeping: p.bool(12),
		}
		if p.err != nil {
			return nil, fmt.Errorf("storage: states line %d: %w", line+2, p.err)
		}

		i, ok := index[step]
		if !ok {
			i = len(frames)
			index[step] = i
			frames = append(frames, sim.Frame{Step: step, Time: t})
		}
		frames[i].Bodies = append(frames[i].Bodies, b)
	}

	return frames, nil
}

// ReadFramesCSV fills the per-frame summaries of frames from the rows written
// by ExportFramesCSV. Rows for unknown steps are ignored.
func ReadFramesCSV(r io.Reader, frames []sim.Frame) error {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("storage: empty frames file")
	}

	index := make(map[int]int, len(frames))
	for i, f := range frames {
		index[f.Step] = i
	}

	for line, row := range rows[1:] {
		if len(row) != len(frameHeader) {
			return fmt.Errorf("storage: frames line %d: %d columns", line+2, len(row))
		}
		p := parser{row: row}
		step := p.int(0)
		i, ok := index[step]
		if !ok {
			continue
		}
		f := &frames[i]
		f.Contacts = p.int(2)
		f.Sleeping = p.int(3)
		f.Kinetic = p.float(4)
		f.Potential = p.float(5)
		f.MaxPenetration = p.float(6)
		f.NormalImpulse = p.float(7)
		if p.err != nil {
			return fmt.Errorf("storage: frames line %d: %w", line+2, p.err)
		}
	}
	return nil
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// parser keeps the first conversion error of a row.
type parser struct {
	row []string
	err error
}

func (p *parser) float(i int) float64 {
	v, err := strconv.ParseFloat(p.row[i], 64)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *parser) int(i int) int {
	v, err := strconv.Atoi(p.row[i])
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *parser) bool(i int) bool {
	v, err := strconv.ParseBool(p.row[i])
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}
