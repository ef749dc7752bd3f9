// Package catalog supplies the static, read-only subject and shift
// records the engine screens against. Subjects are bucketed into
// shifts of fixed size; the active shift derives from the operator's
// position in the subject sequence.
package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/nightshift-games/checkpoint/internal/model"
)

// Catalog is the read interface the engine consumes. Both lookups are
// pure; implementations never mutate.
type Catalog interface {
	Subject(index int) (model.Subject, bool)
	ShiftFor(subjectIndex int) (model.Shift, bool)
	SubjectCount() int
	ShiftCount() int
	ShiftSize() int
}

// file is the on-disk catalog document.
type file struct {
	ShiftSize int             `yaml:"shift_size"`
	Shifts    []model.Shift   `yaml:"shifts"`
	Subjects  []model.Subject `yaml:"subjects"`
}

// Static is an immutable in-memory catalog.
type Static struct {
	shiftSize int
	shifts    []model.Shift
	subjects  []model.Subject
}

// New builds a Static catalog after validating shape and normalizing
// subject names to NFC so identifier hashing sees canonical bytes.
func New(shiftSize int, shifts []model.Shift, subjects []model.Subject) (*Static, error) {
	if shiftSize <= 0 {
		return nil, eris.New("catalog: shift size must be positive")
	}
	if len(shifts) == 0 {
		return nil, eris.New("catalog: no shifts")
	}
	if len(subjects) == 0 {
		return nil, eris.New("catalog: no subjects")
	}
	if max := len(shifts) * shiftSize; len(subjects) > max {
		return nil, eris.Errorf("catalog: %d subjects exceed %d shifts of %d", len(subjects), len(shifts), shiftSize)
	}

	normalized := make([]model.Subject, len(subjects))
	seen := make(map[string]bool, len(subjects))
	for i, s := range subjects {
		if s.ID == "" {
			return nil, eris.Errorf("catalog: subject %d has no id", i)
		}
		if seen[s.ID] {
			return nil, eris.Errorf("catalog: duplicate subject id %s", s.ID)
		}
		seen[s.ID] = true
		s.ID = norm.NFC.String(s.ID)
		s.Name = norm.NFC.String(s.Name)
		normalized[i] = s
	}

	indexed := make([]model.Shift, len(shifts))
	for i, sh := range shifts {
		sh.Index = i
		indexed[i] = sh
	}

	return &Static{shiftSize: shiftSize, shifts: indexed, subjects: normalized}, nil
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(raw)
}

// Parse builds a Static catalog from YAML bytes.
func Parse(raw []byte) (*Static, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal")
	}
	return New(f.ShiftSize, f.Shifts, f.Subjects)
}

// Subject returns the subject at the given sequence index.
func (c *Static) Subject(index int) (model.Subject, bool) {
	if index < 0 || index >= len(c.subjects) {
		return model.Subject{}, false
	}
	return c.subjects[index], true
}

// ShiftFor returns the shift governing the given subject index.
func (c *Static) ShiftFor(subjectIndex int) (model.Shift, bool) {
	if subjectIndex < 0 || subjectIndex >= len(c.subjects) {
		return model.Shift{}, false
	}
	si := subjectIndex / c.shiftSize
	if si >= len(c.shifts) {
		si = len(c.shifts) - 1
	}
	return c.shifts[si], true
}

func (c *Static) SubjectCount() int { return len(c.subjects) }
func (c *Static) ShiftCount() int   { return len(c.shifts) }
func (c *Static) ShiftSize() int    { return c.shiftSize }
