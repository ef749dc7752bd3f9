// Package report renders an end-of-run session report as an XLSX
// workbook: overall summary, per-shift totals, and the full decision
// and alert logs.
package report

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/nightshift-games/checkpoint/internal/model"
)

// Report bundles the session data to export.
type Report struct {
	Snapshot  model.SessionSnapshot
	Decisions []model.DecisionRecord
	Alerts    []model.AlertRecord
	ShiftSize int
}

type shiftTotals struct {
	approved int
	denied   int
	correct  int
}

// Write renders the report to an XLSX file at path.
func Write(path string, r Report) error {
	if r.ShiftSize <= 0 {
		return eris.New("report: shift size must be positive")
	}

	f := xlsx.NewFile()

	if err := writeSummary(f, r); err != nil {
		return err
	}
	if err := writeShifts(f, r); err != nil {
		return err
	}
	if err := writeDecisions(f, r.Decisions); err != nil {
		return err
	}
	if err := writeAlerts(f, r.Alerts); err != nil {
		return err
	}

	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func writeSummary(f *xlsx.File, r Report) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	rows := [][]string{
		{"Decisions", fmt.Sprintf("%d", r.Snapshot.DecisionTotal)},
		{"Correct", fmt.Sprintf("%d", r.Snapshot.CorrectTotal)},
		{"Accuracy", fmt.Sprintf("%.2f", r.Snapshot.Accuracy)},
		{"Infractions", fmt.Sprintf("%d", r.Snapshot.Infractions)},
		{"Supervisor alerts", fmt.Sprintf("%d", len(r.Alerts))},
	}
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	return nil
}

func writeShifts(f *xlsx.File, r Report) error {
	sheet, err := f.AddSheet("Shifts")
	if err != nil {
		return eris.Wrap(err, "report: add shifts sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Shift", "Approved", "Denied", "Correct"} {
		header.AddCell().SetString(h)
	}

	totals := map[int]*shiftTotals{}
	for _, d := range r.Decisions {
		si := d.SubjectIndex / r.ShiftSize
		t := totals[si]
		if t == nil {
			t = &shiftTotals{}
			totals[si] = t
		}
		if d.Decision == model.DecisionApprove {
			t.approved++
		} else {
			t.denied++
		}
		if d.Correct {
			t.correct++
		}
	}

	indexes := make([]int, 0, len(totals))
	for si := range totals {
		indexes = append(indexes, si)
	}
	sort.Ints(indexes)

	for _, si := range indexes {
		t := totals[si]
		row := sheet.AddRow()
		row.AddCell().SetInt(si)
		row.AddCell().SetInt(t.approved)
		row.AddCell().SetInt(t.denied)
		row.AddCell().SetInt(t.correct)
	}
	return nil
}

func writeDecisions(f *xlsx.File, decisions []model.DecisionRecord) error {
	sheet, err := f.AddSheet("Decisions")
	if err != nil {
		return eris.Wrap(err, "report: add decisions sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Subject", "Decision", "Tier", "Severity", "Correct", "Decided at"} {
		header.AddCell().SetString(h)
	}

	for _, d := range decisions {
		row := sheet.AddRow()
		row.AddCell().SetString(d.SubjectID)
		row.AddCell().SetString(string(d.Decision))
		row.AddCell().SetString(string(d.Tier))
		row.AddCell().SetInt(d.Severity)
		row.AddCell().SetBool(d.Correct)
		row.AddCell().SetString(d.DecidedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func writeAlerts(f *xlsx.File, alerts []model.AlertRecord) error {
	sheet, err := f.AddSheet("Alerts")
	if err != nil {
		return eris.Wrap(err, "report: add alerts sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Subject", "Type", "Count", "Message"} {
		header.AddCell().SetString(h)
	}

	for _, a := range alerts {
		row := sheet.AddRow()
		row.AddCell().SetString(a.SubjectID)
		row.AddCell().SetString(string(a.Type))
		row.AddCell().SetInt(a.Count)
		row.AddCell().SetString(a.Message)
	}
	return nil
}
