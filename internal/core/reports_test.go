package core_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"incidentdb/internal/core"
	"incidentdb/pkg/domain"
)

func reportService(t *testing.T) *core.Service {
	t.Helper()
	ctx := context.Background()
	fixed := core.ClockFunc(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) })
	svc := core.NewInMemoryService(nil, core.WithClock(fixed))

	incidents := []domain.Fields{
		{"Date": domain.DateOf(2024, time.January, 4), "IncidentType": domain.Text("Structure Fire")},
		{"Date": domain.DateOf(2024, time.January, 20), "IncidentType": domain.Text("Brush Fire")},
		{"Date": domain.DateOf(2024, time.February, 2), "IncidentType": domain.Text("Structure Fire")},
		{"Date": domain.DateOf(2024, time.February, 9)},
	}
	for _, f := range incidents {
		must(svc.CreateIncident(ctx, domain.Incident{Fields: f}))(t)
	}
	times := []struct {
		id             int
		alarm, arrival string
	}{
		{1, "10:00", "10:06"},
		{2, "23:55", "00:04"},
		{3, "08:00", ""},
	}
	for _, tt := range times {
		must(svc.AddChild(ctx, domain.ChildTime, tt.id, domain.Fields{"Alarm": domain.Text(tt.alarm), "Arrival": domain.Text(tt.arrival)}))(t)
	}
	return svc
}

func TestCountsByTypeAndMonth(t *testing.T) {
	svc := reportService(t)

	byType := svc.CountsByType(domain.Filter{})
	want := []core.Count{{Key: "Structure Fire", Count: 2}, {Key: "Brush Fire", Count: 1}}
	if len(byType) != len(want) {
		t.Fatalf("expected %v, got %v", want, byType)
	}
	for i := range want {
		if byType[i] != want[i] {
			t.Fatalf("row %d: expected %v, got %v", i, want[i], byType[i])
		}
	}

	byMonth := svc.CountsByMonth(domain.Filter{})
	if len(byMonth) != 2 || byMonth[0] != (core.Count{Key: "2024-01", Count: 2}) || byMonth[1] != (core.Count{Key: "2024-02", Count: 2}) {
		t.Fatalf("unexpected month counts %v", byMonth)
	}

	feb := domain.Filter{From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	if got := svc.CountsByType(feb); len(got) != 1 || got[0].Count != 1 {
		t.Fatalf("filter not applied: %v", got)
	}
}

func TestResponseTimesHandleMidnightAndGaps(t *testing.T) {
	svc := reportService(t)
	got := svc.ResponseTimes(domain.Filter{})
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[0].Minutes == nil || *got[0].Minutes != 6 {
		t.Fatalf("expected 6 minutes, got %+v", got[0])
	}
	if got[1].Minutes == nil || *got[1].Minutes != 9 {
		t.Fatalf("expected 9 minutes across midnight, got %+v", got[1])
	}
	if got[2].Minutes != nil || got[2].Alarm != "08:00" {
		t.Fatalf("missing arrival should yield no minutes, got %+v", got[2])
	}
}

func TestSnapshotCountsRoles(t *testing.T) {
	ctx := context.Background()
	svc := reportService(t)
	for _, f := range []domain.Fields{
		{"Name": domain.Text("Ann"), "Role": domain.Text("Driver")},
		{"Name": domain.Text("Bob")},
		{"Name": domain.Text("Cy"), "Role": domain.Text("Driver")},
		{"Notes": domain.Text("blank member")},
	} {
		must(svc.AddChild(ctx, domain.ChildPersonnel, 1, f))(t)
	}
	snap, err := svc.Snapshot(1)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.PersonnelCount != 4 {
		t.Fatalf("expected 4 personnel, got %d", snap.PersonnelCount)
	}
	if snap.PersonnelByRole[0] != (core.Count{Key: "Driver", Count: 2}) || snap.PersonnelByRole[1] != (core.Count{Key: "Unspecified", Count: 2}) {
		t.Fatalf("unexpected role counts %v", snap.PersonnelByRole)
	}
	if strings.Join(snap.Roster, "|") != "Ann (Driver)|Bob ()|Cy (Driver)" {
		t.Fatalf("unexpected roster %v", snap.Roster)
	}
	if snap.ApparatusCount != 0 || len(snap.Units) != 0 {
		t.Fatalf("expected no apparatus, got %+v", snap)
	}
	_, err = svc.Snapshot(42)
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRenderReportEscapesContent(t *testing.T) {
	ctx := context.Background()
	svc := reportService(t)
	must(svc.UpdateIncident(ctx, 1, domain.Fields{
		"Narrative":    domain.Text("Crew found <script>alert(1)</script> in attic"),
		"City":         domain.Text("Springfield"),
		"ReportWriter": domain.Text("Lt. Grimes"),
	}))(t)
	must(svc.AddChild(ctx, domain.ChildApparatus, 1, domain.Fields{"Unit": domain.Text("E1")}))(t)

	var buf bytes.Buffer
	if err := svc.RenderReport(ctx, &buf, 1); err != nil {
		t.Fatalf("render: %v", err)
	}
	html := buf.String()
	for _, want := range []string{
		"<title>Incident Report #1</title>",
		"&lt;script&gt;",
		"<dd>Springfield</dd>",
		"Apparatus on Scene:</strong> 1",
		"<h2>Incident Times</h2>",
		"Lt. Grimes",
		"Generated 2024-03-01 12:00 UTC",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("report missing %q:\n%s", want, html)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("narrative was not escaped")
	}

	err := svc.RenderReport(ctx, &bytes.Buffer{}, 99)
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRenderReportPDF(t *testing.T) {
	ctx := context.Background()
	svc := reportService(t)
	must(svc.UpdateIncident(ctx, 1, domain.Fields{
		"Narrative":    domain.Text("Crew found fire extending into the attic."),
		"City":         domain.Text("Springfield"),
		"ReportWriter": domain.Text("Lt. Grimes"),
	}))(t)
	must(svc.AddChild(ctx, domain.ChildPersonnel, 1, domain.Fields{"Name": domain.Text("Ana Díaz"), "Role": domain.Text("Driver")}))(t)

	var buf bytes.Buffer
	if err := svc.WriteReport(ctx, &buf, 1, core.ReportPDF); err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := buf.String()
	if !strings.HasPrefix(doc, "%PDF-") {
		t.Fatalf("expected a PDF header, got %q", doc[:min(len(doc), 16)])
	}
	if !strings.Contains(doc, "Incident Report #1") {
		t.Fatalf("document title missing")
	}
	if !strings.HasSuffix(strings.TrimSpace(doc), "%%EOF") {
		t.Fatalf("document is truncated")
	}

	err := svc.RenderReportPDF(ctx, &bytes.Buffer{}, 99)
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestParseReportFormat(t *testing.T) {
	for raw, want := range map[string]core.ReportFormat{"": core.ReportHTML, "HTML": core.ReportHTML, " pdf ": core.ReportPDF} {
		got, err := core.ParseReportFormat(raw)
		if err != nil || got != want {
			t.Fatalf("ParseReportFormat(%q) = %q, %v", raw, got, err)
		}
	}
	_, err := core.ParseReportFormat("docx")
	var fe domain.FieldError
	if !errors.As(err, &fe) || fe.Field != "format" {
		t.Fatalf("expected format FieldError, got %v", err)
	}
	if core.ReportPDF.ContentType() != core.ContentTypePDF {
		t.Fatalf("pdf content type mismatch")
	}
}

func TestBuildReportTablesUseDeclaredColumnOrder(t *testing.T) {
	ctx := context.Background()
	svc := reportService(t)
	must(svc.AddChild(ctx, domain.ChildTime, 1, domain.Fields{"Clear": domain.Text("11:00"), "Zeta": domain.Text("x"), "Alarm": domain.Text("10:30")}))(t)
	report, err := svc.BuildReport(1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(report.Tables) != 1 {
		t.Fatalf("expected only the times table, got %d", len(report.Tables))
	}
	cols := strings.Join(report.Tables[0].Columns, ",")
	if cols != "Alarm,Arrival,Clear,Zeta" {
		t.Fatalf("unexpected columns %s", cols)
	}
	if report.Tables[0].Rows[0][1] != "10:06" || report.Tables[0].Rows[1][1] != "" {
		t.Fatalf("unexpected rows %v", report.Tables[0].Rows)
	}
}
