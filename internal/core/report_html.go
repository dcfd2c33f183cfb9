package core

import (
	"context"
	"embed"
	"html/template"
	"io"
	"strings"

	"incidentdb/pkg/domain"
)

//go:embed templates/incident_report.html.tmpl
var reportFS embed.FS

var reportTemplate = template.Must(template.New("incident_report.html.tmpl").
	Funcs(template.FuncMap{"title": reportTitle, "join": strings.Join}).
	ParseFS(reportFS, "templates/incident_report.html.tmpl"))

// RenderReport writes the printable HTML report for one incident.
func (s *Service) RenderReport(ctx context.Context, w io.Writer, id int) error {
	_, err := s.run(ctx, "render_report", domain.EntityIncident, func(context.Context) (string, Result, error) {
		report, err := s.BuildReport(id)
		if err != nil {
			return "", Result{}, err
		}
		return report.Incident.Key(), Result{}, reportTemplate.Execute(w, report)
	})
	return err
}
