// Package render turns one experiment's statistics into a displayable page:
// it materializes an intermediate R Markdown document and hands it to a
// render engine.
package render

import (
	"bytes"
	_ "embed"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"git.home.luguber.info/inful/reportbal/internal/catalog"
	berrors "git.home.luguber.info/inful/reportbal/internal/errors"
	"git.home.luguber.info/inful/reportbal/internal/mirror"
)

//go:embed templates/report.Rmd.tmpl
var reportTemplate string

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"now": func() string { return time.Now().UTC().Format("2006-01-02 15:04 MST") },
}).Parse(reportTemplate))

// DocumentData is the input to the report template.
type DocumentData struct {
	Experiment catalog.Experiment
	Results    *mirror.ResultSet
	Periods    []period
}

type period struct {
	Name    string
	Path    string
	Windows int
}

// Materialize writes the intermediate document for one experiment into dir
// and returns its path. The document references the mirrored statistics
// files; the render engine reads them itself.
func Materialize(dir string, exp catalog.Experiment, results *mirror.ResultSet) (string, error) {
	data := DocumentData{Experiment: exp, Results: results}
	for _, name := range mirror.Periods {
		if r := results.Get(name); r != nil {
			data.Periods = append(data.Periods, period{Name: name, Path: r.Path, Windows: r.Windows()})
		}
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return "", berrors.TemplateFailure(err, "materialize report document")
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", berrors.TemplateFailure(err, "create document directory")
	}
	path := filepath.Join(dir, exp.FileSlug()+".Rmd")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", berrors.TemplateFailure(err, "write report document")
	}
	return path, nil
}
