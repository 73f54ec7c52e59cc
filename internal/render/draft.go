// internal/render/draft.go
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/ndstrzz/taedal-v7-sub000/internal/models"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

const draftTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>License Agreement Draft {{.RequestID}}</title>
</head>
<body>
    <h1>License Agreement{{if eq .Source "requested"}} (Draft){{end}}</h1>
    <p>Request {{.RequestID}} for artwork {{.ArtworkID}}, status {{.Status}}, version {{.Version}}.</p>
    <p>Licensor: {{.OwnerID}}<br>Licensee: {{.RequesterID}}</p>
    <table>
        {{range .Rows}}<tr><th>{{.Label}}</th><td>{{.Value}}</td></tr>
        {{end}}
    </table>
    {{if .Executed}}<p>Executed by {{.SignerName}}{{if .SignerTitle}}, {{.SignerTitle}}{{end}} on {{.SignedAt}}. Document SHA-256 {{.DocumentHash}}.</p>
    {{end}}<p>Terms digest: {{.Digest}}</p>
</body>
</html>
`

var draft = template.Must(template.New("draft").Parse(draftTemplate))

type row struct {
	Label string
	Value string
}

type draftData struct {
	RequestID    string
	ArtworkID    string
	OwnerID      string
	RequesterID  string
	Status       models.RequestStatus
	Version      int
	Source       models.TermsSource
	Rows         []row
	Executed     bool
	SignerName   string
	SignerTitle  string
	SignedAt     string
	DocumentHash string
	Digest       string
}

// Render produces the HTML agreement for terms. The same request and terms
// always render to the same bytes.
func Render(req *models.LicenseRequest, terms models.LicenseTerms, source models.TermsSource) ([]byte, error) {
	digest, err := TermsDigest(terms)
	if err != nil {
		return nil, err
	}

	data := draftData{
		RequestID:   req.ID.String(),
		ArtworkID:   req.ArtworkID.String(),
		OwnerID:     req.OwnerID.String(),
		RequesterID: req.RequesterID.String(),
		Status:      req.Status,
		Version:     req.Version,
		Source:      source,
		Rows:        termRows(terms),
		Digest:      digest,
	}
	if req.IsExecuted() {
		data.Executed = true
		data.DocumentHash = *req.ExecutedDocumentHash
		if req.SignerName != nil {
			data.SignerName = *req.SignerName
		}
		if req.SignerTitle != nil {
			data.SignerTitle = *req.SignerTitle
		}
		if req.SignedAt != nil {
			data.SignedAt = req.SignedAt.UTC().Format("2006-01-02 15:04:05 UTC")
		}
	}

	var buf bytes.Buffer
	if err := draft.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render license draft: %w", err)
	}
	return buf.Bytes(), nil
}

// TermsDigest is the SHA-256 of the canonical JSON encoding of terms.
func TermsDigest(terms models.LicenseTerms) (string, error) {
	terms.Normalize()
	b, err := json.Marshal(terms)
	if err != nil {
		return "", fmt.Errorf("encode terms: %w", err)
	}
	return utils.HashBytes(b), nil
}

func termRows(t models.LicenseTerms) []row {
	rows := []row{
		{"Purpose", orDash(t.Purpose)},
		{"Term", strconv.Itoa(t.TermMonths) + " months"},
		{"Territory", orDash(t.Territory.String())},
		{"Media", orDash(strings.Join(t.Media, ", "))},
		{"Exclusivity", orDash(strings.ReplaceAll(string(t.Exclusivity), "_", "-"))},
	}
	if t.StartDate != nil {
		rows = append(rows, row{"Start date", *t.StartDate})
	}
	if t.Deliverables != nil {
		rows = append(rows, row{"Deliverables", *t.Deliverables})
	}
	if t.CreditRequired != nil {
		rows = append(rows, row{"Credit required", yesNo(*t.CreditRequired)})
	}
	if t.UsageNotes != nil {
		rows = append(rows, row{"Usage notes", *t.UsageNotes})
	}
	if t.Fee != nil {
		rows = append(rows, row{"Fee", strconv.FormatFloat(t.Fee.Amount, 'f', 2, 64) + " " + t.Fee.Currency})
	}
	if t.Sublicense != nil {
		rows = append(rows, row{"Sublicensing", yesNo(*t.Sublicense)})
	}
	if len(t.DerivativeEdits) > 0 {
		rows = append(rows, row{"Derivative edits", strings.Join(t.DerivativeEdits, ", ")})
	}
	return rows
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
