package export

import (
	"fmt"

	"leadgen-server/internal/leads"
)

var leadHeaders = []string{
	"Name", "Company", "Title", "LinkedIn", "Email", "Validation Status", "Quality Score",
}

// leadRows flattens leads into string rows under leadHeaders.
func leadRows(items []leads.Lead) [][]string {
	rows := make([][]string, 0, len(items))
	for _, lead := range items {
		score := ""
		if lead.QualityScore != nil {
			score = fmt.Sprintf("%.1f", *lead.QualityScore)
		}
		rows = append(rows, []string{
			lead.Name,
			lead.Company,
			lead.Title,
			lead.LinkedIn,
			lead.Email,
			string(lead.ValidationStatus),
			score,
		})
	}
	return rows
}
