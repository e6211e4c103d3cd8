package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"feedhound/models"
)

// printItems renders the query result to stdout, as text lines or a
// JSON document. Logs go to stderr so the output stays pipeable.
func printItems(items []models.Item, asJSON bool) error {
	if asJSON {
		payload, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(payload))
		return nil
	}

	for _, it := range items {
		title := strings.TrimSpace(strings.ReplaceAll(it.Title, "\n", " "))
		line := fmt.Sprintf("- [%s] %s\n  %s", it.Source, title, it.Link)
		if it.PublishedAt != nil {
			line += fmt.Sprintf(" (%s)", it.PublishedAt.Format(time.RFC3339))
		}
		fmt.Println(line)
	}
	return nil
}

// summarizeReport logs one line per status bucket so a cycle is never a
// silent partial success.
func summarizeReport(report models.CycleReport) {
	counts := lo.CountValuesBy(report.Outcomes, func(o models.SourceOutcome) string {
		return o.Status
	})

	fields := log.Fields{
		"sources":  len(report.Outcomes),
		"created":  report.Created(),
		"duration": report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String(),
	}
	for status, n := range counts {
		fields[status] = n
	}
	log.WithFields(fields).Info("Cycle complete")

	for _, o := range report.Outcomes {
		if o.Error != "" {
			log.WithFields(log.Fields{
				"source": o.URL,
				"status": o.Status,
			}).Warn(o.Error)
		}
	}
}
