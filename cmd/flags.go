package main

import (
	"strings"

	"github.com/visawatch/bulletin-cli/internal/model"
)

// parseChartFlag accepts the short CLI forms ("final", "filing") alongside
// the canonical chart names.
func parseChartFlag(s string) (model.Chart, error) {
	switch strings.ToLower(s) {
	case "final":
		return model.ChartFinalAction, nil
	case "filing":
		return model.ChartDatesForFiling, nil
	}
	return model.ParseChart(s)
}
