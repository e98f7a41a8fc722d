package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoModelRecords() []Record {
	return []Record{
		{ForecastHour: 0, TemperatureC: 10, WindSpeedMS: 4, WindDirDeg: 90, PrecipMMPerHour: 0, Model: "GFS"},
		{ForecastHour: 0, TemperatureC: 20, WindSpeedMS: 6, WindDirDeg: 110, PrecipMMPerHour: 2, Model: "ICON"},
		{ForecastHour: 3, TemperatureC: 12, WindSpeedMS: 5, WindDirDeg: 95, PrecipMMPerHour: 1, Model: "GFS"},
	}
}

func TestAnalyzeTemperatureStats(t *testing.T) {
	analysis := Analyze(twoModelRecords())

	stats := analysis.Variables["temperature"]
	require.Len(t, stats, 2)

	h0 := stats[0]
	assert.Equal(t, 0, h0.ForecastHour)
	assert.InDelta(t, 15, h0.Mean, 1e-9)
	assert.InDelta(t, 7.0710678, h0.Std, 1e-6, "sample standard deviation")
	assert.InDelta(t, 10, h0.Min, 1e-9)
	assert.InDelta(t, 20, h0.Max, 1e-9)
	assert.InDelta(t, 15, h0.Median, 1e-9)
	assert.InDelta(t, h0.Mean-1.96*h0.Std, h0.CILower, 1e-9)
	assert.InDelta(t, h0.Mean+1.96*h0.Std, h0.CIUpper, 1e-9)

	h3 := stats[1]
	assert.Equal(t, 3, h3.ForecastHour)
	assert.InDelta(t, 12, h3.Mean, 1e-9)
	assert.InDelta(t, 0, h3.Std, 1e-9, "single sample has zero spread")
}

func TestAnalyzeCoversAllVariables(t *testing.T) {
	analysis := Analyze(twoModelRecords())
	for _, variable := range StatVariables {
		assert.Contains(t, analysis.Variables, variable)
		assert.NotEmpty(t, analysis.Variables[variable])
	}
}

func TestAnalyzeModelAgreement(t *testing.T) {
	analysis := Analyze(twoModelRecords())

	require.Len(t, analysis.Agreement, 3)
	assert.Equal(t, "GFS", analysis.Agreement[0].Model)
	assert.Equal(t, "ICON", analysis.Agreement[1].Model)
	assert.Equal(t, 0, analysis.Agreement[0].ForecastHour)
	assert.Equal(t, 3, analysis.Agreement[2].ForecastHour)
	assert.InDelta(t, 10, analysis.Agreement[0].Temperature, 1e-9)
	assert.InDelta(t, 20, analysis.Agreement[1].Temperature, 1e-9)
}

func TestAnalyzeEmptyInput(t *testing.T) {
	analysis := Analyze(nil)
	assert.Empty(t, analysis.Agreement)
	assert.Empty(t, analysis.Variables)
}

func TestMedianEvenCount(t *testing.T) {
	records := []Record{
		{ForecastHour: 0, TemperatureC: 1, Model: "A"},
		{ForecastHour: 0, TemperatureC: 2, Model: "B"},
		{ForecastHour: 0, TemperatureC: 3, Model: "C"},
		{ForecastHour: 0, TemperatureC: 10, Model: "D"},
	}
	analysis := Analyze(records)
	stats := analysis.Variables["temperature"]
	require.Len(t, stats, 1)
	assert.InDelta(t, 2.5, stats[0].Median, 1e-9)
}
