package ensemble

import (
	"github.com/rs/zerolog"
)

// Decoder converts one downloaded GRIB2 file into normalized records.
// Decoding the GRIB2 binary format itself is an external concern; the
// retrieval core's obligation ends at bytes on disk, and callers plug in
// whatever decoder backs their toolchain.
type Decoder interface {
	Decode(path string) ([]Record, error)
}

// NoopDecoder decodes nothing. It is the default when no decoding backend is
// configured, letting retrieval-only invocations run without one.
type NoopDecoder struct{}

// Decode returns no records.
func (NoopDecoder) Decode(string) ([]Record, error) { return nil, nil }

// LoadRecords decodes a provider's downloaded files into records, tagging
// each with the model name and recovering the forecast hour from the
// filename when the decoder left it unset. Files that fail to decode are
// logged and skipped; decode failure is the collaborator's concern, not a
// retrieval failure.
func LoadRecords(dec Decoder, model string, paths []string, log zerolog.Logger) []Record {
	var out []Record
	for _, path := range paths {
		records, err := dec.Decode(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("decode failed, skipping file")
			continue
		}

		fh, fhErr := ForecastHourFromPath(path)
		for _, r := range records {
			if r.Model == "" {
				r.Model = model
			}
			if r.ForecastHour == 0 && fhErr == nil {
				r.ForecastHour = fh
			}
			out = append(out, r)
		}
	}
	return out
}
