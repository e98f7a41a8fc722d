package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/nwp-ensemble/internal/ensemble"
	"github.com/i474232898/nwp-ensemble/internal/nwp"
	"github.com/i474232898/nwp-ensemble/internal/store"
)

var validate = validator.New()

// AnalysisFunc supplies the current ensemble analysis for the stats
// endpoints.
type AnalysisFunc func() ensemble.Analysis

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, st *store.MemoryStore, analysis AnalysisFunc) {
	v1 := app.Group("/api/v1")

	v1.Get("/retrieval/latest", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"providers": st.Latest(),
		})
	})

	v1.Get("/retrieval/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		summaries, err := st.GetRange(req.Provider, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no retrieval history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch retrieval history")
		}

		return c.JSON(fiber.Map{
			"provider":  req.Provider,
			"from":      req.From,
			"to":        req.To,
			"summaries": summaries,
		})
	})

	v1.Get("/stats", func(c *fiber.Ctx) error {
		result := analysis()

		variable := c.Query("variable")
		if variable == "" {
			return c.JSON(result.Variables)
		}

		stats, ok := result.Variables[variable]
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "unknown variable; one of temperature, wind_speed, wind_direction, precipitation")
		}
		return c.JSON(fiber.Map{
			"variable": variable,
			"stats":    stats,
		})
	})

	v1.Get("/stats/agreement", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"agreement": analysis().Agreement,
		})
	})
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Provider nwp.Provider `validate:"required"`
	From     time.Time    `validate:"required"`
	To       time.Time    `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	if c.Query("provider") == "" {
		return errors.New("provider query parameter is required")
	}
	providers, err := nwp.ParseProviders(c.Query("provider"))
	if err != nil {
		return err
	}
	if len(providers) != 1 {
		return errors.New("provider query parameter must name a single provider")
	}
	h.Provider = providers[0]

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
