package dashboard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/usms-bridge/usms-scraper/pkg/config"
)

// Extractor reads meter values from the readings page by fixed locators.
type Extractor struct {
	readingsURL  string
	locators     config.Locators
	fieldTimeout time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// NewExtractor creates an extractor for the configured dashboard layout.
func NewExtractor(cfg config.Config, logger zerolog.Logger) *Extractor {
	return &Extractor{
		readingsURL:  cfg.ReadingsPage(),
		locators:     cfg.Dashboard.Locators,
		fieldTimeout: cfg.Dashboard.FieldTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// ExtractField reads one field. Any failure to read it yields an absent
// Field and a warning; the only error returned is ErrSessionInvalid, which
// the caller must handle by replacing the session.
func (e *Extractor) ExtractField(page Page, name, locator string) (Field, error) {
	if locator == "" {
		e.logger.Warn().Str("field", name).Msg("no locator configured, field absent")
		return Absent(), nil
	}

	text, err := page.Text(locator, e.fieldTimeout)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return Absent(), err
		}
		e.logger.Warn().Err(err).Str("field", name).Str("locator", locator).Msg("field not found, layout may have changed")
		return Absent(), nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		e.logger.Warn().Str("field", name).Str("locator", locator).Msg("field is empty")
		return Absent(), nil
	}

	return Some(text), nil
}

// Extract loads the readings page and reads every field into a Reading.
// Missing fields are absent rather than failing the extraction; only
// ErrSessionInvalid is returned as an error.
func (e *Extractor) Extract(ctx context.Context, page Page) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	if err := page.Navigate(e.readingsURL); err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return Reading{}, err
		}
		e.logger.Warn().Err(err).Str("url", e.readingsURL).Msg("failed to load readings page, extracting from current page")
	}

	reading := Reading{}
	fields := []struct {
		name    string
		locator string
		dst     *Field
	}{
		{NameRemainingUnit, e.locators.RemainingUnit, &reading.RemainingUnit},
		{NameRemainingBalance, e.locators.RemainingBalance, &reading.RemainingBalance},
		{NameMeterLastPolled, e.locators.MeterLastPolled, &reading.MeterLastPolled},
	}

	for _, f := range fields {
		value, err := e.ExtractField(page, f.name, f.locator)
		if err != nil {
			return Reading{}, err
		}
		*f.dst = value
	}

	reading.CapturedAt = e.now().In(Zone)
	return reading, nil
}
