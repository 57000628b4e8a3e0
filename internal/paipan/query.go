package paipan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/paipan/internal/model"
)

// ErrInvalidQuery is returned by the Validate methods.
var ErrInvalidQuery = errors.New("invalid chart query")

// Form paths on the chart site, relative to Config.BaseURL.
const (
	BaZiPath   = "/BaZi/BaZi.asp"
	LiuYaoPath = "/LiuYao/LiuYao.asp"
)

// The site requires a name and a submit label on every form.
const (
	placeholderName = "某人"
	submitLabel     = " 排盘 "
)

// Gender values accepted by the rdoSex form field.
const (
	Female = 0
	Male   = 1
)

// BaZiQuery is a birth moment and place for a four-pillars chart.
type BaZiQuery struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Gender   int    `json:"gender"`
	Province string `json:"province"`
	City     string `json:"city"`
}

// Validate checks ranges the site would otherwise silently coerce.
func (q BaZiQuery) Validate() error {
	if err := validateMoment(q.Year, q.Month, q.Day, q.Hour, q.Minute); err != nil {
		return err
	}
	if q.Gender != Female && q.Gender != Male {
		return fmt.Errorf("%w: gender must be 0 or 1, got %d", ErrInvalidQuery, q.Gender)
	}
	if strings.TrimSpace(q.Province) == "" || strings.TrimSpace(q.City) == "" {
		return fmt.Errorf("%w: province and city are required", ErrInvalidQuery)
	}
	return nil
}

// Payload renders the BaZi form in the order the site's own page posts it.
func (q BaZiQuery) Payload() model.Payload {
	return model.NewPayload(
		model.TextField("txtName", placeholderName),
		model.IntField("zty", 0),
		model.TextField("pid", q.Province),
		model.TextField("cid", q.City),
		model.IntField("data_type", 0),
		model.IntField("cboYear", q.Year),
		model.IntField("cboMonth", q.Month),
		model.IntField("cboDay", q.Day),
		model.IntField("cboHour", q.Hour),
		model.IntField("cboMinute", q.Minute),
		model.IntField("rdoSex", q.Gender),
		model.TextField("submit", submitLabel),
	)
}

// LiuYaoQuery is a question and the moment it was cast.
type LiuYaoQuery struct {
	Event  string `json:"event"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Day    int    `json:"day"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

func (q LiuYaoQuery) Validate() error {
	if strings.TrimSpace(q.Event) == "" {
		return fmt.Errorf("%w: event is required", ErrInvalidQuery)
	}
	return validateMoment(q.Year, q.Month, q.Day, q.Hour, q.Minute)
}

// Payload renders the LiuYao form. The divination method, calendar and
// layout options are pinned to the site defaults (time-based casting).
func (q LiuYaoQuery) Payload() model.Payload {
	return model.NewPayload(
		model.TextField("txtEvent", q.Event),
		model.IntField("cboYear", q.Year),
		model.IntField("cboMonth", q.Month),
		model.IntField("cboDay", q.Day),
		model.IntField("cboHour", q.Hour),
		model.IntField("cboMinute", q.Minute),
		model.IntField("rdoQiGua", 0),
		model.TextField("txtName", placeholderName),
		model.IntField("rdoSex", Male),
		model.IntField("rdoLiFa", 0),
		model.IntField("cboPanShi", 0),
		model.TextField("Submit", submitLabel),
	)
}

func validateMoment(year, month, day, hour, minute int) error {
	switch {
	case year <= 0:
		return fmt.Errorf("%w: year must be positive, got %d", ErrInvalidQuery, year)
	case month < 1 || month > 12:
		return fmt.Errorf("%w: month out of range: %d", ErrInvalidQuery, month)
	case day < 1 || day > 31:
		return fmt.Errorf("%w: day out of range: %d", ErrInvalidQuery, day)
	case hour < 0 || hour > 23:
		return fmt.Errorf("%w: hour out of range: %d", ErrInvalidQuery, hour)
	case minute < 0 || minute > 59:
		return fmt.Errorf("%w: minute out of range: %d", ErrInvalidQuery, minute)
	}
	return nil
}
