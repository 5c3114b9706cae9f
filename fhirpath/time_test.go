package fhirpath_test

import (
	"testing"

	"github.com/fhirpath-go/fhirpath"
)

func TestDateLiteralsAndPrecision(t *testing.T) {
	d, ok, err := fhirpath.Singleton[fhirpath.Date](eval(t, "@2020"))
	if err != nil || !ok {
		t.Fatalf("@2020: ok=%v err=%v", ok, err)
	}
	if d.Precision != fhirpath.DatePrecisionYear || d.Year != 2020 {
		t.Fatalf("got %+v", d)
	}

	d, ok, err = fhirpath.Singleton[fhirpath.Date](eval(t, "@2020-06-15"))
	if err != nil || !ok {
		t.Fatalf("@2020-06-15: ok=%v err=%v", ok, err)
	}
	if d.Year != 2020 || d.Month != 6 || d.Day != 15 || d.Precision != fhirpath.DatePrecisionDay {
		t.Fatalf("got %+v", d)
	}
}

func TestDatePartialPrecisionEquality(t *testing.T) {
	// Differing precision where the shared prefix matches is indeterminate,
	// not false: the comparison must propagate empty, not evaluate to false.
	wantEmpty(t, eval(t, "@2020-01 = @2020-01-01"))
	wantSingle(t, eval(t, "@2020-01 = @2020-02"), fhirpath.Boolean(false))
	wantSingle(t, eval(t, "@2020-01-01 = @2020-01-01"), fhirpath.Boolean(true))
}

func TestDateComparison(t *testing.T) {
	wantSingle(t, eval(t, "@2020-01-01 < @2020-01-02"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "@2021 > @2020"), fhirpath.Boolean(true))
}

func TestDateArithmetic(t *testing.T) {
	wantSingle(t, eval(t, "@2020-01-01 + 1 day"), fhirpath.Date{Year: 2020, Month: 1, Day: 2, Precision: fhirpath.DatePrecisionDay})
	wantSingle(t, eval(t, "@2020-01-15 + 1 month"), fhirpath.Date{Year: 2020, Month: 2, Day: 15, Precision: fhirpath.DatePrecisionDay})
	wantSingle(t, eval(t, "@2020-01-01 - 1 day"), fhirpath.Date{Year: 2019, Month: 12, Day: 31, Precision: fhirpath.DatePrecisionDay})
}

func TestTimeLiteralsAndComparison(t *testing.T) {
	tm, ok, err := fhirpath.Singleton[fhirpath.Time](eval(t, "@T10:30:00"))
	if err != nil || !ok {
		t.Fatalf("@T10:30:00: ok=%v err=%v", ok, err)
	}
	if tm.Hour != 10 || tm.Minute != 30 || tm.Second != 0 || tm.Precision != fhirpath.TimePrecisionSecond {
		t.Fatalf("got %+v", tm)
	}
	wantSingle(t, eval(t, "@T10:30:00 < @T11:00:00"), fhirpath.Boolean(true))
	wantEmpty(t, eval(t, "@T10:30 = @T10:30:00"))
}

func TestDateTimeLiteralsAndTimezone(t *testing.T) {
	dt, ok, err := fhirpath.Singleton[fhirpath.DateTime](eval(t, "@2020-01-01T10:00:00Z"))
	if err != nil || !ok {
		t.Fatalf("@2020-01-01T10:00:00Z: ok=%v err=%v", ok, err)
	}
	if !dt.HasTimezone || dt.TZOffsetMinutes != 0 {
		t.Fatalf("got %+v", dt)
	}

	// Equal instants at different offsets must compare equal once normalized
	// to UTC, even though their literal fields differ.
	wantSingle(t, eval(t, "@2020-01-01T10:00:00Z = @2020-01-01T11:00:00+01:00"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "@2020-01-01T10:00:00+00:00 > @2020-01-01T10:00:00+01:00"), fhirpath.Boolean(true))
}

func TestDateTimeArithmetic(t *testing.T) {
	wantSingle(t, eval(t, "@2020-01-01T10:00:00 + 30 minutes"), fhirpath.DateTime{
		Year: 2020, Month: 1, Day: 1, Hour: 10, Minute: 30, Second: 0, Precision: fhirpath.DateTimePrecisionSecond,
	})
	wantSingle(t, eval(t, "@2020-01-01T10:00:00 + 1 hour"), fhirpath.DateTime{
		Year: 2020, Month: 1, Day: 1, Hour: 11, Minute: 0, Second: 0, Precision: fhirpath.DateTimePrecisionSecond,
	})
}

func TestDateTimeConversions(t *testing.T) {
	wantSingle(t, eval(t, "@2020-06-15T10:30:00.toDate()"), fhirpath.Date{Year: 2020, Month: 6, Day: 15, Precision: fhirpath.DatePrecisionDay})
	wantSingle(t, eval(t, "@2020-06-15T10:30:00.toTime()"), fhirpath.Time{Hour: 10, Minute: 30, Second: 0, Precision: fhirpath.TimePrecisionSecond})
	wantEmpty(t, eval(t, "@2020-06-15.toTime()"))
}

func TestDateTimeConversionFunctions(t *testing.T) {
	wantSingle(t, eval(t, "'2020-06-15'.toDate()"), fhirpath.Date{Year: 2020, Month: 6, Day: 15, Precision: fhirpath.DatePrecisionDay})
	wantSingle(t, eval(t, "'2020-06-15'.convertsToDate()"), fhirpath.Boolean(true))
	wantSingle(t, eval(t, "'not-a-date'.convertsToDate()"), fhirpath.Boolean(false))
}
