package fhirpath

import (
	"context"
	"time"
)

func init() {
	defaultFunctions["type"] = fnType
	defaultFunctions["now"] = fnNow
	defaultFunctions["today"] = fnToday
	defaultFunctions["timeOfDay"] = fnTimeOfDay
	defaultFunctions["hasValue"] = fnHasValue
	defaultFunctions["getValue"] = fnGetValue
	defaultFunctions["extension"] = fnExtension
}

// fnType implements type(): returns the reflection TypeInfo describing each
// element, as its own Element (TypeInfo embeds Element).
func fnType(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	out := make(Collection, len(this))
	for i, el := range this {
		out[i] = el.TypeInfo()
	}
	return out, nil
}

func fnNow(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	now := time.Now()
	return Collection{DateTime{
		Year: now.Year(), Month: int(now.Month()), Day: now.Day(),
		Hour: now.Hour(), Minute: now.Minute(), Second: now.Second(), Millisecond: now.Nanosecond() / 1e6,
		Precision:       DateTimePrecisionMillisecond,
		HasTimezone:     true,
		TZOffsetMinutes: offsetMinutes(now),
	}}, nil
}

func fnToday(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	now := time.Now()
	return Collection{Date{Year: now.Year(), Month: int(now.Month()), Day: now.Day(), Precision: DatePrecisionDay}}, nil
}

func fnTimeOfDay(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	now := time.Now()
	return Collection{Time{
		Hour: now.Hour(), Minute: now.Minute(), Second: now.Second(), Millisecond: now.Nanosecond() / 1e6,
		Precision: TimePrecisionMillisecond,
	}}, nil
}

func offsetMinutes(t time.Time) int {
	_, offsetSec := t.Zone()
	return offsetSec / 60
}

// fnHasValue implements hasValue(): true for any singleton primitive value,
// false for a ResourceAdapter node that reports HasValue()==false (a FHIR
// primitive carrying only extensions), empty for an empty input, and a
// singleton error for an input of two or more elements.
func fnHasValue(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	v, ok, err := Singleton[Element](this)
	if err != nil || !ok {
		return nil, err
	}
	if hv, isHasValuer := v.(hasValuer); isHasValuer {
		return Collection{Boolean(hv.HasValue())}, nil
	}
	return Collection{Boolean(true)}, nil
}

// fnGetValue implements getValue(): the primitive value itself, stripped of
// any element/extension wrapping a ResourceAdapter might carry. Absent a
// richer host representation this is simply the identity on the value
// already flowing through the collection.
func fnGetValue(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	v, ok, err := Singleton[Element](this)
	if err != nil || !ok {
		return nil, err
	}
	if hv, isHasValuer := v.(hasValuer); isHasValuer && !hv.HasValue() {
		return nil, nil
	}
	return Collection{v}, nil
}

// fnExtension implements extension(url): sugar for
// children("extension").where(url = <arg>), the common FHIR navigation
// shortcut.
func fnExtension(ctx context.Context, this Collection, args functionArgs) (Collection, error) {
	urlColl, err := args.arg(ctx, this, 0)
	if err != nil {
		return nil, err
	}
	url, ok, err := Singleton[String](urlColl)
	if err != nil || !ok {
		return nil, err
	}
	var out Collection
	for _, el := range this {
		for _, ext := range el.Children("extension") {
			urlChildren := ext.Children("url")
			u, uok, uerr := Singleton[String](urlChildren)
			if uerr != nil {
				return nil, uerr
			}
			if uok && u == url {
				out = append(out, ext)
			}
		}
	}
	return out, nil
}
