package stage_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/mafiabot/internal/domain/stage"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEndOfStage(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}

	Convey("Given a stage that started in the morning", t, func() {
		start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).Unix()

		Convey("When the stage lasts 48 hours", func() {
			end, err := stage.EndOfStage(start, 48, stage.Clock{Hour: 21, Minute: 10}, madrid)

			Convey("Then it ends at the cutoff two days later, local time", func() {
				So(err, ShouldBeNil)
				want := time.Date(2024, 3, 3, 21, 10, 0, 0, madrid).Unix()
				So(end, ShouldEqual, want)
			})
		})

		Convey("When the duration is not positive", func() {
			_, err := stage.EndOfStage(start, 0, stage.DefaultCutoff, madrid)
			So(errors.Is(err, stage.ErrInvalidDuration), ShouldBeTrue)
			_, err = stage.EndOfStage(start, -4, stage.DefaultCutoff, madrid)
			So(errors.Is(err, stage.ErrInvalidDuration), ShouldBeTrue)
		})
	})

	Convey("Given a stage spanning a daylight saving change", t, func() {
		start := time.Date(2024, 3, 30, 12, 0, 0, 0, time.UTC).Unix()
		end, err := stage.EndOfStage(start, 48, stage.DefaultCutoff, madrid)

		Convey("Then the cutoff is wall-clock time in the new offset", func() {
			So(err, ShouldBeNil)
			So(end, ShouldEqual, time.Date(2024, 4, 1, 19, 10, 0, 0, time.UTC).Unix())
		})
	})

	Convey("Given a stage that started after the cutoff", t, func() {
		start := time.Date(2024, 5, 6, 22, 30, 0, 0, madrid).Unix()
		end, _ := stage.EndOfStage(start, 24, stage.DefaultCutoff, madrid)

		Convey("Then the snap may move the deadline earlier than start plus duration", func() {
			So(end, ShouldEqual, time.Date(2024, 5, 7, 21, 10, 0, 0, madrid).Unix())
			So(end, ShouldBeLessThan, start+24*3600)
		})
	})
}

func TestTimer(t *testing.T) {
	Convey("Given a timer with default settings", t, func() {
		timer, err := stage.NewTimer()
		So(err, ShouldBeNil)

		Convey("Then windows use the 48 hour default", func() {
			start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).Unix()
			w := timer.Window(stage.Stage{Kind: stage.Day, StartPost: 1, StartTime: start})
			madrid, _ := time.LoadLocation(stage.DefaultZone)
			So(w.Deadline, ShouldEqual, time.Date(2024, 3, 3, 21, 10, 0, 0, madrid).Unix())
			So(w.IsPastDeadline(w.Deadline-1), ShouldBeFalse)
			So(w.IsPastDeadline(w.Deadline), ShouldBeTrue)
		})
	})

	Convey("Given a timer with a zero duration", t, func() {
		_, err := stage.NewTimer(stage.WithDurationHours(0))
		So(errors.Is(err, stage.ErrInvalidDuration), ShouldBeTrue)
	})

	Convey("Given a timer in UTC with a custom cutoff", t, func() {
		timer, err := stage.NewTimer(
			stage.WithDurationHours(24),
			stage.WithCutoff(stage.Clock{Hour: 12}),
			stage.WithLocation(time.UTC),
		)
		So(err, ShouldBeNil)
		start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC).Unix()
		So(timer.EndOfStage(start), ShouldEqual, time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC).Unix())
	})

	Convey("Given a zero Timer", t, func() {
		var timer stage.Timer
		built, err := stage.NewTimer()
		So(err, ShouldBeNil)

		Convey("Then deadlines match a timer built with the defaults", func() {
			start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).Unix()
			So(timer.EndOfStage(start), ShouldNotEqual, 0)
			So(timer.EndOfStage(start), ShouldEqual, built.EndOfStage(start))
			So(timer.Window(stage.Stage{StartTime: start}).Deadline, ShouldEqual, built.EndOfStage(start))
		})
	})
}

func TestParse(t *testing.T) {
	Convey("Clocks parse from HH:MM", t, func() {
		c, err := stage.ParseClock("21:10")
		So(err, ShouldBeNil)
		So(c, ShouldResemble, stage.Clock{Hour: 21, Minute: 10})
		So(c.String(), ShouldEqual, "21:10")

		for _, bad := range []string{"", "2110", "24:00", "12:60", "aa:bb"} {
			_, err := stage.ParseClock(bad)
			So(errors.Is(err, stage.ErrInvalidClock), ShouldBeTrue)
		}
	})

	Convey("Stage names parse in both languages", t, func() {
		k, err := stage.ParseKind("Noche")
		So(err, ShouldBeNil)
		So(k, ShouldEqual, stage.Night)
		k, _ = stage.ParseKind("day")
		So(k, ShouldEqual, stage.Day)
		So(k.String(), ShouldEqual, "day")
		_, err = stage.ParseKind("afternoon")
		So(errors.Is(err, stage.ErrUnknownStage), ShouldBeTrue)
	})
}
