package errors

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRetryWithBackoff(t *testing.T) {
	Convey("Given a retry config with short delays", t, func() {
		config := &RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2.0,
		}

		Convey("When the function succeeds on the second attempt", func() {
			calls := 0

			err := RetryWithBackoff(context.Background(), config, func() error {
				calls++

				if calls < 2 {
					return ErrNotFound
				}

				return nil
			})

			Convey("Then the error is swallowed and attempts stop", func() {
				So(err, ShouldBeNil)
				So(calls, ShouldEqual, 2)
			})
		})

		Convey("When the function never succeeds", func() {
			calls := 0

			err := RetryWithBackoff(context.Background(), config, func() error {
				calls++
				return ErrNotFound
			})

			Convey("Then the last error surfaces after all attempts", func() {
				So(err, ShouldEqual, ErrNotFound)
				So(calls, ShouldEqual, 3)
			})
		})

		Convey("When the context is cancelled between attempts", func() {
			ctx, cancel := context.WithCancel(context.Background())
			calls := 0

			err := RetryWithBackoff(ctx, config, func() error {
				calls++
				cancel()
				return ErrNotFound
			})

			Convey("Then retrying stops with the context error", func() {
				So(err, ShouldEqual, context.Canceled)
				So(calls, ShouldEqual, 1)
			})
		})
	})
}

func TestTaxonomy(t *testing.T) {
	Convey("Given wrapped store and provider errors", t, func() {
		Convey("Then constraint errors match through wrapping", func() {
			err := NewConstraint("entity_hubs", "postgres", ErrNotFound)
			So(IsConstraint(err), ShouldBeTrue)
			So(IsValidation(err), ShouldBeFalse)
		})

		Convey("Then provider errors unwrap to their cause", func() {
			err := NewProvider("openai", "embed", ErrNotFound)
			So(IsProvider(err), ShouldBeTrue)
			So(err.Unwrap(), ShouldEqual, ErrNotFound)
		})

		Convey("Then validation errors carry the field", func() {
			err := NewValidation("content", "content is blank")
			So(err.Error(), ShouldContainSubstring, "content")
		})
	})
}
