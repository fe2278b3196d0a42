package logger

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	convey.Convey("Given an observed logger", t, func() {
		core, logs := observer.New(zapcore.DebugLevel)
		l := FromZap(zap.New(core))

		convey.Convey("Key/value pairs are attached as fields", func() {
			l.With("stage", "extraction").Info("stage finished", "records", 3)

			entries := logs.All()
			convey.So(len(entries), convey.ShouldEqual, 1)
			fields := entries[0].ContextMap()
			convey.So(fields["stage"], convey.ShouldEqual, "extraction")
			convey.So(fields["records"], convey.ShouldEqual, int64(3))
		})

		convey.Convey("Sensitive keys are redacted", func() {
			l.Warn("dropped record", "email", "a@b.com", "db_password", "hunter2", "user_id", "u1")

			fields := logs.All()[0].ContextMap()
			convey.So(fields["email"], convey.ShouldEqual, "[REDACTED]")
			convey.So(fields["db_password"], convey.ShouldEqual, "[REDACTED]")
			convey.So(fields["user_id"], convey.ShouldEqual, "u1")
		})
	})

	convey.Convey("New validates the level", t, func() {
		_, err := New("production", "verbose")
		convey.So(err, convey.ShouldNotBeNil)

		l, err := New("development", "warn")
		convey.So(err, convey.ShouldBeNil)
		convey.So(l.SugaredLogger.Desugar().Core().Enabled(zapcore.InfoLevel), convey.ShouldBeFalse)
	})

	convey.Convey("NewNop discards output", t, func() {
		convey.So(func() { NewNop().Error("ignored", "k", "v") }, convey.ShouldNotPanic)
	})
}
