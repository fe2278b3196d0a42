package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"ecommerce-analytics-pipeline/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestFileReader(t *testing.T) {
	ctx := context.Background()

	Convey("Given a JSON array file", t, func() {
		p := writeFile(t, "transactions.json", `[{"transaction_id":"t1","amount":10.5},{"transaction_id":"t2","amount":3}]`)

		recs, err := FileReader{Path: p}.Read(ctx, model.KindTransactions)

		So(err, ShouldBeNil)
		So(len(recs), ShouldEqual, 2)
		So(recs[0]["transaction_id"], ShouldEqual, "t1")
		So(recs[1]["amount"], ShouldEqual, 3.0)
	})

	Convey("Given a JSON file with a single object", t, func() {
		p := writeFile(t, "products.json", `{"product_id":"p1","name":"X","price":100}`)

		recs, err := FileReader{Path: p}.Read(ctx, model.KindProducts)

		So(err, ShouldBeNil)
		So(len(recs), ShouldEqual, 1)
		So(recs[0]["name"], ShouldEqual, "X")
	})

	Convey("Given a CSV file", t, func() {
		p := writeFile(t, "users.csv", "user_id,email,country,\"customer_tier\",is_active\nu1,a@b.com,US,vip,true\nu2,c@d.com,DE,,false\n")

		recs, err := FileReader{Path: p}.Read(ctx, model.KindUsers)

		So(err, ShouldBeNil)
		So(len(recs), ShouldEqual, 2)
		So(recs[0]["customer_tier"], ShouldEqual, "vip")
		So(recs[0]["is_active"], ShouldEqual, true)
		_, present := recs[1]["customer_tier"]
		So(present, ShouldBeFalse)
	})

	Convey("Given a missing file", t, func() {
		_, err := FileReader{Path: filepath.Join(t.TempDir(), "nope.json")}.Read(ctx, model.KindTransactions)

		So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		var se *SourceError
		So(errors.As(err, &se), ShouldBeTrue)
		So(se.Record, ShouldEqual, model.KindTransactions)
	})

	Convey("Given malformed content", t, func() {
		bad := writeFile(t, "bad.json", `[{"transaction_id":`)
		_, err := FileReader{Path: bad}.Read(ctx, model.KindTransactions)
		So(errors.Is(err, ErrParse), ShouldBeTrue)

		scalars := writeFile(t, "scalars.json", `[1,2,3]`)
		_, err = FileReader{Path: scalars}.Read(ctx, model.KindTransactions)
		So(errors.Is(err, ErrParse), ShouldBeTrue)

		empty := writeFile(t, "empty.csv", "")
		_, err = FileReader{Path: empty}.Read(ctx, model.KindUsers)
		So(errors.Is(err, ErrParse), ShouldBeTrue)
	})
}

type stubReader struct {
	records []model.RawRecord
	closed  int
}

func (s *stubReader) Read(context.Context, model.RecordKind) ([]model.RawRecord, error) {
	return s.records, nil
}

func (s *stubReader) Close() error {
	s.closed++
	return nil
}

func TestSource(t *testing.T) {
	Convey("Given a source with one closable reader", t, func() {
		r := &stubReader{records: []model.RawRecord{{"user_id": "u1"}}}
		src := NewWithReaders(map[model.RecordKind]Reader{model.KindUsers: r}, nil)

		Convey("Configured kinds are routed to their reader", func() {
			recs, err := src.Extract(context.Background(), model.KindUsers)
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
		})

		Convey("Unconfigured kinds yield nothing", func() {
			recs, err := src.Extract(context.Background(), model.KindProducts)
			So(err, ShouldBeNil)
			So(recs, ShouldBeEmpty)
		})

		Convey("Close releases readers once", func() {
			So(src.Close(), ShouldBeNil)
			So(src.Close(), ShouldBeNil)
			So(r.closed, ShouldEqual, 1)
		})
	})
}
