package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/api/write"
)

type pointSink struct{ points []*write.Point }

func (s *pointSink) WritePoint(p *write.Point) { s.points = append(s.points, p) }

func TestRecorderPoint(t *testing.T) {
	sink := &pointSink{}
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &recorder{w: sink, now: func() time.Time { return ts }}

	r.record(3, 250000, -17)

	if len(sink.points) != 1 {
		t.Fatalf("got %d points", len(sink.points))
	}
	p := sink.points[0]
	if p.Name() != Measurement || !p.Time().Equal(ts) {
		t.Errorf("point %s @ %v", p.Name(), p.Time())
	}
	tags := p.TagList()
	if len(tags) != 1 || tags[0].Key != "oid" || tags[0].Value != "3" {
		t.Errorf("tags = %+v", tags)
	}
	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["count"] != int64(-17) || fields["clock"] != int64(250000) {
		t.Errorf("fields = %v", fields)
	}
}

type querier struct {
	asked []uint8
	fail  uint8
}

func (q *querier) QueryEncoder(_ context.Context, oid uint8) (int32, error) {
	q.asked = append(q.asked, oid)
	if oid == q.fail {
		return 0, errors.New("timeout")
	}
	return 1, nil
}

func TestPoll(t *testing.T) {
	q := &querier{fail: 255}
	if err := poll(context.Background(), q, []uint8{1, 3}); err != nil {
		t.Fatal(err)
	}
	if len(q.asked) != 2 || q.asked[0] != 1 || q.asked[1] != 3 {
		t.Errorf("asked %v", q.asked)
	}

	q = &querier{fail: 1}
	if err := poll(context.Background(), q, []uint8{1, 3}); err == nil || len(q.asked) != 1 {
		t.Errorf("poll = %v after %v", err, q.asked)
	}
}
