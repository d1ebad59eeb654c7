package main

import (
	"context"
	"log"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api/write"
)

// Measurement is the InfluxDB measurement encoder counts are written to
const Measurement = "motor.encoder"

type pointWriter interface {
	WritePoint(p *write.Point)
}

type encoderQuerier interface {
	QueryEncoder(ctx context.Context, oid uint8) (int32, error)
}

// recorder turns encoder_state responses into points
type recorder struct {
	w   pointWriter
	now func() time.Time
}

func encoderPoint(oid uint8, clock uint32, count int32, ts time.Time) *write.Point {
	return influxdb2.NewPoint(Measurement,
		map[string]string{"oid": strconv.Itoa(int(oid))},
		map[string]interface{}{
			"count": int64(count),
			"clock": int64(clock),
		},
		ts,
	)
}

// record is registered with OnEncoderState and runs on the read loop
func (r *recorder) record(oid uint8, clock uint32, count int32) {
	r.w.WritePoint(encoderPoint(oid, clock, count, r.now()))
}

// poll queries each oid in turn. The answers arrive as encoder_state and
// reach record through the subscription like periodic reports do.
func poll(ctx context.Context, q encoderQuerier, oids []uint8) error {
	for _, oid := range oids {
		if _, err := q.QueryEncoder(ctx, oid); err != nil {
			return err
		}
	}
	return nil
}

func drainErrors(errs <-chan error) {
	for err := range errs {
		log.Printf("write error: %v", err)
	}
}
