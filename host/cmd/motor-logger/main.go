// motor-logger configures the motors in motor.yaml and writes their encoder
// counts to InfluxDB.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"

	"gomotor/host/config"
	"gomotor/host/mcu"
	"gomotor/host/serial"
)

var (
	configPath = flag.String("config", "", "motor.yaml path (default $MOTOR_CONFIG or ./motor.yaml)")
	interval   = flag.Duration("poll", time.Second, "poll interval for encoders without report_ms")
)

func main() {
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal(err)
	}

	client := influxdb2.NewClient(cfg.Influx.Server, cfg.Influx.Token)
	defer client.Close()
	writeApi := client.WriteApi(cfg.Influx.Org, cfg.Influx.Bucket)
	defer writeApi.Close()
	go drainErrors(writeApi.Errors())

	m := mcu.NewMCU()
	sc := serial.DefaultConfig(cfg.Device)
	sc.Baud = cfg.Baud
	if err := m.ConnectWithConfig(sc); err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = m.RetrieveDictionary(ctx)
	cancel()
	if err != nil {
		log.Fatalf("dictionary: %v", err)
	}

	rec := &recorder{w: writeApi, now: time.Now}
	m.OnEncoderState(rec.record)
	m.OnShutdown(func(clock uint32, reason string) {
		log.Printf("MCU shutdown at clock %d: %s", clock, reason)
	})

	if err := mcu.Configure(context.Background(), m, cfg.Motors); err != nil {
		log.Fatal(err)
	}

	var polled []uint8
	for _, mc := range cfg.Motors {
		if mc.Encoder != nil && mc.ReportInterval() == 0 {
			polled = append(polled, mc.Encoder.OID)
		}
	}
	log.Printf("logging %d motors to %s/%s", len(cfg.Motors), cfg.Influx.Server, cfg.Influx.Bucket)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			writeApi.Flush()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), *interval)
			if err := poll(ctx, m, polled); err != nil {
				log.Print(err)
			}
			cancel()
		}
	}
}
