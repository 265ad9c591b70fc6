// Command clipinvalidate publishes a cache invalidation event for a layer or
// raster to the topic clipd consumes.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/raster-clip/internal/core/config"
	"github.com/mohammed-shakir/raster-clip/internal/invalidation"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	brokers := flag.String("brokers", cfg.Invalidation.Brokers, "comma-separated Kafka brokers")
	topic := flag.String("topic", cfg.Invalidation.Topic, "invalidation topic")
	op := flag.String("op", "update", "insert|update|delete")
	layer := flag.String("layer", "", "layer id to invalidate")
	rasterID := flag.String("raster", "", "raster id to invalidate")
	bbox := flag.String("bbox", "", "optional x1,y1,x2,y2[,EPSG:4326] limiting the eviction")
	dryRun := flag.Bool("dry-run", false, "print the event instead of publishing it")
	flag.Parse()

	ev, err := buildEvent(*op, *layer, *rasterID, *bbox, time.Now().UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid event:", err)
		return 2
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode event:", err)
		return 1
	}
	if *dryRun {
		fmt.Println(string(payload))
		return 0
	}

	partition, offset, err := publish(splitBrokers(*brokers), *topic, ev.Target(), payload)
	if err != nil {
		fmt.Fprintln(os.Stderr, "publish:", err)
		return 1
	}
	fmt.Printf("published %s to %s[%d]@%d\n", ev.Target(), *topic, partition, offset)
	return 0
}

func buildEvent(op, layer, rasterID, bbox string, now time.Time) (invalidation.Event, error) {
	ev := invalidation.Event{
		Version: 1,
		Op:      strings.ToLower(strings.TrimSpace(op)),
		Layer:   strings.TrimSpace(layer),
		Raster:  strings.TrimSpace(rasterID),
		TS:      now,
		Source:  "clipinvalidate",
	}
	if strings.TrimSpace(bbox) != "" {
		bb, err := parseBBox(bbox)
		if err != nil {
			return ev, fmt.Errorf("bbox: %w", err)
		}
		ev.BBox = &bb
	}
	return ev, ev.Validate()
}

func parseBBox(raw string) (invalidation.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return invalidation.BBox{}, errors.New("expected x1,y1,x2,y2 with an optional EPSG:4326 suffix")
	}
	var v [4]float64
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return invalidation.BBox{}, fmt.Errorf("coordinate %d: %w", i+1, err)
		}
		v[i] = f
	}
	srid := "EPSG:4326"
	if len(parts) == 5 {
		srid = strings.ToUpper(strings.TrimSpace(parts[4]))
	}
	return invalidation.BBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3], SRID: srid}, nil
}

func splitBrokers(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// publish keys the message by target so events for one layer or raster stay
// ordered on a single partition.
func publish(brokers []string, topic, key string, payload []byte) (int32, int64, error) {
	if len(brokers) == 0 {
		return 0, 0, errors.New("no brokers configured")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Timeout = 10 * time.Second

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return 0, 0, fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	partition, offset, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("send message: %w", err)
	}
	return partition, offset, nil
}
