package main

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/symptra/symptra/internal/config"
	"github.com/symptra/symptra/internal/platform/events"
	"github.com/symptra/symptra/internal/platform/telemetry"
)

// buildPublisher fans decision events out to every sink named in
// EVENTS_SINKS. With none configured events are dropped.
func buildPublisher(cfg *config.Config, rdb *redis.Client, metrics *telemetry.Metrics, logger zerolog.Logger) (events.Publisher, error) {
	var sinks []events.Sink
	for _, name := range cfg.EventsSinks {
		switch strings.ToLower(name) {
		case config.SinkRedis:
			if rdb == nil {
				return nil, fmt.Errorf("redis event sink needs REDIS_URL")
			}
			sinks = append(sinks, events.Sink{
				Name:      name,
				Publisher: events.NewRedisPublisher(rdb, cfg.EventsRedisStream, cfg.EventsRedisMaxLen),
			})
		case config.SinkKafka:
			sinks = append(sinks, events.Sink{
				Name:      name,
				Publisher: events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsKafkaTopic),
			})
		case config.SinkWebhook:
			sinks = append(sinks, events.Sink{
				Name:      name,
				Publisher: events.NewWebhookPublisher(cfg.WebhookURLs, cfg.WebhookSecret),
			})
		default:
			return nil, fmt.Errorf("unknown event sink %q", name)
		}
	}

	if len(sinks) == 0 {
		logger.Info().Msg("no event sinks configured; decision events are dropped")
		return events.NewNoop(), nil
	}

	observe := func(sink string, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.EventsPublished.WithLabelValues(sink, result).Inc()
	}
	logger.Info().Int("sinks", len(sinks)).Strs("names", cfg.EventsSinks).Msg("event sinks configured")
	return events.NewMulti(observe, sinks...), nil
}
