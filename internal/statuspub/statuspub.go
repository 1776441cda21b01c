// ABOUTME: Observer publishing gateway events as JSON on a Redis channel
// ABOUTME: Events are queued and published from one goroutine so Notify never blocks

package statuspub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2389/recgate/internal/config"
	"github.com/2389/recgate/internal/service"
)

const (
	queueSize      = 64
	publishTimeout = 2 * time.Second
)

// Client is the part of a Redis client the publisher needs.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// Publisher is a service.Observer that forwards events to Redis.
type Publisher struct {
	client  Client
	channel string
	logger  *slog.Logger

	queue     chan service.Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Dial connects to the Redis server named by cfg. It returns nil and no
// error when no address is configured.
func Dial(ctx context.Context, cfg config.StatusConfig, logger *slog.Logger) (*Publisher, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return New(rdb, cfg.RedisChannel, logger), nil
}

// New starts a publisher on an existing client.
func New(client Client, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "statuspub", "channel", channel),
		queue:   make(chan service.Event, queueSize),
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// OnEvent queues ev for publication. Events are dropped when the queue is full.
func (p *Publisher) OnEvent(ev service.Event) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("status queue full, dropping event", "event", ev.Kind)
	}
}

// Close publishes what is already queued, then closes the client.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		err = p.client.Close()
	})
	return err
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.queue:
			p.publish(ev)
		case <-p.done:
			for {
				select {
				case ev := <-p.queue:
					p.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(ev service.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("encoding event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("publishing event failed", "event", ev.Kind, "error", err)
		return
	}
	p.logger.Debug("event published", "event", ev.Kind, "source", ev.Source)
}
