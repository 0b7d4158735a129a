// Package feed publishes the relay's broadcast events to a redis pub/sub
// channel so external read models can follow the board without holding a
// TCP session. The feed is observational: it is never part of the
// consistency path, and losing events here cannot affect client replicas.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Envelope wraps one broadcast line. Seq increases by one per published
// event, so consumers can detect gaps introduced by overflow drops.
type Envelope struct {
	Seq  uint64 `json:"seq"`
	Line string `json:"line"`
	Time int64  `json:"time"`
}

// Publisher forwards broadcast lines to redis from its own goroutine, so
// the hub's dispatch never waits on the network.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *log.Logger

	lines     chan string
	done      chan struct{}
	closeOnce sync.Once
}

func NewPublisher(client *redis.Client, channel string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	p := &Publisher{
		client:  client,
		channel: channel,
		logger:  logger,
		lines:   make(chan string, 256),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish is the hub tap. It never blocks; when the internal buffer is
// full the event is dropped and logged.
func (p *Publisher) Publish(line string) {
	select {
	case p.lines <- line:
	default:
		p.logger.WithField("channel", p.channel).Warn("feed buffer full, dropping event")
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	ctx := context.Background()
	var seq uint64
	for line := range p.lines {
		seq++
		payload, err := sonic.Marshal(Envelope{Seq: seq, Line: line, Time: time.Now().UnixMilli()})
		if err != nil {
			p.logger.Errorf("feed encode: %v", err)
			continue
		}
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			p.logger.Errorf("feed publish: %v", err)
		}
	}
}

// Close drains the queued events and stops the publisher.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.lines)
		<-p.done
	})
}
