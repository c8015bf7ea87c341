package logger

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	uploadQueueSize = 1024
	uploadBatchSize = 100
	flushInterval   = 2 * time.Second
)

// BetterStackCore is a zapcore.Core that ships entries to a Better Stack
// source as JSON. Entries are queued for a single background uploader that
// posts them in batches; when the queue is full new entries are dropped.
type BetterStackCore struct {
	zapcore.LevelEnabler
	enc      zapcore.Encoder
	uploader *uploader
}

// NewBetterStackCore creates a core that uploads entries at or above level.
func NewBetterStackCore(uploadURL, sourceToken string, level zapcore.LevelEnabler) *BetterStackCore {
	return newBetterStackCore(uploadURL, sourceToken, level, uploadQueueSize)
}

func newBetterStackCore(uploadURL, sourceToken string, level zapcore.LevelEnabler, queueSize int) *BetterStackCore {
	u := &uploader{
		uploadURL:   uploadURL,
		sourceToken: sourceToken,
		client:      &http.Client{Timeout: 10 * time.Second},
		entries:     make(chan []byte, queueSize),
		flush:       make(chan chan struct{}),
	}
	go u.run()

	return &BetterStackCore{
		LevelEnabler: level,
		enc: zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			MessageKey:     "message",
			CallerKey:      "caller",
			StacktraceKey:  "stacktrace",
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}),
		uploader: u,
	}
}

func (c *BetterStackCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.enc = c.enc.Clone()
	for _, f := range fields {
		f.AddTo(clone.enc)
	}
	return &clone
}

func (c *BetterStackCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *BetterStackCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	body := bytes.TrimRight(buf.Bytes(), "\n")
	entry := bytes.Clone(body)
	buf.Free()

	select {
	case c.uploader.entries <- entry:
	default:
		c.uploader.dropped.Add(1)
	}
	return nil
}

// Sync uploads everything queued so far.
func (c *BetterStackCore) Sync() error {
	ack := make(chan struct{})
	c.uploader.flush <- ack
	<-ack
	return nil
}

// Dropped reports how many entries were discarded because the queue was full.
func (c *BetterStackCore) Dropped() int64 {
	return c.uploader.dropped.Load()
}

type uploader struct {
	uploadURL   string
	sourceToken string
	client      *http.Client

	entries chan []byte
	flush   chan chan struct{}
	dropped atomic.Int64
}

func (u *uploader) run() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([][]byte, 0, uploadBatchSize)
	send := func() {
		if len(batch) == 0 {
			return
		}
		if err := u.upload(batch); err != nil {
			fmt.Fprintf(os.Stderr, "better stack upload failed: %v\n", err)
		}
		batch = batch[:0]
	}
	add := func(entry []byte) {
		batch = append(batch, entry)
		if len(batch) >= uploadBatchSize {
			send()
		}
	}

	for {
		select {
		case entry := <-u.entries:
			add(entry)
		case <-ticker.C:
			send()
		case ack := <-u.flush:
		drain:
			for {
				select {
				case entry := <-u.entries:
					add(entry)
				default:
					break drain
				}
			}
			send()
			close(ack)
		}
	}
}

// upload posts batch as a JSON array.
func (u *uploader) upload(batch [][]byte) error {
	var body bytes.Buffer
	body.WriteByte('[')
	body.Write(bytes.Join(batch, []byte{','}))
	body.WriteByte(']')

	req, err := http.NewRequest(http.MethodPost, u.uploadURL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.sourceToken)

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response: %s", resp.Status)
	}
	return nil
}
