package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "speechpipe/internal/app/errors"
)

const (
	requestQueue     = "speechpipe:requests"
	replyQueuePrefix = "speechpipe:replies:"
)

// Client talks to the external transcription backend over redis lists.
type Client struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewClient(addr string, log *zap.Logger) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		log: log,
	}
}

// Ping verifies the backend queue is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperrors.Wrapf(apperrors.ErrExternalBackend, "queue unreachable: %v", err)
	}
	return nil
}

// PushChunk submits a chunk and returns its correlation id.
func (c *Client) PushChunk(ctx context.Context, samples []float32, sampleRate, channels int) (string, error) {
	chunk := NewAudioChunk(samples, sampleRate, channels)
	payload, err := EncodeChunk(chunk)
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrExternalBackend, "failed to encode chunk: %v", err)
	}
	if err := c.rdb.LPush(ctx, requestQueue, payload).Err(); err != nil {
		return "", apperrors.Wrapf(apperrors.ErrExternalBackend, "failed to push chunk %s: %v", chunk.ID, err)
	}
	c.log.Debug("pushed audio chunk",
		zap.String("chunk", chunk.ID),
		zap.Duration("duration", chunk.Duration()))
	return chunk.ID, nil
}

// PullTranscript blocks until the transcript for id arrives or timeout
// elapses. A backend-reported error comes back as ErrExternalBackend.
func (c *Client) PullTranscript(ctx context.Context, id string, timeout time.Duration) (string, error) {
	res, err := c.rdb.BRPop(ctx, timeout, replyQueuePrefix+id).Result()
	if err == redis.Nil {
		return "", apperrors.Wrapf(apperrors.ErrExternalBackend, "no transcript for chunk %s within %s", id, timeout)
	}
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrExternalBackend, "failed to pull transcript %s: %v", id, err)
	}
	// BRPop returns [key, value]
	if len(res) != 2 {
		return "", apperrors.Wrapf(apperrors.ErrExternalBackend, "malformed reply for chunk %s", id)
	}

	t, err := DecodeTranscript([]byte(res[1]))
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrExternalBackend, "failed to decode transcript %s: %v", id, err)
	}
	if t.ID != id {
		return "", apperrors.Wrapf(apperrors.ErrExternalBackend, "transcript id %s does not match chunk %s", t.ID, id)
	}
	if t.Error != "" {
		return "", apperrors.Wrapf(apperrors.ErrExternalBackend, "backend error for chunk %s: %s", id, t.Error)
	}
	return t.Text, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
